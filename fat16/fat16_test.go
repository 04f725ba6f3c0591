package fat16

import (
	"bytes"
	"io"
	"testing"
	"time"

	"corekernel/block"
)

// buildTestVolume assembles a minimal single-file FAT16 volume in memory:
// one reserved sector (BPB), one FAT sector, one root-directory sector,
// and one data cluster holding the given file content.
func buildTestVolume(t *testing.T, fileName, content string) *FS {
	t.Helper()
	const (
		bytesPerSector  = 512
		sectorsPerClust = 1
		reservedSectors = 1
		fatCount        = 1
		rootEntries     = 16
	)
	sfn, err := ParseShortFileName(fileName)
	if err != nil {
		t.Fatalf("ParseShortFileName(%q): %v", fileName, err)
	}
	rootDirSectors := (rootEntries*DirEntrySize + bytesPerSector - 1) / bytesPerSector
	sectorsPerFat := 1
	totalSectors := reservedSectors + fatCount*sectorsPerFat + rootDirSectors + 1

	bpb := Bpb{
		OEMName:          "TESTOEM",
		BytesPerSector:   bytesPerSector,
		SectorsPerClust:  sectorsPerClust,
		ReservedSectors:  reservedSectors,
		FatCount:         fatCount,
		RootEntriesCount: rootEntries,
		TotalSectors16:   uint16(totalSectors),
		MediaType:        0xF8,
		SectorsPerFat:    uint16(sectorsPerFat),
		VolumeLabel:      "TESTVOL",
	}

	image := make([]byte, totalSectors*bytesPerSector)
	copy(image[0:bytesPerSector], EncodeBpb(bpb))

	fatOff := reservedSectors * bytesPerSector
	fat := image[fatOff : fatOff+sectorsPerFat*bytesPerSector]
	putU16(fat[2*2:], 0xFFFF) // cluster 2 (the only data cluster) is EOF

	rootOff := (reservedSectors + fatCount*sectorsPerFat) * bytesPerSector
	ent := DirEntry{
		Name:       sfn,
		Attrs:      AttrArchive,
		FirstClust: 2,
		Size:       uint32(len(content)),
		CreateTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ModifyTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		AccessDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw := EncodeDirEntry(ent)
	copy(image[rootOff:], raw[:])

	dataOff := (reservedSectors + fatCount*sectorsPerFat + rootDirSectors) * bytesPerSector
	copy(image[dataOff:], content)

	dev := block.NewFileDevice(bytes.NewReader(image), uint64(totalSectors))
	part := block.NewPartition(dev, 0, uint64(totalSectors))
	fs, err := Mount(part)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func TestMountParsesBpb(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	b := fs.Bpb()
	if b.BytesPerSector != 512 || b.SectorsPerClust != 1 {
		t.Fatalf("Bpb() = %+v, unexpected", b)
	}
}

func TestResolveFindsFile(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	ent, err := fs.Resolve("/HELLO.TXT")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ent.Name.String() != "HELLO.TXT" || ent.Size != 11 {
		t.Fatalf("Resolve() = %+v, unexpected", ent)
	}
}

func TestResolveMissingFile(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	if _, err := fs.Resolve("/NOPE.TXT"); err == nil {
		t.Fatal("Resolve of a nonexistent file should fail")
	}
}

func TestOpenRejectsDirectory(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	if _, err := fs.Open("/"); err == nil {
		t.Fatal("Open on the root directory should fail")
	}
}

func TestFileReadReturnsFullContentThenEOF(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	f, err := fs.Open("/HELLO.TXT")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 64)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello world" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hello world")
	}
	n2, err := f.Read(buf)
	if n2 != 0 || err != io.EOF {
		t.Fatalf("second Read = %d,%v want 0,EOF", n2, err)
	}
}

func TestFileReadShortBuffer(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	f, err := fs.Open("/HELLO.TXT")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 5)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %d,%q want 5,hello", n, buf)
	}
	n2, err := f.Read(buf)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if n2 != 5 || string(buf[:n2]) != " worl" {
		t.Fatalf("second Read = %d,%q want 5,\" worl\"", n2, buf[:n2])
	}
}

func TestReadDirCachesAcrossCalls(t *testing.T) {
	fs := buildTestVolume(t, "HELLO.TXT", "hello world")
	a, err := fs.ReadDir(ClusterRootDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	b, err := fs.ReadDir(ClusterRootDir)
	if err != nil {
		t.Fatalf("ReadDir (cached): %v", err)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("ReadDir returned %d/%d entries, want 1/1", len(a), len(b))
	}
}
