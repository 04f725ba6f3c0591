package trapsys

import (
	"bytes"
	"testing"
	"time"

	"corekernel/block"
	"corekernel/defs"
	"corekernel/fat16"
)

// buildTestVolume assembles a minimal single-file FAT16 volume in memory,
// mirroring the layout fat16's own tests use.
func buildTestVolume(t *testing.T, fileName, content string) *fat16.FS {
	t.Helper()
	const (
		bytesPerSector  = 512
		sectorsPerClust = 1
		reservedSectors = 1
		fatCount        = 1
		rootEntries     = 16
	)
	sfn, err := fat16.ParseShortFileName(fileName)
	if err != nil {
		t.Fatalf("ParseShortFileName(%q): %v", fileName, err)
	}
	rootDirSectors := (rootEntries*fat16.DirEntrySize + bytesPerSector - 1) / bytesPerSector
	sectorsPerFat := 1
	totalSectors := reservedSectors + fatCount*sectorsPerFat + rootDirSectors + 1

	bpb := fat16.Bpb{
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
	copy(image[0:bytesPerSector], fat16.EncodeBpb(bpb))

	fatOff := reservedSectors * bytesPerSector
	fat := image[fatOff : fatOff+sectorsPerFat*bytesPerSector]
	fat[2*2], fat[2*2+1] = 0xFF, 0xFF // cluster 2 is EOF

	rootOff := (reservedSectors + fatCount*sectorsPerFat) * bytesPerSector
	ent := fat16.DirEntry{
		Name:       sfn,
		Attrs:      fat16.AttrArchive,
		FirstClust: 2,
		Size:       uint32(len(content)),
		CreateTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ModifyTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		AccessDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw := fat16.EncodeDirEntry(ent)
	copy(image[rootOff:], raw[:])

	dataOff := (reservedSectors + fatCount*sectorsPerFat + rootDirSectors) * bytesPerSector
	copy(image[dataOff:], content)

	dev := block.NewFileDevice(bytes.NewReader(image), uint64(totalSectors))
	part := block.NewPartition(dev, 0, uint64(totalSectors))
	fs, err := fat16.Mount(part)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func TestDispatchOpenReadClose(t *testing.T) {
	d, pid, p := setupDispatcher(t)
	d.FS = buildTestVolume(t, "HELLO.TXT", "hello world")

	path := "/HELLO.TXT"
	CopyToUser(p.Vm.AS, p.Vm.Stack.Bottom, []byte(path))
	openOut := d.Dispatch(pid, SysOpen, [3]uint64{uint64(p.Vm.Stack.Bottom), uint64(len(path))})
	if openOut.ReturnRAX == ErrReturn {
		t.Fatal("Open of an existing file should succeed")
	}
	fd := openOut.ReturnRAX

	readBuf := p.Vm.Stack.Bottom + 64
	readOut := d.Dispatch(pid, SysRead, [3]uint64{fd, uint64(readBuf), 32})
	if readOut.ReturnRAX != uint64(len("hello world")) {
		t.Fatalf("Read returned %d bytes, want %d", readOut.ReturnRAX, len("hello world"))
	}
	got, err := CopyFromUser(p.Vm.AS, readBuf, readOut.ReturnRAX)
	if err != 0 || string(got) != "hello world" {
		t.Fatalf("read content = %q, want %q", got, "hello world")
	}

	closeOut := d.Dispatch(pid, SysClose, [3]uint64{fd})
	if closeOut.ReturnRAX != 0 {
		t.Fatalf("Close ReturnRAX = %d, want 0", closeOut.ReturnRAX)
	}
	if secondClose := d.Dispatch(pid, SysClose, [3]uint64{fd}); secondClose.ReturnRAX != ErrReturn {
		t.Fatal("closing an already-closed fd should fail")
	}
}

func TestDispatchOpenMissingFileFails(t *testing.T) {
	d, pid, p := setupDispatcher(t)
	d.FS = buildTestVolume(t, "HELLO.TXT", "hello world")

	path := "/NOPE.TXT"
	CopyToUser(p.Vm.AS, p.Vm.Stack.Bottom, []byte(path))
	out := d.Dispatch(pid, SysOpen, [3]uint64{uint64(p.Vm.Stack.Bottom), uint64(len(path))})
	if out.ReturnRAX != ErrReturn {
		t.Fatal("Open of a nonexistent file should fail")
	}
}

func TestDispatchListDirOnFileFails(t *testing.T) {
	d, pid, p := setupDispatcher(t)
	d.FS = buildTestVolume(t, "HELLO.TXT", "hello world")

	path := "/HELLO.TXT"
	CopyToUser(p.Vm.AS, p.Vm.Stack.Bottom, []byte(path))
	out := d.Dispatch(pid, SysListDir, [3]uint64{uint64(p.Vm.Stack.Bottom), uint64(len(path))})
	if out.ReturnRAX != ErrReturn {
		t.Fatal("ListDir on a plain file should fail, not a directory")
	}
}

func TestDispatchSpawnFromUserPath(t *testing.T) {
	d, pid, p := setupDispatcher(t)
	name := "sh"
	CopyToUser(p.Vm.AS, p.Vm.Stack.Bottom, []byte(name))
	out := d.Dispatch(pid, SysSpawn, [3]uint64{uint64(p.Vm.Stack.Bottom), uint64(len(name))})
	if out.ReturnRAX == 0 {
		t.Fatal("Spawn of a known app by name should succeed")
	}
	child := d.Mgr.Process(defs.ProcessId(out.ReturnRAX))
	if child == nil {
		t.Fatal("spawned child process should exist")
	}
}

func TestDispatchWaitPidBlocksOnLiveChild(t *testing.T) {
	d, pid, p := setupDispatcher(t)
	name := "sh"
	CopyToUser(p.Vm.AS, p.Vm.Stack.Bottom, []byte(name))
	spawnOut := d.Dispatch(pid, SysSpawn, [3]uint64{uint64(p.Vm.Stack.Bottom), uint64(len(name))})
	childPid := defs.ProcessId(spawnOut.ReturnRAX)

	waitOut := d.Dispatch(pid, SysWaitPid, [3]uint64{uint64(childPid)})
	if !waitOut.Blocked {
		t.Fatal("WaitPid on a still-live child should block")
	}
}
