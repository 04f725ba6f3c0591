package fat16

import "testing"

func TestEncodeParseBpbRoundTrip(t *testing.T) {
	want := Bpb{
		OEMName:          "MSDOS5.0",
		BytesPerSector:   512,
		SectorsPerClust:  4,
		ReservedSectors:  1,
		FatCount:         2,
		RootEntriesCount: 512,
		TotalSectors16:   20480,
		MediaType:        0xF8,
		SectorsPerFat:    32,
		SectorsPerTrack:  63,
		NumHeads:         255,
		HiddenSectors:    2048,
		TotalSectors32:   0,
		VolumeLabel:      "MYDISK",
	}
	sector := EncodeBpb(want)
	if len(sector) != 512 {
		t.Fatalf("EncodeBpb produced %d bytes, want 512", len(sector))
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		t.Fatalf("boot signature = %#x %#x, want 0x55 0xAA", sector[510], sector[511])
	}
	got, err := ParseBpb(sector)
	if err != nil {
		t.Fatalf("ParseBpb: %v", err)
	}
	if got.BytesPerSector != want.BytesPerSector || got.SectorsPerClust != want.SectorsPerClust ||
		got.ReservedSectors != want.ReservedSectors || got.FatCount != want.FatCount ||
		got.RootEntriesCount != want.RootEntriesCount || got.SectorsPerFat != want.SectorsPerFat ||
		got.HiddenSectors != want.HiddenSectors {
		t.Fatalf("ParseBpb(EncodeBpb(want)) = %+v, want fields matching %+v", got, want)
	}
}

func TestParseBpbRejectsShortSector(t *testing.T) {
	if _, err := ParseBpb(make([]byte, 10)); err == nil {
		t.Fatal("ParseBpb on a short sector should fail")
	}
}

func TestRootDirSectors(t *testing.T) {
	b := Bpb{RootEntriesCount: 512, BytesPerSector: 512}
	if got := b.RootDirSectors(); got != 32 {
		t.Fatalf("RootDirSectors() = %d, want 32", got)
	}
}

func TestClusterBytes(t *testing.T) {
	b := Bpb{BytesPerSector: 512, SectorsPerClust: 8}
	if got := b.ClusterBytes(); got != 4096 {
		t.Fatalf("ClusterBytes() = %d, want 4096", got)
	}
}
