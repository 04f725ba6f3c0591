package fat16

import "testing"

func TestParseShortFileNamePadsAndUppercases(t *testing.T) {
	sfn, err := ParseShortFileName("sh.elf")
	if err != nil {
		t.Fatalf("ParseShortFileName: %v", err)
	}
	if sfn.String() != "SH.ELF" {
		t.Fatalf("String() = %q, want %q", sfn.String(), "SH.ELF")
	}
}

func TestParseShortFileNameNoExtension(t *testing.T) {
	sfn, err := ParseShortFileName("kernel")
	if err != nil {
		t.Fatalf("ParseShortFileName: %v", err)
	}
	if sfn.String() != "KERNEL" {
		t.Fatalf("String() = %q, want %q", sfn.String(), "KERNEL")
	}
}

func TestParseShortFileNameRejectsLongName(t *testing.T) {
	if _, err := ParseShortFileName("toolongname.txt"); err == nil {
		t.Fatal("a >8-char base name should be rejected")
	}
}

func TestParseShortFileNameRejectsLongExtension(t *testing.T) {
	if _, err := ParseShortFileName("a.text"); err == nil {
		t.Fatal("a >3-char extension should be rejected")
	}
}

func TestParseShortFileNameRejectsInvalidChar(t *testing.T) {
	if _, err := ParseShortFileName("a?.txt"); err == nil {
		t.Fatal("an invalid character should be rejected")
	}
}

func TestParseShortFileNameRejectsMultiplePeriods(t *testing.T) {
	if _, err := ParseShortFileName("a.b.c"); err == nil {
		t.Fatal("more than one period should be rejected")
	}
}

func TestShortFileNameEq(t *testing.T) {
	a, _ := ParseShortFileName("sh.elf")
	b, _ := ParseShortFileName("SH.ELF")
	if !a.Eq(b) {
		t.Fatal("names differing only in case before parsing should compare equal")
	}
}

func TestAttributesIsDir(t *testing.T) {
	if !AttrDir.IsDir() {
		t.Fatal("AttrDir should report IsDir")
	}
	if AttrArchive.IsDir() {
		t.Fatal("AttrArchive should not report IsDir")
	}
}

func TestEncodeDirEntryRoundTrip(t *testing.T) {
	sfn, _ := ParseShortFileName("a.txt")
	when := dosDate(dosDateParts2020())
	ent := DirEntry{
		Name:       sfn,
		Attrs:      AttrArchive,
		FirstClust: 0x1234,
		Size:       42,
		CreateTime: when,
		ModifyTime: when,
		AccessDate: when,
	}
	raw := EncodeDirEntry(ent)
	got := parseDirEntry(raw[:])
	if !got.Name.Eq(sfn) || got.FirstClust != 0x1234 || got.Size != 42 {
		t.Fatalf("round-tripped entry = %+v, want FirstClust=0x1234 Size=42", got)
	}
}

func dosDateParts2020() int {
	// year 2020, month 1, day 1 packed per the DOS date format.
	return (2020-1980)<<9 | 1<<5 | 1
}
