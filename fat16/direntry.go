package fat16

import (
	"fmt"
	"time"

	"corekernel/util"
)

/// Cluster is a 32-bit FAT cluster number, widened from the on-disk
/// 16-bit FAT16 entry.
type Cluster uint32

const (
	ClusterEmpty     Cluster = 0x0000_0000
	ClusterRootDir    Cluster = 0xFFFF_FFFC
	ClusterEndOfFile Cluster = 0xFFFF_FFFF
	ClusterBad       Cluster = 0xFFFF_FFF7
)

/// Attributes is the FAT directory-entry attribute byte.
type Attributes uint8

const (
	AttrReadOnly Attributes = 1 << 0
	AttrHidden   Attributes = 1 << 1
	AttrSystem   Attributes = 1 << 2
	AttrVolumeID Attributes = 1 << 3
	AttrDir      Attributes = 1 << 4
	AttrArchive  Attributes = 1 << 5
	AttrLFN      Attributes = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

/// IsDir reports whether the entry names a directory.
func (a Attributes) IsDir() bool { return a&AttrDir != 0 }

/// ShortFileName is an 8.3 name: up to 8 base characters and up to 3
/// extension characters, upper-cased, space-padded.
type ShortFileName struct {
	Name [8]byte
	Ext  [3]byte
}

/// String renders the short name in "NAME.EXT" display form.
func (s ShortFileName) String() string {
	trim := func(b []byte) string {
		i := len(b)
		for i > 0 && b[i-1] == ' ' {
			i--
		}
		return string(b[:i])
	}
	n := trim(s.Name[:])
	e := trim(s.Ext[:])
	if e == "" {
		return n
	}
	return n + "." + e
}

/// Eq compares two short names byte-for-byte.
func (s ShortFileName) Eq(o ShortFileName) bool {
	return s.Name == o.Name && s.Ext == o.Ext
}

const invalidChars = "\"*+,/:;<=>?[\\]|"

func isInvalidChar(b byte) bool {
	if b < 0x20 || b == 0x20 {
		return true
	}
	for i := 0; i < len(invalidChars); i++ {
		if invalidChars[i] == b {
			return true
		}
	}
	return false
}

/// ParseShortFileName validates and encodes a single path component as an
/// 8.3 name: uppercase, split on '.', name<=8 / ext<=3, reject the
/// invalid-character set, reject
/// periods after position 8, pad with spaces.
func ParseShortFileName(component string) (ShortFileName, error) {
	if len(component) == 0 {
		return ShortFileName{}, fmt.Errorf("fat16: empty filename component")
	}
	dot := -1
	for i := 0; i < len(component); i++ {
		c := component[i]
		if c == '.' {
			if dot != -1 {
				return ShortFileName{}, fmt.Errorf("fat16: multiple periods in %q", component)
			}
			if i > 8 {
				return ShortFileName{}, fmt.Errorf("fat16: misplaced period in %q", component)
			}
			dot = i
			continue
		}
		if isInvalidChar(c) {
			return ShortFileName{}, fmt.Errorf("fat16: invalid character %q in %q", c, component)
		}
	}
	base := component
	ext := ""
	if dot != -1 {
		base = component[:dot]
		ext = component[dot+1:]
	}
	if len(base) == 0 || len(base) > 8 {
		return ShortFileName{}, fmt.Errorf("fat16: name %q too long or empty", base)
	}
	if len(ext) > 3 {
		return ShortFileName{}, fmt.Errorf("fat16: extension %q too long", ext)
	}
	var sfn ShortFileName
	for i := range sfn.Name {
		sfn.Name[i] = ' '
	}
	for i := range sfn.Ext {
		sfn.Ext[i] = ' '
	}
	for i := 0; i < len(base); i++ {
		sfn.Name[i] = upper(base[i])
	}
	for i := 0; i < len(ext); i++ {
		sfn.Ext[i] = upper(ext[i])
	}
	return sfn, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

/// DirEntry is one parsed 32-byte FAT16 directory entry.
type DirEntry struct {
	Name       ShortFileName
	Attrs      Attributes
	FirstClust Cluster
	Size       uint32
	CreateTime time.Time
	ModifyTime time.Time
	AccessDate time.Time
}

const direntSize = 32

/// DirEntrySize is the on-disk size of one directory entry, exported for
/// the offline image-building tool that lays out directory clusters.
const DirEntrySize = direntSize

/// EncodeDirEntry packs e into a 32-byte on-disk directory entry. Used
/// only by the offline image-building tool; the read-only kernel never
/// writes one.
func EncodeDirEntry(e DirEntry) [direntSize]byte {
	var raw [direntSize]byte
	copy(raw[0:8], e.Name.Name[:])
	copy(raw[8:11], e.Name.Ext[:])
	raw[11] = byte(e.Attrs)
	putU16(raw[14:16], dosTime(e.CreateTime))
	putU16(raw[16:18], dosDateOf(e.CreateTime))
	putU16(raw[18:20], dosDateOf(e.AccessDate))
	putU16(raw[20:22], uint16(uint32(e.FirstClust)>>16))
	putU16(raw[22:24], dosTime(e.ModifyTime))
	putU16(raw[24:26], dosDateOf(e.ModifyTime))
	putU16(raw[26:28], uint16(uint32(e.FirstClust)&0xffff))
	putU32(raw[28:32], e.Size)
	return raw
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func dosDateOf(t time.Time) uint16 {
	y := t.Year() - 1980
	if y < 0 {
		y = 0
	}
	return uint16(y<<9 | int(t.Month())<<5 | t.Day())
}

func dosTime(t time.Time) uint16 {
	return uint16(t.Hour()<<11 | t.Minute()<<5 | (t.Second() / 2))
}

// parseDirEntry decodes one 32-byte slice into a DirEntry. Callers must
// have already filtered out end-of-directory (name[0]==0x00), deleted
// (name[0]==0xE5), and LFN (attrs==AttrLFN) entries.
func parseDirEntry(raw []byte) DirEntry {
	var sfn ShortFileName
	copy(sfn.Name[:], raw[0:8])
	copy(sfn.Ext[:], raw[8:11])
	attrs := Attributes(raw[11])
	ctime := dosDateTime(util.Readn(raw, 2, 16), util.Readn(raw, 2, 14))
	atime := dosDate(util.Readn(raw, 2, 18))
	clustHi := util.Readn(raw, 2, 20)
	mtime := dosDateTime(util.Readn(raw, 2, 24), util.Readn(raw, 2, 22))
	clustLo := util.Readn(raw, 2, 26)
	size := util.Readn(raw, 4, 28)
	return DirEntry{
		Name:       sfn,
		Attrs:      attrs,
		FirstClust: Cluster(uint32(clustHi)<<16 | uint32(clustLo)),
		Size:       uint32(size),
		CreateTime: ctime,
		ModifyTime: mtime,
		AccessDate: atime,
	}
}

// dosDateTime decodes a packed DOS date/time pair. Invalid fields yield
// the Unix epoch.
func dosDateTime(date, timeField int) time.Time {
	y, m, d, ok := dosDateParts(date)
	if !ok {
		return time.Unix(0, 0).UTC()
	}
	hour := (timeField >> 11) & 0x1f
	min := (timeField >> 5) & 0x3f
	sec := (timeField & 0x1f) * 2
	if hour > 23 || min > 59 || sec > 59 {
		return time.Unix(0, 0).UTC()
	}
	return time.Date(y, time.Month(m), d, hour, min, sec, 0, time.UTC)
}

func dosDate(date int) time.Time {
	y, m, d, ok := dosDateParts(date)
	if !ok {
		return time.Unix(0, 0).UTC()
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func dosDateParts(date int) (year, month, day int, ok bool) {
	year = 1980 + (date>>9)&0x7f
	month = (date >> 5) & 0x0f
	day = date & 0x1f
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}
