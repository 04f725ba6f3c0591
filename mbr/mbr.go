// Package mbr implements component J: parsing the first sector's
// partition table. Grounded on original_source's
// storage/src/partition/mbr/mod.rs for the exact byte offsets.
package mbr

import (
	"fmt"

	"corekernel/util"
)

/// Entry is one 16-byte MBR partition record.
type Entry struct {
	Active   bool
	CHSBegin [3]byte
	Type     uint8
	CHSEnd   [3]byte
	LBABegin uint32
	LBATotal uint32
}

const entrySize = 16

var entryOffsets = [4]int{0x1BE, 0x1CE, 0x1DE, 0x1EE}

/// Parse reads the four partition records from a 512-byte boot sector.
/// Only entries with a nonzero Type are meaningful; callers should treat
/// the rest as empty slots.
func Parse(sector []byte) ([4]Entry, error) {
	var entries [4]Entry
	if len(sector) < 512 {
		return entries, fmt.Errorf("mbr: sector too short (%d bytes)", len(sector))
	}
	for i, off := range entryOffsets {
		e := sector[off : off+entrySize]
		entries[i] = Entry{
			Active:   e[0] == 0x80,
			CHSBegin: [3]byte{e[1], e[2], e[3]},
			Type:     e[4],
			CHSEnd:   [3]byte{e[5], e[6], e[7]},
			LBABegin: uint32(util.Readn(e, 4, 8)),
			LBATotal: uint32(util.Readn(e, 4, 12)),
		}
	}
	return entries, nil
}

/// FirstActive returns the first entry with a nonzero type, the
/// partition the filesystem uses as its underlying device.
func FirstActive(entries [4]Entry) (Entry, bool) {
	for _, e := range entries {
		if e.Type != 0 {
			return e, true
		}
	}
	return Entry{}, false
}

/// Encode writes entries into a 512-byte sector's four partition-table
/// slots, leaving everything else (boot code, the 0x55AA signature) to
/// the caller. Used by the offline image-building tool, never by the
/// read-only kernel.
func Encode(sector []byte, entries [4]Entry) {
	for i, e := range entries {
		off := entryOffsets[i]
		rec := sector[off : off+entrySize]
		if e.Active {
			rec[0] = 0x80
		} else {
			rec[0] = 0x00
		}
		copy(rec[1:4], e.CHSBegin[:])
		rec[4] = e.Type
		copy(rec[5:8], e.CHSEnd[:])
		putU32(rec[8:12], e.LBABegin)
		putU32(rec[12:16], e.LBATotal)
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
