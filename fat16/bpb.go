// Package fat16 implements component I: a read-only FAT16 filesystem
// over a block.Partition — BPB parsing, FAT chain walking, 8.3 path
// resolution, and sequential file reads. Grounded on original_source's
// storage/src/fs/fat16/{bpb,direntry,impls,file}.rs for the exact wire
// layout and algorithms.
package fat16

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"corekernel/util"
)

/// Bpb is the parsed BIOS Parameter Block at sector 0 of a FAT16 volume.
type Bpb struct {
	OEMName          string
	BytesPerSector   uint16
	SectorsPerClust  uint8
	ReservedSectors  uint16
	FatCount         uint8
	RootEntriesCount uint16
	TotalSectors16   uint16
	MediaType        uint8
	SectorsPerFat    uint16
	SectorsPerTrack  uint16
	NumHeads         uint16
	HiddenSectors    uint32
	TotalSectors32   uint32
	VolumeLabel      string
}

// Byte offsets per the Microsoft FAT specification.
const (
	offOEMName          = 3
	lenOEMName          = 8
	offBytesPerSector   = 11
	offSectorsPerClust  = 13
	offReservedSectors  = 14
	offFatCount         = 16
	offRootEntriesCount = 17
	offTotalSectors16   = 19
	offMediaType        = 21
	offSectorsPerFat    = 22
	offSectorsPerTrack  = 24
	offNumHeads         = 26
	offHiddenSectors    = 28
	offTotalSectors32   = 32
	offVolumeLabel      = 43
	lenVolumeLabel      = 11
)

/// ParseBpb decodes a 512-byte boot sector into a Bpb. OEMName and
/// VolumeLabel are code-page 437 bytes per the Microsoft spec, decoded
/// through golang.org/x/text/encoding/charmap rather than a naive
/// byte-to-rune cast.
func ParseBpb(sector []byte) (Bpb, error) {
	if len(sector) < 512 {
		return Bpb{}, fmt.Errorf("fat16: boot sector too short (%d bytes)", len(sector))
	}
	oem, err := charmap.CodePage437.NewDecoder().String(string(sector[offOEMName : offOEMName+lenOEMName]))
	if err != nil {
		return Bpb{}, fmt.Errorf("fat16: decoding OEM name: %w", err)
	}
	label, err := charmap.CodePage437.NewDecoder().String(string(sector[offVolumeLabel : offVolumeLabel+lenVolumeLabel]))
	if err != nil {
		return Bpb{}, fmt.Errorf("fat16: decoding volume label: %w", err)
	}
	return Bpb{
		OEMName:          oem,
		BytesPerSector:   uint16(util.Readn(sector, 2, offBytesPerSector)),
		SectorsPerClust:  uint8(util.Readn(sector, 1, offSectorsPerClust)),
		ReservedSectors:  uint16(util.Readn(sector, 2, offReservedSectors)),
		FatCount:         uint8(util.Readn(sector, 1, offFatCount)),
		RootEntriesCount: uint16(util.Readn(sector, 2, offRootEntriesCount)),
		TotalSectors16:   uint16(util.Readn(sector, 2, offTotalSectors16)),
		MediaType:        uint8(util.Readn(sector, 1, offMediaType)),
		SectorsPerFat:    uint16(util.Readn(sector, 2, offSectorsPerFat)),
		SectorsPerTrack:  uint16(util.Readn(sector, 2, offSectorsPerTrack)),
		NumHeads:         uint16(util.Readn(sector, 2, offNumHeads)),
		HiddenSectors:    uint32(util.Readn(sector, 4, offHiddenSectors)),
		TotalSectors32:   uint32(util.Readn(sector, 4, offTotalSectors32)),
		VolumeLabel:      label,
	}, nil
}

/// RootDirSectors returns ceil(root_entries_count * 32 / bytes_per_sector).
func (b *Bpb) RootDirSectors() uint32 {
	num := uint32(b.RootEntriesCount) * 32
	den := uint32(b.BytesPerSector)
	return (num + den - 1) / den
}

/// ClusterBytes returns the number of bytes in one cluster.
func (b *Bpb) ClusterBytes() uint32 {
	return uint32(b.BytesPerSector) * uint32(b.SectorsPerClust)
}

/// EncodeBpb packs b into a 512-byte boot sector, including the jump
/// instruction and 0x55AA signature a real BIOS/bootloader checks for.
/// Used only by the offline image-building tool.
func EncodeBpb(b Bpb) []byte {
	sector := make([]byte, 512)
	sector[0], sector[1], sector[2] = 0xEB, 0x3C, 0x90
	oem, _ := charmap.CodePage437.NewEncoder().String(padTo(b.OEMName, lenOEMName))
	copy(sector[offOEMName:offOEMName+lenOEMName], oem)
	putU16(sector[offBytesPerSector:], b.BytesPerSector)
	sector[offSectorsPerClust] = b.SectorsPerClust
	putU16(sector[offReservedSectors:], b.ReservedSectors)
	sector[offFatCount] = b.FatCount
	putU16(sector[offRootEntriesCount:], b.RootEntriesCount)
	putU16(sector[offTotalSectors16:], b.TotalSectors16)
	sector[offMediaType] = b.MediaType
	putU16(sector[offSectorsPerFat:], b.SectorsPerFat)
	putU16(sector[offSectorsPerTrack:], b.SectorsPerTrack)
	putU16(sector[offNumHeads:], b.NumHeads)
	putU32(sector[offHiddenSectors:], b.HiddenSectors)
	putU32(sector[offTotalSectors32:], b.TotalSectors32)
	label, _ := charmap.CodePage437.NewEncoder().String(padTo(b.VolumeLabel, lenVolumeLabel))
	copy(sector[offVolumeLabel:offVolumeLabel+lenVolumeLabel], label)
	sector[510], sector[511] = 0x55, 0xAA
	return sector
}

func padTo(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
