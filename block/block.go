// Package block implements component K: the block-device/partition
// abstraction FAT16 reads through, plus a file-backed ATA simulation
// suitable for a hosted reimplementation. Grounded on biscuit's
// ufs/driver.go file-backed disk simulation and pci/olddiski.go's
// Disk_i-shaped interface (a polymorphic block device, here modeled as
// a plain Go interface).
package block

import (
	"fmt"
	"io"
)

/// SectorSize is the fixed sector size this kernel assumes throughout.
const SectorSize = 512

/// Device reads fixed-size sectors by index. BlockCount reports the
/// total number of sectors on the device.
type Device interface {
	ReadSector(idx uint64, buf []byte) error
	BlockCount() uint64
}

/// FileDevice simulates an ATA disk over a local file or any io.ReaderAt,
/// the same technique biscuit's ahci_disk_t uses to test the filesystem
/// without real disk hardware.
type FileDevice struct {
	r      io.ReaderAt
	nsects uint64
}

/// NewFileDevice wraps r as a Device with the given sector count.
func NewFileDevice(r io.ReaderAt, nsects uint64) *FileDevice {
	return &FileDevice{r: r, nsects: nsects}
}

/// ReadSector reads sector idx into buf, which must be at least
/// SectorSize bytes.
func (d *FileDevice) ReadSector(idx uint64, buf []byte) error {
	if idx >= d.nsects {
		return fmt.Errorf("block: sector %d out of range (%d sectors)", idx, d.nsects)
	}
	if len(buf) < SectorSize {
		return fmt.Errorf("block: buffer too small")
	}
	_, err := d.r.ReadAt(buf[:SectorSize], int64(idx)*SectorSize)
	return err
}

/// BlockCount returns the device's total sector count.
func (d *FileDevice) BlockCount() uint64 {
	return d.nsects
}

/// Partition is a thin offset+size wrapper over a Device, translating
/// partition-relative sector offsets to absolute ones.
type Partition struct {
	inner     Device
	startSect uint64
	nsects    uint64
}

/// NewPartition wraps dev, exposing only sectors [start, start+n).
func NewPartition(dev Device, start, n uint64) *Partition {
	return &Partition{inner: dev, startSect: start, nsects: n}
}

/// ReadBlock reads the sector at offset (partition-relative) into block.
/// It rejects offset >= size.
func (p *Partition) ReadBlock(offset uint64, block []byte) error {
	if offset >= p.nsects {
		return fmt.Errorf("block: partition offset %d out of range (%d sectors)", offset, p.nsects)
	}
	return p.inner.ReadSector(p.startSect+offset, block)
}

/// Size returns the partition's sector count.
func (p *Partition) Size() uint64 {
	return p.nsects
}
