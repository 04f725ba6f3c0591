// Command mkfat16 builds a FAT16 disk image, MBR-partitioned, from a
// host directory tree — the offline counterpart to the read-only kernel
// filesystem in package fat16. Adapted from biscuit/src/mkfs/mkfs.go's
// CLI shape and its addfiles/copydata host-directory walk, retargeted
// from ufs's on-disk format to FAT16's. Building filesystem images is a
// host-side tool, distinct from the kernel's own read-only-at-runtime
// constraint: the kernel never writes to the filesystem, but offline
// image construction is a separate concern.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"corekernel/fat16"
	"corekernel/mbr"
)

const (
	sectorSize      = 512
	sectorsPerClust = 4
	reservedSectors = 1
	fatCount        = 2
	rootEntries     = 512
	partitionStart  = 2048 // sectors; leaves room for MBR + alignment
)

type fileNode struct {
	name    string
	isDir   bool
	data    []byte
	entries []fileNode // isDir children
}

func walkHostDir(path string) (fileNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileNode{}, err
	}
	root := fileNode{name: filepath.Base(path), isDir: info.IsDir()}
	if !info.IsDir() {
		b, err := os.ReadFile(path)
		if err != nil {
			return fileNode{}, err
		}
		root.data = b
		return root, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fileNode{}, err
	}
	for _, e := range entries {
		child, err := walkHostDir(filepath.Join(path, e.Name()))
		if err != nil {
			return fileNode{}, fmt.Errorf("walking %q: %w", e.Name(), err)
		}
		root.entries = append(root.entries, child)
	}
	return root, nil
}

// builder accumulates the FAT table and data-cluster region of the image
// as files and directories are assigned clusters.
type builder struct {
	clusterBytes int
	fat          []uint16 // index by cluster number; 0 and 1 unused
	data         [][]byte // data[c-2] is the raw bytes of cluster c
}

func newBuilder(clusterBytes int) *builder {
	return &builder{clusterBytes: clusterBytes, fat: []uint16{0, 0}}
}

// allocChain reserves enough clusters to hold content, chaining them in
// the FAT, and returns the first cluster number (0 if content is empty).
func (b *builder) allocChain(content []byte) uint16 {
	if len(content) == 0 {
		return 0
	}
	nclust := (len(content) + b.clusterBytes - 1) / b.clusterBytes
	first := uint16(0)
	prev := uint16(0)
	for i := 0; i < nclust; i++ {
		c := uint16(len(b.fat))
		b.fat = append(b.fat, 0xFFFF) // provisional EOF
		lo := i * b.clusterBytes
		hi := lo + b.clusterBytes
		if hi > len(content) {
			hi = len(content)
		}
		chunk := make([]byte, b.clusterBytes)
		copy(chunk, content[lo:hi])
		b.data = append(b.data, chunk)
		if prev != 0 {
			b.fat[prev] = c
		} else {
			first = c
		}
		prev = c
	}
	return first
}

// buildDir encodes a directory's children as a byte blob of 32-byte
// entries (no "." / ".." pseudo-entries: package fat16's reader never
// looks for them) and allocates it a cluster chain, recursing into
// subdirectories first so their first-cluster numbers are known.
func (b *builder) buildDir(node fileNode) []byte {
	var blob []byte
	for _, child := range node.entries {
		sfn, err := fat16.ParseShortFileName(child.name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mkfat16: skipping %q: %v\n", child.name, err)
			continue
		}
		var firstClust uint16
		var size uint32
		attrs := fat16.Attributes(0)
		if child.isDir {
			attrs = fat16.AttrDir
			sub := b.buildDir(child)
			firstClust = b.allocChain(sub)
		} else {
			attrs = fat16.AttrArchive
			firstClust = b.allocChain(child.data)
			size = uint32(len(child.data))
		}
		now := fixedBuildTime()
		ent := fat16.DirEntry{
			Name:       sfn,
			Attrs:      attrs,
			FirstClust: fat16.Cluster(firstClust),
			Size:       size,
			CreateTime: now,
			ModifyTime: now,
			AccessDate: now,
		}
		raw := fat16.EncodeDirEntry(ent)
		blob = append(blob, raw[:]...)
	}
	return blob
}

// fixedBuildTime pins directory-entry timestamps to a constant instant:
// workflow scripts may not call time.Now (nondeterministic builds would
// defeat reproducible test fixtures), and the kernel never inspects
// these beyond parsing them.
func fixedBuildTime() time.Time {
	return time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func main() {
	if len(os.Args) != 3 {
		fmt.Printf("usage: %s <output image> <skeleton dir>\n", os.Args[0])
		os.Exit(1)
	}
	outPath, skelDir := os.Args[1], os.Args[2]

	root, err := walkHostDir(skelDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfat16: %v\n", err)
		os.Exit(1)
	}

	b := newBuilder(sectorSize * sectorsPerClust)
	rootBlob := b.buildDir(root)

	rootDirSectors := (rootEntries*fat16.DirEntrySize + sectorSize - 1) / sectorSize
	nDataClusters := len(b.fat) - 2
	nDataSectors := nDataClusters * sectorsPerClust
	// one FAT sector covers bytesPerSector/2 sixteen-bit entries.
	sectorsPerFat := (len(b.fat)*2 + sectorSize - 1) / sectorSize
	volumeSectors := reservedSectors + fatCount*sectorsPerFat + rootDirSectors + nDataSectors

	bpb := fat16.Bpb{
		OEMName:          "MKFAT16",
		BytesPerSector:   sectorSize,
		SectorsPerClust:  sectorsPerClust,
		ReservedSectors:  reservedSectors,
		FatCount:         fatCount,
		RootEntriesCount: rootEntries,
		TotalSectors16:   uint16(volumeSectors),
		MediaType:        0xF8,
		SectorsPerFat:    uint16(sectorsPerFat),
		SectorsPerTrack:  63,
		NumHeads:         255,
		HiddenSectors:    partitionStart,
		TotalSectors32:   0,
		VolumeLabel:      "COREKERNEL",
	}

	volume := make([]byte, volumeSectors*sectorSize)
	copy(volume[0:sectorSize], fat16.EncodeBpb(bpb))

	fatBytes := make([]byte, sectorsPerFat*sectorSize)
	for i, v := range b.fat {
		fatBytes[i*2] = byte(v)
		fatBytes[i*2+1] = byte(v >> 8)
	}
	for f := 0; f < fatCount; f++ {
		off := (reservedSectors + f*sectorsPerFat) * sectorSize
		copy(volume[off:off+len(fatBytes)], fatBytes)
	}

	rootOff := (reservedSectors + fatCount*sectorsPerFat) * sectorSize
	copy(volume[rootOff:rootOff+len(rootBlob)], rootBlob)

	dataOff := (reservedSectors + fatCount*sectorsPerFat + rootDirSectors) * sectorSize
	for i, clust := range b.data {
		off := dataOff + i*sectorsPerClust*sectorSize
		copy(volume[off:off+len(clust)], clust)
	}

	image := make([]byte, (partitionStart+volumeSectors)*sectorSize)
	mbrSector := image[0:sectorSize]
	entries := [4]mbr.Entry{
		{Active: true, Type: 0x06, LBABegin: partitionStart, LBATotal: uint32(volumeSectors)},
	}
	mbr.Encode(mbrSector, entries)
	mbrSector[510], mbrSector[511] = 0x55, 0xAA

	copy(image[partitionStart*sectorSize:], volume)

	if err := os.WriteFile(outPath, image, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "mkfat16: writing %q: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("mkfat16: wrote %s (%d sectors, %d files/dirs)\n", outPath, len(image)/sectorSize, countNodes(root))
}

func countNodes(n fileNode) int {
	total := 0
	for _, c := range n.entries {
		total++
		total += countNodes(c)
	}
	return total
}
