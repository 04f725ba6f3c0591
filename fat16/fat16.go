package fat16

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"corekernel/block"
	"corekernel/hashtable"
)

const fat16EntrySize = 2

/// FS is a mounted, read-only FAT16 volume over a block.Partition.
type FS struct {
	dev  *block.Partition
	bpb  Bpb
	mu   sync.Mutex // guards reads through dev; the device has no concurrent-read guarantee
	sg   singleflight.Group
	dirs *hashtable.Hashtable_t // Cluster -> []DirEntry, coalesced directory listings

	fatStartSector     uint32
	rootDirStartSector uint32
	firstDataSector    uint32
}

/// Mount reads the boot sector off dev and builds an FS. It fails if the
/// boot sector doesn't parse or declares zero bytes per sector.
func Mount(dev *block.Partition) (*FS, error) {
	sector := make([]byte, block.SectorSize)
	if err := dev.ReadBlock(0, sector); err != nil {
		return nil, fmt.Errorf("fat16: reading boot sector: %w", err)
	}
	bpb, err := ParseBpb(sector)
	if err != nil {
		return nil, err
	}
	if bpb.BytesPerSector == 0 || bpb.SectorsPerClust == 0 {
		return nil, fmt.Errorf("fat16: degenerate BPB (bytes/sector=%d sectors/cluster=%d)",
			bpb.BytesPerSector, bpb.SectorsPerClust)
	}
	fatStart := uint32(bpb.ReservedSectors)
	rootStart := fatStart + uint32(bpb.FatCount)*uint32(bpb.SectorsPerFat)
	fs := &FS{
		dev:                dev,
		bpb:                bpb,
		dirs:               hashtable.MkHash(64),
		fatStartSector:     fatStart,
		rootDirStartSector: rootStart,
		firstDataSector:    rootStart + bpb.RootDirSectors(),
	}
	return fs, nil
}

/// Bpb returns the volume's parsed boot sector.
func (fs *FS) Bpb() Bpb { return fs.bpb }

// clusterToSector maps a data cluster number (cluster 2 is the first data
// cluster, per the FAT convention) to its first absolute sector.
func (fs *FS) clusterToSector(c Cluster) uint32 {
	return fs.firstDataSector + (uint32(c)-2)*uint32(fs.bpb.SectorsPerClust)
}

// nextCluster reads the FAT table entry for c and returns the next
// cluster in the chain, or ClusterEndOfFile / ClusterBad for the FAT16
// sentinel ranges 0xFFF8-0xFFFF and 0xFFF7.
func (fs *FS) nextCluster(c Cluster) (Cluster, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	byteOff := uint32(c) * fat16EntrySize
	sectorOff := byteOff / uint32(fs.bpb.BytesPerSector)
	inSector := byteOff % uint32(fs.bpb.BytesPerSector)

	sector := make([]byte, block.SectorSize)
	if err := fs.dev.ReadBlock(uint64(fs.fatStartSector+sectorOff), sector); err != nil {
		return 0, fmt.Errorf("fat16: reading FAT sector: %w", err)
	}
	raw := uint16(sector[inSector]) | uint16(sector[inSector+1])<<8
	switch {
	case raw == 0x0000:
		return ClusterEndOfFile, nil
	case raw >= 0xFFF8:
		return ClusterEndOfFile, nil
	case raw == 0xFFF7:
		return ClusterBad, nil
	default:
		return Cluster(raw), nil
	}
}

// readClusterRaw reads one full cluster's worth of bytes. For the root
// directory's fixed region on FAT16 (ClusterRootDir), it instead reads the
// fixed root-directory sectors.
func (fs *FS) readClusterRaw(c Cluster) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if c == ClusterRootDir {
		buf := make([]byte, fs.bpb.RootDirSectors()*uint32(fs.bpb.BytesPerSector))
		for i := uint32(0); i < fs.bpb.RootDirSectors(); i++ {
			if err := fs.dev.ReadBlock(uint64(fs.rootDirStartSector+i), buf[i*uint32(fs.bpb.BytesPerSector):]); err != nil {
				return nil, fmt.Errorf("fat16: reading root directory: %w", err)
			}
		}
		return buf, nil
	}
	buf := make([]byte, fs.bpb.ClusterBytes())
	startSector := fs.clusterToSector(c)
	for i := uint8(0); i < fs.bpb.SectorsPerClust; i++ {
		off := uint32(i) * uint32(fs.bpb.BytesPerSector)
		if err := fs.dev.ReadBlock(uint64(startSector)+uint64(i), buf[off:off+uint32(fs.bpb.BytesPerSector)]); err != nil {
			return nil, fmt.Errorf("fat16: reading cluster %d: %w", c, err)
		}
	}
	return buf, nil
}

// ReadDir lists the entries of the directory rooted at cluster c. Calls for
// the same cluster made concurrently are coalesced through singleflight,
// and the decoded listing is cached in dirs so repeated lookups (e.g.
// walking the same directory for several path components) skip the device
// entirely.
func (fs *FS) ReadDir(c Cluster) ([]DirEntry, error) {
	if v, ok := fs.dirs.Get(uint32(c)); ok {
		return v.([]DirEntry), nil
	}
	key := fmt.Sprintf("dir:%d", c)
	v, err, _ := fs.sg.Do(key, func() (interface{}, error) {
		return fs.readDirUncached(c)
	})
	if err != nil {
		return nil, err
	}
	entries := v.([]DirEntry)
	fs.dirs.Set(uint32(c), entries)
	return entries, nil
}

func (fs *FS) readDirUncached(c Cluster) ([]DirEntry, error) {
	var entries []DirEntry
	cur := c
	for {
		raw, err := fs.readClusterRaw(cur)
		if err != nil {
			return nil, err
		}
		for off := 0; off+direntSize <= len(raw); off += direntSize {
			ent := raw[off : off+direntSize]
			switch ent[0] {
			case 0x00:
				return entries, nil
			case 0xE5:
				continue
			}
			if Attributes(ent[11]) == AttrLFN {
				continue
			}
			entries = append(entries, parseDirEntry(ent))
		}
		if cur == ClusterRootDir {
			return entries, nil
		}
		next, err := fs.nextCluster(cur)
		if err != nil {
			return nil, err
		}
		if next == ClusterEndOfFile || next == ClusterBad {
			return entries, nil
		}
		cur = next
	}
}

/// Resolve walks an absolute, '/'-separated path from the root directory,
/// requiring every component but the last to name a directory.
func (fs *FS) Resolve(path string) (DirEntry, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return DirEntry{
			Name:       ShortFileName{},
			Attrs:      AttrDir,
			FirstClust: ClusterRootDir,
		}, nil
	}
	dir := ClusterRootDir
	var found DirEntry
	for i, comp := range comps {
		sfn, err := ParseShortFileName(comp)
		if err != nil {
			return DirEntry{}, err
		}
		entries, err := fs.ReadDir(dir)
		if err != nil {
			return DirEntry{}, err
		}
		var ok bool
		for _, e := range entries {
			if e.Name.Eq(sfn) {
				found = e
				ok = true
				break
			}
		}
		if !ok {
			return DirEntry{}, fmt.Errorf("fat16: %q not found", comp)
		}
		last := i == len(comps)-1
		if !last {
			if !found.Attrs.IsDir() {
				return DirEntry{}, fmt.Errorf("fat16: %q is not a directory", comp)
			}
			dir = found.FirstClust
		}
	}
	return found, nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

/// Open resolves path and returns a read-only File positioned at offset 0.
/// It fails with an error if path names a directory.
func (fs *FS) Open(path string) (*File, error) {
	ent, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if ent.Attrs.IsDir() {
		return nil, fmt.Errorf("fat16: %q is a directory", path)
	}
	return &File{fs: fs, ent: ent, curClust: ent.FirstClust, curClustIdx: 0}, nil
}
