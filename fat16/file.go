package fat16

import (
	"fmt"
	"io"
)

/// File is a read-only cursor over a FAT16 file's cluster chain. There is
/// no Seek or Write: this filesystem is read-only, and nothing in the
/// kernel calls for them.
type File struct {
	fs  *FS
	ent DirEntry

	pos uint32 // byte offset from the start of the file

	curClust    Cluster // cluster backing the current position
	curClustIdx uint32  // index of curClust within the chain (0-based)
}

/// Name returns the file's 8.3 short name.
func (f *File) Name() ShortFileName { return f.ent.Name }

/// Size returns the file's length in bytes, as recorded in its directory
/// entry.
func (f *File) Size() uint32 { return f.ent.Size }

// ensureCorrectCluster walks the chain forward from whatever cluster is
// currently cached until it reaches the cluster that backs f.pos; when
// f.pos lies before the cached cluster, the walk restarts from the
// file's first cluster.
func (f *File) ensureCorrectCluster() error {
	clusterBytes := f.fs.bpb.ClusterBytes()
	wantIdx := f.pos / clusterBytes
	if wantIdx < f.curClustIdx {
		f.curClust = f.ent.FirstClust
		f.curClustIdx = 0
	}
	for f.curClustIdx < wantIdx {
		next, err := f.fs.nextCluster(f.curClust)
		if err != nil {
			return err
		}
		if next == ClusterEndOfFile || next == ClusterBad {
			return io.EOF
		}
		f.curClust = next
		f.curClustIdx++
	}
	return nil
}

/// Read fills buf with up to len(buf) bytes starting at the file's current
/// position, advancing the cursor by the number of bytes returned. It
/// returns io.EOF once the cursor reaches the recorded file size or the
/// cluster chain ends early.
func (f *File) Read(buf []byte) (int, error) {
	if f.pos >= f.ent.Size {
		return 0, io.EOF
	}
	clusterBytes := f.fs.bpb.ClusterBytes()
	total := 0
	for total < len(buf) && f.pos < f.ent.Size {
		if err := f.ensureCorrectCluster(); err != nil {
			if err == io.EOF && total > 0 {
				return total, nil
			}
			return total, err
		}
		raw, err := f.fs.readClusterRaw(f.curClust)
		if err != nil {
			return total, fmt.Errorf("fat16: reading file cluster: %w", err)
		}
		offsetInCluster := f.pos % clusterBytes
		avail := clusterBytes - offsetInCluster
		remaining := f.ent.Size - f.pos
		n := uint32(len(buf) - total)
		if avail < n {
			n = avail
		}
		if remaining < n {
			n = remaining
		}
		copy(buf[total:uint32(total)+n], raw[offsetInCluster:offsetInCluster+n])
		total += int(n)
		f.pos += n
	}
	return total, nil
}
