// ProcessData: the reference-counted state a vfork family shares by
// reference: environment, open resources, and the per-process-group
// semaphore set.
package proc

import (
	"sync"

	"corekernel/defs"
	"corekernel/sem"
)

/// ResourceKind tags the variant a Resource holds.
type ResourceKind int

const (
	ResConsole ResourceKind = iota
	ResFile
	ResNull
)

/// FileHandle is the subset of fat16.File a Resource needs; kept as an
/// interface here so proc does not import fat16 directly (avoiding an
/// import cycle, since fat16 has no reason to know about processes).
type FileHandle interface {
	Read(buf []byte) (int, error)
}

/// Resource is a tagged variant: Console(stdin/stdout/stderr), File(FAT16
/// handle), or Null.
type Resource struct {
	Kind ResourceKind
	File FileHandle
}

/// ConsoleStream distinguishes stdin/stdout/stderr for a Console resource.
type ConsoleStream int

const (
	Stdin ConsoleStream = iota
	Stdout
	Stderr
)

/// ProcessData holds everything a vfork family shares by reference.
type ProcessData struct {
	envMu sync.Mutex
	env   map[string]string

	resMu   sync.Mutex
	res     map[int]Resource
	nextFd  int
	refcnt  int32
	refLock sync.Mutex

	Sems *sem.Set
}

/// NewProcessData creates a fresh ProcessData with fd 0,1,2 pre-opened as
/// stdin/stdout/stderr.
func NewProcessData() *ProcessData {
	pd := &ProcessData{
		env:    map[string]string{},
		res:    map[int]Resource{},
		nextFd: 3,
		refcnt: 1,
		Sems:   sem.NewSet(),
	}
	pd.res[0] = Resource{Kind: ResConsole}
	pd.res[1] = Resource{Kind: ResConsole}
	pd.res[2] = Resource{Kind: ResConsole}
	return pd
}

/// Share increments the reference count for a vfork child.
func (pd *ProcessData) Share() {
	pd.refLock.Lock()
	pd.refcnt++
	pd.refLock.Unlock()
}

/// Drop decrements the reference count, returning true when this was the
/// last sharer (the caller should then release any process-exclusive
/// cleanup, though the resource table itself needs no frame teardown).
func (pd *ProcessData) Drop() bool {
	pd.refLock.Lock()
	defer pd.refLock.Unlock()
	pd.refcnt--
	return pd.refcnt == 0
}

/// Env looks up an environment variable.
func (pd *ProcessData) Env(key string) (string, bool) {
	pd.envMu.Lock()
	defer pd.envMu.Unlock()
	v, ok := pd.env[key]
	return v, ok
}

/// SetEnv sets an environment variable.
func (pd *ProcessData) SetEnv(key, val string) {
	pd.envMu.Lock()
	defer pd.envMu.Unlock()
	pd.env[key] = val
}

/// AddResource installs r at the next never-used fd and returns it; fds
/// released by CloseResource are not handed out again.
func (pd *ProcessData) AddResource(r Resource) int {
	pd.resMu.Lock()
	defer pd.resMu.Unlock()
	fd := pd.nextFd
	pd.nextFd++
	pd.res[fd] = r
	return fd
}

/// Resource returns the resource at fd, if open.
func (pd *ProcessData) Resource(fd int) (Resource, defs.Err_t) {
	pd.resMu.Lock()
	defer pd.resMu.Unlock()
	r, ok := pd.res[fd]
	if !ok {
		return Resource{}, defs.EINVAL
	}
	return r, 0
}

/// CloseResource removes fd from the table.
func (pd *ProcessData) CloseResource(fd int) defs.Err_t {
	pd.resMu.Lock()
	defer pd.resMu.Unlock()
	if _, ok := pd.res[fd]; !ok {
		return defs.EINVAL
	}
	delete(pd.res, fd)
	return 0
}
