// Package accnt implements per-process CPU time accounting: user/system
// nanosecond counters and an rusage-style encoding of them. proc's
// Process_t carries one, but neither the tick handler nor the syscall
// path updates it, and no syscall reports it.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"corekernel/util"
)

// Accnt_t accumulates per-process accounting information.
//
// Userns and Sysns both store runtime in nanoseconds. The embedded mutex
// lets callers take a consistent snapshot of both fields together when
// exporting usage statistics.
type Accnt_t struct {
	/// Userns is nanoseconds of user-mode time consumed.
	Userns int64
	/// Sysns is nanoseconds of kernel-mode time consumed.
	Sysns int64
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

/// Io_time removes time spent blocked on disk I/O from system time.
func (a *Accnt_t) Io_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

/// Sleep_time removes time spent blocked in the wait queue from system time.
func (a *Accnt_t) Sleep_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

/// Finish finalizes accounting by adding the time since inttime to system
/// time, called when a syscall returns to user mode.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

/// Add merges another accounting record into this one.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

/// Fetch returns a consistent snapshot of the accounting data, encoded as
/// an rusage-style byte slice.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	ru := a.to_rusage()
	a.Unlock()
	return ru
}

// to_rusage converts the accounting data into an rusage-style byte slice
// (two timeval pairs: user then system), suitable for copying to a user
// buffer.
func (a *Accnt_t) to_rusage() []uint8 {
	words := 4
	ret := make([]uint8, words*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
