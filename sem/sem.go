// Package sem implements the per-process-group keyed counting semaphore
// set: a map from a 32-bit key to a count and a strict-FIFO queue of
// waiting PIDs.
package sem

import (
	"sync"

	"corekernel/defs"
)

/// Result tags the outcome of a semaphore operation.
type Result int

const (
	Ok Result = iota
	Block
	WakeUp
	NotExist
)

type entry struct {
	mu      sync.Mutex
	count   int
	waiters []defs.ProcessId
}

/// Set is a process group's table of semaphores, keyed by a 32-bit value
/// chosen by user code (e.g. the dining-philosophers Waiter semaphore).
type Set struct {
	mu      sync.Mutex
	entries map[uint32]*entry
}

/// NewSet returns an empty semaphore set.
func NewSet() *Set {
	return &Set{entries: map[uint32]*entry{}}
}

/// New creates a semaphore for key with the given initial count. It fails
/// (NotExist... more precisely "already exists") if the key is already
/// present.
func (s *Set) New(key uint32, initial int) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return NotExist
	}
	s.entries[key] = &entry{count: initial}
	return Ok
}

/// Wait decrements the semaphore's count if positive and returns Ok;
/// otherwise it appends pid to the FIFO waiters queue and returns Block,
/// signaling the caller that pid must be parked.
func (s *Set) Wait(key uint32, pid defs.ProcessId) Result {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return NotExist
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count > 0 {
		e.count--
		return Ok
	}
	e.waiters = append(e.waiters, pid)
	return Block
}

/// Signal pops the head waiter and returns WakeUp(pid) if any are
/// queued; otherwise it increments the count and returns Ok.
func (s *Set) Signal(key uint32) (Result, defs.ProcessId) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return NotExist, 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.waiters) > 0 {
		pid := e.waiters[0]
		e.waiters = e.waiters[1:]
		return WakeUp, pid
	}
	e.count++
	return Ok, 0
}

/// Remove deletes the entry for key unconditionally. Any remaining
/// waiters are left dangling; a correct caller scrubs a killed PID from
/// every waiter list at kill time instead. Scrub below implements that.
func (s *Set) Remove(key uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

/// Scrub removes pid from every semaphore's waiter queue in this set,
/// called by the process manager's Kill path so a dead PID is never
/// handed a WakeUp result.
func (s *Set) Scrub(pid defs.ProcessId) {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.mu.Lock()
		out := e.waiters[:0]
		for _, w := range e.waiters {
			if w != pid {
				out = append(out, w)
			}
		}
		e.waiters = out
		e.mu.Unlock()
	}
}
