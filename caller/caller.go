// Package caller formats diagnostic context for kernel panics and hard
// faults: a Go call-stack dump for internal panics, and a decoded x86
// instruction trace at the faulting RIP for hardware exceptions delivered
// through the trap dispatcher (component G).
package caller

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/arch/x86/x86asm"
)

// Callerdump prints the Go call stack starting at the given frame depth.
func Callerdump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

/// FaultTrace decodes the bytes at the faulting RIP and renders a short
/// "<mnemonic> <operands> @ 0x<rip>" line for inclusion in a hard-fault
/// panic message, generalizing Callerdump's Go-stack dump to the x86
/// instruction stream a page fault or GP fault interrupts.
func FaultTrace(rip uint64, text []byte) string {
	inst, err := x86asm.Decode(text, 64)
	if err != nil {
		return fmt.Sprintf("<undecodable @ 0x%x: %v>", rip, err)
	}
	return fmt.Sprintf("%s @ 0x%x", x86asm.GNUSyntax(inst, rip, nil), rip)
}

// Distinct_caller_t tracks whether a call chain has been seen before, used
// to rate-limit a repeated warning to its first occurrence per call path.
// Fields are protected by the embedded mutex.
type Distinct_caller_t struct {
	sync.Mutex
	Enabled bool
	did     map[uintptr]bool
	Whitel  map[string]bool
}

// _pchash returns a poor-man's hash of the given RIP values, probably unique.
func (dc *Distinct_caller_t) _pchash(pcs []uintptr) uintptr {
	if len(pcs) == 0 {
		panic("d'oh")
	}
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Len returns the number of unique caller paths recorded.
func (dc *Distinct_caller_t) Len() int {
	dc.Lock()
	ret := len(dc.did)
	dc.Unlock()
	return ret
}

// Distinct reports whether the current call chain is new. It returns true
// along with a formatted stack trace when not seen before.
func (dc *Distinct_caller_t) Distinct() (bool, string) {
	dc.Lock()
	defer dc.Unlock()
	if !dc.Enabled {
		return false, ""
	}

	if dc.did == nil {
		dc.did = make(map[uintptr]bool)
	}

	var pcs []uintptr
	for sz, got := 30, 30; got >= sz; sz *= 2 {
		pcs = make([]uintptr, 30)
		got = runtime.Callers(3, pcs)
		if got == 0 {
			panic("no")
		}
	}
	h := dc._pchash(pcs)
	if ok := dc.did[h]; !ok {
		dc.did[h] = true
		frames := runtime.CallersFrames(pcs)
		fs := ""
		for {
			fr, more := frames.Next()
			if ok := dc.Whitel[fr.Function]; ok {
				return false, ""
			}
			if fs == "" {
				fs = fmt.Sprintf("%v (%v:%v)\n", fr.Function, fr.File, fr.Line)
			} else {
				fs += fmt.Sprintf("\t%v (%v:%v)\n", fr.Function, fr.File, fr.Line)
			}
			if !more || fr.Function == "runtime.goexit" {
				break
			}
		}
		return true, fs
	}
	return false, ""
}
