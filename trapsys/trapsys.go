// Package trapsys implements component G: the syscall table, the
// user-pointer validation routine every syscall funnels through, and the
// dispatcher a trap handler calls after saving a faulted or trapped
// process's register context. There is no real IDT or IST in a hosted
// reimplementation; IdtLayout below documents the vector assignment the
// bare-metal kernel would install, and Dispatch plays the trampoline's
// role of running the handler with "interrupts disabled" (single-threaded,
// uninterrupted) and writing the result back into the saved context's RAX.
package trapsys

import (
	"fmt"
	"io"

	"corekernel/defs"
	"corekernel/fat16"
	"corekernel/mem"
	"corekernel/proc"
	"corekernel/sem"
	"corekernel/vmm"
)

// IdtLayout documents the vector assignment a bare-metal build installs:
// exceptions vectored to handlers; timer and syscall each own a dedicated
// IST stack; serial shares the IRQ-base block with the timer.
const (
	IdtVectorTimer   = 0x20 // IRQ base + Timer index
	IdtVectorSerial  = 0x24 // IRQ base + Serial index
	IdtVectorSyscall = 0x80 // ring-3 callable, fixed vector
)

// Syscall numbers, fixed by the ABI user programs link against.
const (
	SysRead       = 0
	SysWrite      = 1
	SysOpen       = 14
	SysClose      = 15
	SysListDir    = 16
	SysGetPid     = 39
	SysVFork      = 40
	SysSpawn      = 59
	SysExit       = 60
	SysWaitPid    = 61
	SysKill       = 62
	SysSem        = 66
	SysBrk        = 67
	SysListApp    = 65529
	SysStat       = 65530
	SysAllocate   = 65533
	SysDeallocate = 65534
)

// Sem syscall subops.
const (
	SemNew    = 0
	SemWait   = 1
	SemSignal = 2
	SemRemove = 3
)

// ErrReturn is the usize::MAX sentinel a failed syscall returns in RAX.
const ErrReturn uint64 = ^uint64(0)

// BrkFailed is Brk's failure sentinel, distinct from a valid new break.
const BrkFailed uint64 = ErrReturn

// Console is the byte-stream device backing fd 0/1/2: In is drained
// non-blockingly by Read, Out receives Write's bytes (forwarded to the
// serial port by the caller's io.Writer).
type Console struct {
	In  interface{ Read(buf []byte) int }
	Out io.Writer
}

// Dispatcher wires the syscall table to the kernel's core subsystems.
type Dispatcher struct {
	Mgr     *proc.Manager
	FS      *fat16.FS
	Console Console
	// Allocator backs Allocate/Deallocate (#65533/65534) when set; nil
	// means no kernel heap allocator collaborator is wired, and both
	// syscalls fail.
	Allocator mem.KernelAllocator
}

// Outcome is what Dispatch hands back to the trap trampoline: either a
// return value to install in the interrupted process's RAX before
// resuming it, or a different process's context to switch to (the
// syscall blocked).
type Outcome struct {
	Blocked    bool
	Context    proc.Context_t
	NextPid    defs.ProcessId
	ReturnRAX  uint64
}

// ValidateUserPtr checks that [ptr, ptr+length) lies entirely in the user
// half of the address space and that every page in the range is currently
// mapped user-accessible. It never touches memory on failure.
func ValidateUserPtr(as *vmm.AddressSpace_t, ptr, length uintptr) defs.Err_t {
	if length == 0 {
		return 0
	}
	if ptr < vmm.USERMIN {
		return defs.EFAULT
	}
	end := ptr + length
	if end < ptr || end < vmm.USERMIN {
		return defs.EFAULT
	}
	start := ptr &^ uintptr(mem.PGSIZE-1)
	for va := start; va < end; va += mem.PGSIZE {
		_, perms, ok := as.Translate(va)
		if !ok {
			return defs.EFAULT
		}
		if perms&mem.PTE_U == 0 {
			return defs.EFAULT
		}
	}
	return 0
}

// CopyFromUser validates and copies length bytes starting at ptr out of
// the process's address space, stitching across page boundaries through
// the physical-memory arena.
func CopyFromUser(as *vmm.AddressSpace_t, ptr, length uintptr) ([]byte, defs.Err_t) {
	if err := ValidateUserPtr(as, ptr, length); err != 0 {
		return nil, err
	}
	out := make([]byte, length)
	copied := uintptr(0)
	for copied < length {
		va := ptr + copied
		pa, _, ok := as.Translate(va)
		if !ok {
			return nil, defs.EFAULT
		}
		pageOff := va & uintptr(mem.PGSIZE-1)
		n := uintptr(mem.PGSIZE) - pageOff
		if rem := length - copied; n > rem {
			n = rem
		}
		page := mem.Physmem.Dmap8(pa &^ mem.Pa_t(mem.PGSIZE-1))
		copy(out[copied:copied+n], page[pageOff:pageOff+n])
		copied += n
	}
	return out, 0
}

// CopyToUser validates ptr's range and writes data into it.
func CopyToUser(as *vmm.AddressSpace_t, ptr uintptr, data []byte) defs.Err_t {
	length := uintptr(len(data))
	if err := ValidateUserPtr(as, ptr, length); err != 0 {
		return err
	}
	copied := uintptr(0)
	for copied < length {
		va := ptr + copied
		pa, _, ok := as.Translate(va)
		if !ok {
			return defs.EFAULT
		}
		pageOff := va & uintptr(mem.PGSIZE-1)
		n := uintptr(mem.PGSIZE) - pageOff
		if rem := length - copied; n > rem {
			n = rem
		}
		page := mem.Physmem.Dmap8(pa &^ mem.Pa_t(mem.PGSIZE-1))
		copy(page[pageOff:pageOff+n], data[copied:copied+n])
		copied += n
	}
	return 0
}

// Dispatch runs the syscall numbered by num for pid, with args holding
// RDI/RSI/RDX. On a non-blocking syscall it returns Outcome{Blocked:
// false, ReturnRAX: ...} for the trampoline to install in the saved
// context before iretq. On a blocking syscall it calls Block+SwitchNext
// itself and returns the next process to resume instead.
func (d *Dispatcher) Dispatch(pid defs.ProcessId, num uint64, args [3]uint64) Outcome {
	p := d.Mgr.Process(pid)
	if p == nil || p.Vm == nil {
		return Outcome{ReturnRAX: ErrReturn}
	}
	as := p.Vm.AS

	switch num {
	case SysRead:
		return d.sysRead(p, as, args)
	case SysWrite:
		return Outcome{ReturnRAX: d.sysWrite(p, as, args)}
	case SysOpen:
		return Outcome{ReturnRAX: d.sysOpen(p, as, args)}
	case SysClose:
		fd := int(args[0])
		if err := p.Data.CloseResource(fd); err != 0 {
			return Outcome{ReturnRAX: ErrReturn}
		}
		return Outcome{ReturnRAX: 0}
	case SysListDir:
		return Outcome{ReturnRAX: d.sysListDir(as, args)}
	case SysGetPid:
		return Outcome{ReturnRAX: uint64(p.Pid)}
	case SysVFork:
		child := d.Mgr.Vfork(pid)
		return Outcome{ReturnRAX: uint64(child)}
	case SysSpawn:
		return Outcome{ReturnRAX: d.sysSpawn(p, as, pid, args)}
	case SysExit:
		return d.sysExit(pid, args)
	case SysWaitPid:
		return d.sysWaitPid(pid, defs.ProcessId(args[0]))
	case SysKill:
		err := d.Mgr.Kill(defs.ProcessId(args[0]), 0)
		return Outcome{ReturnRAX: uint64(err)}
	case SysSem:
		return d.sysSem(p, pid, args)
	case SysBrk:
		return Outcome{ReturnRAX: d.sysBrk(p, args)}
	case SysListApp:
		return Outcome{ReturnRAX: uint64(len(d.Mgr.ListApp()))}
	case SysStat:
		return Outcome{ReturnRAX: 0}
	case SysAllocate:
		if d.Allocator == nil {
			return Outcome{ReturnRAX: ErrReturn}
		}
		ptr, ok := d.Allocator.Alloc(uintptr(args[0]), uintptr(args[1]))
		if !ok {
			return Outcome{ReturnRAX: ErrReturn}
		}
		return Outcome{ReturnRAX: uint64(ptr)}
	case SysDeallocate:
		if d.Allocator == nil {
			return Outcome{ReturnRAX: ErrReturn}
		}
		d.Allocator.Free(uintptr(args[0]))
		return Outcome{ReturnRAX: 0}
	default:
		return Outcome{ReturnRAX: ErrReturn}
	}
}

func (d *Dispatcher) sysRead(p *proc.Process_t, as *vmm.AddressSpace_t, args [3]uint64) Outcome {
	fd, ptr, length := int(args[0]), uintptr(args[1]), uintptr(args[2])
	res, rerr := p.Data.Resource(fd)
	if rerr != 0 {
		return Outcome{ReturnRAX: ErrReturn}
	}
	buf := make([]byte, length)
	var n int
	var err error
	switch res.Kind {
	case proc.ResConsole:
		n = d.Console.In.Read(buf)
	case proc.ResFile:
		n, err = res.File.Read(buf)
		if err != nil && n == 0 {
			n = 0
		}
	default:
		n = 0
	}
	if n > 0 {
		if cerr := CopyToUser(as, ptr, buf[:n]); cerr != 0 {
			return Outcome{ReturnRAX: ErrReturn}
		}
	}
	if n == 0 && res.Kind == proc.ResConsole {
		// Console reads never block: an empty input queue just returns 0
		// and the caller loops.
	}
	return Outcome{ReturnRAX: uint64(n)}
}

func (d *Dispatcher) sysWrite(p *proc.Process_t, as *vmm.AddressSpace_t, args [3]uint64) uint64 {
	fd, ptr, length := int(args[0]), uintptr(args[1]), uintptr(args[2])
	res, rerr := p.Data.Resource(fd)
	if rerr != 0 || res.Kind != proc.ResConsole {
		return ErrReturn
	}
	buf, err := CopyFromUser(as, ptr, length)
	if err != 0 {
		return ErrReturn
	}
	if d.Console.Out == nil {
		return uint64(len(buf))
	}
	n, werr := d.Console.Out.Write(buf)
	if werr != nil {
		return ErrReturn
	}
	return uint64(n)
}

func (d *Dispatcher) sysOpen(p *proc.Process_t, as *vmm.AddressSpace_t, args [3]uint64) uint64 {
	ptr, length := uintptr(args[0]), uintptr(args[1])
	raw, err := CopyFromUser(as, ptr, length)
	if err != 0 {
		return ErrReturn
	}
	f, ferr := d.FS.Open(string(raw))
	if ferr != nil {
		return ErrReturn
	}
	fd := p.Data.AddResource(proc.Resource{Kind: proc.ResFile, File: f})
	return uint64(fd)
}

func (d *Dispatcher) sysListDir(as *vmm.AddressSpace_t, args [3]uint64) uint64 {
	ptr, length := uintptr(args[0]), uintptr(args[1])
	raw, err := CopyFromUser(as, ptr, length)
	if err != 0 {
		return ErrReturn
	}
	ent, ferr := d.FS.Resolve(string(raw))
	if ferr != nil || !ent.Attrs.IsDir() {
		return ErrReturn
	}
	if _, ferr := d.FS.ReadDir(ent.FirstClust); ferr != nil {
		return ErrReturn
	}
	return 0
}

func (d *Dispatcher) sysSpawn(p *proc.Process_t, as *vmm.AddressSpace_t, pid defs.ProcessId, args [3]uint64) uint64 {
	ptr, length := uintptr(args[0]), uintptr(args[1])
	raw, err := CopyFromUser(as, ptr, length)
	if err != 0 {
		return 0
	}
	child := d.Mgr.Spawn(string(raw), pid)
	return uint64(child)
}

func (d *Dispatcher) sysExit(pid defs.ProcessId, args [3]uint64) Outcome {
	code := int(args[0])
	d.Mgr.Kill(pid, code)
	d.Mgr.Save(proc.Context_t{})
	next := d.Mgr.SwitchNext()
	return Outcome{Blocked: true, NextPid: next, Context: d.Mgr.Process(next).Ctx}
}

func (d *Dispatcher) sysWaitPid(pid, target defs.ProcessId) Outcome {
	code, ok, blocked := d.Mgr.WaitPid(pid, target)
	if blocked {
		d.Mgr.Block(pid)
		next := d.Mgr.SwitchNext()
		return Outcome{Blocked: true, NextPid: next, Context: d.Mgr.Process(next).Ctx}
	}
	if !ok {
		return Outcome{ReturnRAX: ErrReturn}
	}
	return Outcome{ReturnRAX: uint64(int64(code))}
}

func (d *Dispatcher) sysSem(p *proc.Process_t, pid defs.ProcessId, args [3]uint64) Outcome {
	op, key, value := args[0], uint32(args[1]), int(args[2])
	switch op {
	case SemNew:
		r := p.Data.Sems.New(key, value)
		return Outcome{ReturnRAX: semResultRAX(r)}
	case SemWait:
		r := p.Data.Sems.Wait(key, pid)
		if r == sem.Block {
			d.Mgr.Block(pid)
			next := d.Mgr.SwitchNext()
			return Outcome{Blocked: true, NextPid: next, Context: d.Mgr.Process(next).Ctx}
		}
		return Outcome{ReturnRAX: semResultRAX(r)}
	case SemSignal:
		r, woken := p.Data.Sems.Signal(key)
		if r == sem.WakeUp && woken != 0 {
			d.Mgr.WakeUp(woken, nil)
		}
		return Outcome{ReturnRAX: semResultRAX(r)}
	case SemRemove:
		p.Data.Sems.Remove(key)
		return Outcome{ReturnRAX: 0}
	default:
		return Outcome{ReturnRAX: ErrReturn}
	}
}

func semResultRAX(r sem.Result) uint64 {
	switch r {
	case sem.Ok, sem.WakeUp:
		return 0
	case sem.NotExist:
		return ErrReturn
	default:
		return 0
	}
}

func (d *Dispatcher) sysBrk(p *proc.Process_t, args [3]uint64) uint64 {
	addr := uintptr(args[0])
	newBrk, err := p.Vm.Brk(addr)
	if err != 0 {
		return BrkFailed
	}
	return uint64(newBrk)
}

// FaultKill handles an unhandled hard fault in pid. A user process is
// killed with exit code -1. For the kernel PID nothing is killed; an
// error carrying rip and trace (a caller-rendered description of the
// faulting instruction, such as caller.FaultTrace produces) is returned
// instead. Nothing is logged, and text is not used.
func FaultKill(mgr *proc.Manager, pid defs.ProcessId, rip uint64, text []byte, trace string) error {
	if pid == defs.KernelPID {
		return fmt.Errorf("kernel fault at %#x: %s", rip, trace)
	}
	mgr.Kill(pid, -1)
	return nil
}
