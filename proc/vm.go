// ProcessVm: a process's virtual memory (component D). Owns the shared
// page-table handle, the stack region, the optional heap, and the set of
// code page ranges loaded by elfload.
package proc

import (
	"sync"

	"corekernel/defs"
	"corekernel/elfload"
	"corekernel/mem"
	"corekernel/vmm"
)

/// CodeRange describes one mapped, immutable-after-load code/data segment.
type CodeRange struct {
	Start  uintptr
	Npages int
}

/// ProcessVm is shared by reference between a vfork parent and child: the
/// embedded refcount is bumped on vfork and dropped on Cleanup, which only
/// actually tears down the address space once it reaches zero.
type ProcessVm struct {
	mu sync.Mutex

	AS       *vmm.AddressSpace_t
	Stack    Stack
	HeapLo   uintptr // fixed heap region start, 0 if no heap yet
	HeapBrk  uintptr // current program break; 0 means unset
	Code     []CodeRange
	CodeSize int64

	refcount int32
	slots    *slotAllocator
}

const heapRegionStart uintptr = 0x0000_2000_0000_0000

/// NewProcessVm loads elf into a fresh address space and maps an initial
/// stack, returning the assembled ProcessVm and its entry point.
func NewProcessVm(elf []byte, slots *slotAllocator) (*ProcessVm, uintptr, defs.Err_t) {
	as, ok := vmm.NewAddressSpace()
	if !ok {
		return nil, 0, defs.ENOMEM
	}
	img, err := elfload.Load(as, elf)
	if err != nil {
		return nil, 0, defs.ENOMEM
	}
	slot, ok := slots.alloc()
	if !ok {
		return nil, 0, defs.ENOMEM
	}
	stack, errc := newStack(as, slot)
	if errc != 0 {
		slots.free(slot)
		return nil, 0, errc
	}
	var code []CodeRange
	var codeSize int64
	for _, r := range img.Ranges {
		code = append(code, CodeRange{Start: r.Start, Npages: r.Npages})
		codeSize += int64(r.Npages * mem.PGSIZE)
	}
	pv := &ProcessVm{
		AS:       as,
		Stack:    stack,
		HeapLo:   heapRegionStart,
		HeapBrk:  heapRegionStart,
		Code:     code,
		CodeSize: codeSize,
		refcount: 1,
		slots:    slots,
	}
	return pv, img.Entry, 0
}

/// Share increments the reference count for a vfork child that reuses
/// this ProcessVm's page table (but gets its own Stack via VforkDup).
func (pv *ProcessVm) Share() {
	pv.mu.Lock()
	pv.refcount++
	pv.mu.Unlock()
}

/// VforkDup builds a child ProcessVm that shares pv's page table (the
/// handle is the same *vmm.AddressSpace_t, refcounted) but has a freshly
/// allocated, physically-copied stack in a different slot.
func (pv *ProcessVm) VforkDup() (*ProcessVm, uintptr, defs.Err_t) {
	child := &ProcessVm{
		AS:       pv.AS,
		HeapLo:   pv.HeapLo,
		HeapBrk:  pv.HeapBrk,
		Code:     pv.Code,
		CodeSize: pv.CodeSize,
		refcount: 1,
		slots:    pv.slots,
	}
	stack, newRsp, err := vforkStack(pv.AS, pv.Stack, pv.slots)
	if err != 0 {
		return nil, 0, err
	}
	child.Stack = stack
	pv.Share()
	return child, newRsp, 0
}

/// Brk implements the Brk syscall: addr==0 returns the current break;
/// otherwise it grows or shrinks the heap to addr, mapping/unmapping
/// whole pages. The break is left unchanged on allocation failure.
func (pv *ProcessVm) Brk(addr uintptr) (uintptr, defs.Err_t) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if addr == 0 {
		return pv.HeapBrk, 0
	}
	oldpg := roundup(pv.HeapBrk, mem.PGSIZE)
	newpg := roundup(addr, mem.PGSIZE)
	switch {
	case newpg > oldpg:
		npages := int(newpg-oldpg) / mem.PGSIZE
		if err := pv.AS.MapRange(oldpg, npages, vmm.PTE_U|vmm.PTE_W); err != 0 {
			return 0, err
		}
	case newpg < oldpg:
		npages := int(oldpg-newpg) / mem.PGSIZE
		pv.AS.UnmapRange(newpg, npages)
	}
	pv.HeapBrk = addr
	return addr, 0
}

func roundup(v uintptr, n int) uintptr {
	un := uintptr(n)
	return (v + un - 1) &^ (un - 1)
}

/// PageFault resolves a fault at va: growth of the current stack slot
/// succeeds silently; anything else is reported to the caller, who kills
/// the offending process (or panics, for a kernel fault).
func (pv *ProcessVm) PageFault(va uintptr) defs.Err_t {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if pv.Stack.InSlot(va) {
		return pv.Stack.Grow(pv.AS, va)
	}
	return defs.EFAULT
}

/// Usage reports memory usage in bytes: stack frames + heap frames + code
/// bytes.
func (pv *ProcessVm) Usage() int64 {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	stackBytes := int64(pv.Stack.Pages() * mem.PGSIZE)
	heapBytes := int64(0)
	if pv.HeapBrk > pv.HeapLo {
		heapBytes = int64(roundup(pv.HeapBrk, mem.PGSIZE) - roundup(pv.HeapLo, mem.PGSIZE))
	}
	return stackBytes + heapBytes + pv.CodeSize
}

/// Cleanup tears down this ProcessVm's stack unconditionally, and — once
/// the last sharer has called Cleanup — the heap, code mappings, and the
/// page table itself. Safe to call more than once; a second call is a
/// no-op since refcount never goes negative and AS is nilled after the
/// real teardown.
func (pv *ProcessVm) Cleanup() {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if pv.AS == nil {
		return
	}
	npages := pv.Stack.Pages()
	pv.AS.UnmapRange(pv.Stack.Bottom, npages)
	pv.slots.free(pv.Stack.Slot)

	pv.refcount--
	if pv.refcount > 0 {
		pv.AS = nil
		return
	}
	if pv.HeapBrk > pv.HeapLo {
		lo := roundup(pv.HeapLo, mem.PGSIZE)
		hi := roundup(pv.HeapBrk, mem.PGSIZE)
		pv.AS.UnmapRange(lo, int(hi-lo)/mem.PGSIZE)
	}
	for _, cr := range pv.Code {
		pv.AS.UnmapRange(cr.Start, cr.Npages)
	}
	pv.AS.Free()
	pv.AS = nil
}
