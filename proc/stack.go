// Stack slot layout and allocation for component D (process VM). Grounded
// on the supplemented vfork stack-offset search loop described in
// SPEC_FULL.md §13 (originally `vm/stack.rs::vfork`).
package proc

import (
	"sync"

	"corekernel/defs"
	"corekernel/mem"
	"corekernel/vmm"
)

/// STACK_MAX is the top of the region given over to user stacks:
/// [0, STACK_MAX), the lower half of the user address range, divided into
/// 4 GiB slots, one per concurrent process.
const STACK_MAX uintptr = 0x4000_0000_0000

/// STACK_SLOT_SIZE is the size of a single process's stack slot.
const STACK_SLOT_SIZE uintptr = 1 << 32

/// STACK_SLOTS is the number of slots carved out of [0, STACK_MAX).
const STACK_SLOTS = int(STACK_MAX / STACK_SLOT_SIZE)

/// STACK_INIT_TOP is the initial RSP of a freshly spawned process:
/// STACK_MAX - 8, the highest slot's top minus one machine word.
const STACK_INIT_TOP uintptr = STACK_MAX - 8

/// STACK_INIT_PAGES is the number of pages mapped under a fresh stack
/// before the process runs; the rest of the slot is grown on demand by
/// the page-fault handler.
const STACK_INIT_PAGES = 4

// slotBase returns the base virtual address of stack slot i, counting
// down from the top of the region (slot 0 is the highest slot, matching
// STACK_INIT_TOP belonging to the first process spawned).
func slotBase(i int) uintptr {
	return STACK_MAX - uintptr(i+1)*STACK_SLOT_SIZE
}

// slotAllocator hands out stack slots, probing downward from slot 0 and
// taking the first unused one. There is no retry at another slot: if
// mapping into the chosen slot fails, vforkStack gives it back and fails.
type slotAllocator struct {
	sync.Mutex
	used map[int]bool
}

func newSlotAllocator() *slotAllocator {
	return &slotAllocator{used: map[int]bool{}}
}

func (sa *slotAllocator) alloc() (int, bool) {
	sa.Lock()
	defer sa.Unlock()
	for i := 0; i < STACK_SLOTS; i++ {
		if !sa.used[i] {
			sa.used[i] = true
			return i, true
		}
	}
	return 0, false
}

func (sa *slotAllocator) free(i int) {
	sa.Lock()
	defer sa.Unlock()
	delete(sa.used, i)
}

/// Stack describes a process's user stack region: the slot it lives in,
/// the current top (RSP at spawn time, or after vfork relocation), and
/// the lowest address mapped so far (grows downward on stack-fault).
type Stack struct {
	Slot   int
	Top    uintptr
	Bottom uintptr
}

// newStack maps STACK_INIT_PAGES pages at the top of slot i and returns
// the resulting Stack descriptor.
func newStack(as *vmm.AddressSpace_t, slot int) (Stack, defs.Err_t) {
	base := slotBase(slot)
	top := base + STACK_SLOT_SIZE - 8
	bottom := base + STACK_SLOT_SIZE - uintptr(STACK_INIT_PAGES*mem.PGSIZE)
	if err := as.MapRange(bottom, STACK_INIT_PAGES, vmm.PTE_U|vmm.PTE_W); err != 0 {
		return Stack{}, err
	}
	return Stack{Slot: slot, Top: top, Bottom: bottom}, 0
}

/// Grow extends the stack downward to cover faultva, mapping whatever
/// pages lie between faultva and the current bottom. It refuses to grow
/// past the slot's base (a real fault, not a stack-growth opportunity).
func (s *Stack) Grow(as *vmm.AddressSpace_t, faultva uintptr) defs.Err_t {
	base := slotBase(s.Slot)
	if faultva < base || faultva >= s.Bottom {
		return defs.EFAULT
	}
	newBottom := faultva &^ (uintptr(mem.PGSIZE) - 1)
	npages := int(s.Bottom-newBottom) / mem.PGSIZE
	if err := as.MapRange(newBottom, npages, vmm.PTE_U|vmm.PTE_W); err != 0 {
		return err
	}
	s.Bottom = newBottom
	return 0
}

/// InSlot reports whether va falls within this stack's 4 GiB slot.
func (s *Stack) InSlot(va uintptr) bool {
	base := slotBase(s.Slot)
	return va >= base && va < base+STACK_SLOT_SIZE
}

/// Pages returns the number of frames currently backing the stack.
func (s *Stack) Pages() int {
	top := slotBase(s.Slot) + STACK_SLOT_SIZE
	return int(top-s.Bottom) / mem.PGSIZE
}

// vforkStack allocates a new slot for a vfork child and physically
// copies the parent's stack bytes into it, byte-for-byte, preserving
// parent.Top's offset within the slot so the child's relocated RSP can
// be computed by the same slot-relative offset.
func vforkStack(as *vmm.AddressSpace_t, parent Stack, slots *slotAllocator) (Stack, uintptr, defs.Err_t) {
	slot, ok := slots.alloc()
	if !ok {
		return Stack{}, 0, defs.ENOMEM
	}
	pbase := slotBase(parent.Slot)
	cbase := slotBase(slot)
	bottomOff := pbase + STACK_SLOT_SIZE - parent.Bottom
	npages := int(bottomOff) / mem.PGSIZE
	cbottom := cbase + STACK_SLOT_SIZE - bottomOff

	if err := as.MapRange(cbottom, npages, vmm.PTE_U|vmm.PTE_W); err != 0 {
		slots.free(slot)
		return Stack{}, 0, err
	}

	for i := 0; i < npages; i++ {
		srcva := parent.Bottom + uintptr(i*mem.PGSIZE)
		dstva := cbottom + uintptr(i*mem.PGSIZE)
		spa, _, ok := as.Translate(srcva)
		if !ok {
			continue
		}
		dpa, _, ok := as.Translate(dstva)
		if !ok {
			continue
		}
		copy(mem.Physmem.Dmap8(dpa), mem.Physmem.Dmap8(spa)[:mem.PGSIZE])
	}

	topOff := pbase + STACK_SLOT_SIZE - parent.Top
	ctop := cbase + STACK_SLOT_SIZE - topOff

	return Stack{Slot: slot, Top: ctop, Bottom: cbottom}, ctop, 0
}
