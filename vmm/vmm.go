// Package vmm implements the page-table manager (component B): building
// and tearing down 4-level x86_64 page tables over the frame allocator in
// package mem, and the eager-copy address-space duplication fork() uses.
//
// Unlike a copy-on-write design, this reimplementation's fork() eagerly
// copies every writable segment rather than deferring the copy to the
// first write fault, so there is no PTE_COW bit and no page-fault-driven
// lazy copy here.
package vmm

import (
	"unsafe"

	"corekernel/defs"
	"corekernel/mem"
)

/// PTE_P marks a page-table entry present.
const PTE_P = mem.PTE_P

/// PTE_W marks a page-table entry writable.
const PTE_W = mem.PTE_W

/// PTE_U marks a page-table entry user-accessible.
const PTE_U = mem.PTE_U

/// PTE_ADDR extracts the frame-number bits of a page-table entry.
const PTE_ADDR = mem.PTE_ADDR

/// USERMIN is the lowest user pointer the syscall layer accepts
/// (trapsys.ValidateUserPtr); mappings themselves may lie below it.
const USERMIN uintptr = 1 << 39

// pgbits splits a canonical virtual address into its four 9-bit page-table
// indices (level 4 down to level 1).
func pgbits(v uintptr) (l4, l3, l2, l1 uint) {
	lb := func(shift uint) uint {
		return uint(v>>shift) & 0x1ff
	}
	return uint(lb(39)), uint(lb(30)), uint(lb(21)), uint(lb(12))
}

/// AddressSpace_t owns one process's 4-level page table.
type AddressSpace_t struct {
	Pml4   *mem.Pmap_t
	P_pml4 mem.Pa_t
}

/// NewAddressSpace allocates an empty top-level page table.
func NewAddressSpace() (*AddressSpace_t, bool) {
	pml4, p_pml4, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, false
	}
	return &AddressSpace_t{Pml4: pml4, P_pml4: p_pml4}, true
}

// walk descends the page table from level 4 to level 1, allocating
// intermediate tables along the way when create is true. It returns a
// pointer to the level-1 (leaf) entry for va.
func walk(pml4 *mem.Pmap_t, va uintptr, create bool) (*mem.Pa_t, bool) {
	l4i, l3i, l2i, l1i := pgbits(va)
	descend := func(tbl *mem.Pmap_t, idx uint) (*mem.Pmap_t, bool) {
		pte := &tbl[idx]
		if *pte&PTE_P == 0 {
			if !create {
				return nil, false
			}
			next, p_next, ok := mem.Physmem.Pmap_new()
			if !ok {
				return nil, false
			}
			*pte = p_next | PTE_P | PTE_W | PTE_U
			return next, true
		}
		phys := *pte & PTE_ADDR
		return (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(phys))), true
	}

	l3, ok := descend(pml4, l4i)
	if !ok {
		return nil, false
	}
	l2, ok := descend(l3, l3i)
	if !ok {
		return nil, false
	}
	l1, ok := descend(l2, l2i)
	if !ok {
		return nil, false
	}
	return &l1[l1i], true
}

/// MapRange maps npages consecutive pages starting at va, backing each
/// with a freshly allocated, zeroed frame, using perms (PTE_W/PTE_U) on
/// every leaf entry. Returns defs.ENOMEM if any frame or page-table page
/// could not be allocated; pages already mapped are left in place.
func (as *AddressSpace_t) MapRange(va uintptr, npages int, perms mem.Pa_t) defs.Err_t {
	for i := 0; i < npages; i++ {
		pg, p_pg, ok := mem.Physmem.Refpg_new()
		if !ok {
			return defs.ENOMEM
		}
		_ = pg
		pte, ok := walk(as.Pml4, va+uintptr(i)*uintptr(mem.PGSIZE), true)
		if !ok {
			mem.Physmem.Refdown(p_pg)
			return defs.ENOMEM
		}
		if *pte&PTE_P != 0 {
			mem.Physmem.Refdown(p_pg)
			continue
		}
		*pte = p_pg | perms | PTE_P
	}
	return 0
}

/// MapPhysicalMemory maps npages pages starting at va directly onto the
/// physical frames starting at pa, without allocating new frames; each
/// frame's reference count is raised for the new mapping.
func (as *AddressSpace_t) MapPhysicalMemory(va uintptr, pa mem.Pa_t, npages int, perms mem.Pa_t) defs.Err_t {
	for i := 0; i < npages; i++ {
		p := pa + mem.Pa_t(i*mem.PGSIZE)
		mem.Physmem.Refup(p)
		pte, ok := walk(as.Pml4, va+uintptr(i)*uintptr(mem.PGSIZE), true)
		if !ok {
			mem.Physmem.Refdown(p)
			return defs.ENOMEM
		}
		*pte = p | perms | PTE_P
	}
	return 0
}

/// UnmapRange removes npages mappings starting at va, dropping the
/// reference count of each backing frame. Unmapped pages in the range are
/// silently skipped.
func (as *AddressSpace_t) UnmapRange(va uintptr, npages int) {
	for i := 0; i < npages; i++ {
		pte, ok := walk(as.Pml4, va+uintptr(i)*uintptr(mem.PGSIZE), false)
		if !ok || pte == nil || *pte&PTE_P == 0 {
			continue
		}
		phys := *pte & PTE_ADDR
		*pte = 0
		mem.Physmem.Refdown(phys)
	}
}

/// Translate resolves a virtual address to its backing physical address
/// and permission bits, without creating missing page-table levels.
func (as *AddressSpace_t) Translate(va uintptr) (pa mem.Pa_t, perms mem.Pa_t, ok bool) {
	pte, ok := walk(as.Pml4, va, false)
	if !ok || pte == nil || *pte&PTE_P == 0 {
		return 0, 0, false
	}
	return *pte & PTE_ADDR, *pte &^ PTE_ADDR, true
}

/// CloneLevel4 builds a new address space that eagerly copies every
/// present mapping under a user-accessible top-level entry of as. Every
/// such page, read-only and MapPhysicalMemory mappings included, gets a
/// fresh private frame; no frame is shared with as.
func (as *AddressSpace_t) CloneLevel4() (*AddressSpace_t, defs.Err_t) {
	child, ok := NewAddressSpace()
	if !ok {
		return nil, defs.ENOMEM
	}
	for l4i := 0; l4i < 512; l4i++ {
		if as.Pml4[l4i]&PTE_P == 0 || as.Pml4[l4i]&PTE_U == 0 {
			continue
		}
		l3 := (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(as.Pml4[l4i] & PTE_ADDR)))
		for l3i := 0; l3i < 512; l3i++ {
			if l3[l3i]&PTE_P == 0 {
				continue
			}
			l2 := (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(l3[l3i] & PTE_ADDR)))
			for l2i := 0; l2i < 512; l2i++ {
				if l2[l2i]&PTE_P == 0 {
					continue
				}
				l1 := (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(l2[l2i] & PTE_ADDR)))
				for l1i := 0; l1i < 512; l1i++ {
					pte := l1[l1i]
					if pte&PTE_P == 0 {
						continue
					}
					va := uintptr(l4i)<<39 | uintptr(l3i)<<30 | uintptr(l2i)<<21 | uintptr(l1i)<<12
					perms := pte &^ PTE_ADDR
					newpg, p_new, ok := mem.Physmem.Refpg_new_nozero()
					if !ok {
						return nil, defs.ENOMEM
					}
					src := mem.Physmem.Dmap(pte & PTE_ADDR)
					*newpg = *src
					cpte, ok := walk(child.Pml4, va, true)
					if !ok {
						mem.Physmem.Refdown(p_new)
						return nil, defs.ENOMEM
					}
					*cpte = p_new | perms
				}
			}
		}
	}
	return child, 0
}

/// Free releases every user mapping and page-table page owned by as.
func (as *AddressSpace_t) Free() {
	for l4i := 0; l4i < 512; l4i++ {
		if as.Pml4[l4i]&PTE_P == 0 || as.Pml4[l4i]&PTE_U == 0 {
			continue
		}
		l3 := (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(as.Pml4[l4i] & PTE_ADDR)))
		for l3i := 0; l3i < 512; l3i++ {
			if l3[l3i]&PTE_P == 0 {
				continue
			}
			l2 := (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(l3[l3i] & PTE_ADDR)))
			for l2i := 0; l2i < 512; l2i++ {
				if l2[l2i]&PTE_P == 0 {
					continue
				}
				l1 := (*mem.Pmap_t)(unsafe.Pointer(mem.Physmem.Dmap(l2[l2i] & PTE_ADDR)))
				for l1i := 0; l1i < 512; l1i++ {
					if l1[l1i]&PTE_P != 0 {
						mem.Physmem.Refdown(l1[l1i] & PTE_ADDR)
					}
				}
				mem.Physmem.Refdown(l2[l2i] & PTE_ADDR)
			}
			mem.Physmem.Refdown(l3[l3i] & PTE_ADDR)
		}
		mem.Physmem.Refdown(as.Pml4[l4i] & PTE_ADDR)
	}
	mem.Physmem.Refdown(as.P_pml4)
}
