package vmm

import (
	"testing"

	"corekernel/mem"
)

func TestMapRangeAndTranslate(t *testing.T) {
	mem.Phys_init(64)
	as, ok := NewAddressSpace()
	if !ok {
		t.Fatal("NewAddressSpace failed")
	}
	va := USERMIN
	if errno := as.MapRange(va, 2, PTE_W|PTE_U); errno != 0 {
		t.Fatalf("MapRange errno = %v, want 0", errno)
	}
	pa, perms, ok := as.Translate(va)
	if !ok {
		t.Fatal("Translate should find a mapping after MapRange")
	}
	if perms&PTE_U == 0 || perms&PTE_W == 0 {
		t.Fatalf("perms = %#x, want PTE_U|PTE_W set", perms)
	}
	_ = pa
	pa2, _, ok := as.Translate(va + uintptr(mem.PGSIZE))
	if !ok {
		t.Fatal("second mapped page should translate")
	}
	if pa2 == pa {
		t.Fatal("consecutive pages should back onto distinct frames")
	}
}

func TestTranslateUnmappedFails(t *testing.T) {
	mem.Phys_init(8)
	as, ok := NewAddressSpace()
	if !ok {
		t.Fatal("NewAddressSpace failed")
	}
	if _, _, ok := as.Translate(USERMIN); ok {
		t.Fatal("Translate on an empty address space should fail")
	}
}

func TestUnmapRangeDropsMapping(t *testing.T) {
	mem.Phys_init(8)
	as, ok := NewAddressSpace()
	if !ok {
		t.Fatal("NewAddressSpace failed")
	}
	as.MapRange(USERMIN, 1, PTE_W|PTE_U)
	as.UnmapRange(USERMIN, 1)
	if _, _, ok := as.Translate(USERMIN); ok {
		t.Fatal("Translate should fail after UnmapRange")
	}
}

func TestCloneLevel4CopiesDataPrivately(t *testing.T) {
	mem.Phys_init(64)
	parent, ok := NewAddressSpace()
	if !ok {
		t.Fatal("NewAddressSpace failed")
	}
	parent.MapRange(USERMIN, 1, PTE_W|PTE_U)
	pa, _, _ := parent.Translate(USERMIN)
	view := mem.Physmem.Dmap8(pa)
	view[0] = 0x42

	child, errno := parent.CloneLevel4()
	if errno != 0 {
		t.Fatalf("CloneLevel4 errno = %v, want 0", errno)
	}
	childPa, _, ok := child.Translate(USERMIN)
	if !ok {
		t.Fatal("child should inherit the mapping")
	}
	if childPa == pa {
		t.Fatal("eager-copy clone must not share the parent's frame")
	}
	childView := mem.Physmem.Dmap8(childPa)
	if childView[0] != 0x42 {
		t.Fatalf("child frame content = %#x, want copied 0x42", childView[0])
	}

	// mutating the child's copy must not affect the parent's frame.
	childView[1] = 0x99
	if view[1] == 0x99 {
		t.Fatal("child and parent frames must be independent after clone")
	}
}
