package elfload

import (
	"encoding/binary"
	"testing"

	"corekernel/mem"
	"corekernel/vmm"
)

func buildMinimalELF(vaddr uint64, flags uint32, code []byte) []byte {
	const ehdrSize = 64
	const phdrSize = 56
	fileOff := uint64(ehdrSize + phdrSize)
	buf := make([]byte, fileOff+uint64(len(code)))

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4], buf[5], buf[6] = 2, 1, 1

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 62)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], vaddr)
	le.PutUint64(buf[32:], ehdrSize)
	le.PutUint16(buf[52:], ehdrSize)
	le.PutUint16(buf[54:], phdrSize)
	le.PutUint16(buf[56:], 1)

	ph := buf[ehdrSize:]
	le.PutUint32(ph[0:], 1) // PT_LOAD
	le.PutUint32(ph[4:], flags)
	le.PutUint64(ph[8:], fileOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(code)))
	le.PutUint64(ph[40:], uint64(mem.PGSIZE))
	le.PutUint64(ph[48:], uint64(mem.PGSIZE))

	copy(buf[fileOff:], code)
	return buf
}

func TestLoadMapsSegmentAndReturnsEntry(t *testing.T) {
	mem.Phys_init(64)
	as, ok := vmm.NewAddressSpace()
	if !ok {
		t.Fatal("NewAddressSpace failed")
	}
	elfBytes := buildMinimalELF(0x400000, 5, []byte{0x90, 0x90})
	img, err := Load(as, elfBytes)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != 0x400000 {
		t.Fatalf("Entry = %#x, want 0x400000", img.Entry)
	}
	if img.Break != 0x400000+uintptr(mem.PGSIZE) {
		t.Fatalf("Break = %#x, want %#x", img.Break, 0x400000+uintptr(mem.PGSIZE))
	}
	pa, perms, ok := as.Translate(0x400000)
	if !ok {
		t.Fatal("segment page should be mapped")
	}
	if perms&vmm.PTE_W != 0 {
		t.Fatal("a read+exec-only segment should not be writable")
	}
	view := mem.Physmem.Dmap8(pa)
	if view[0] != 0x90 || view[1] != 0x90 {
		t.Fatalf("segment bytes = %v, want [0x90 0x90]", view[:2])
	}
}

func TestLoadRejectsNonELF(t *testing.T) {
	mem.Phys_init(8)
	as, _ := vmm.NewAddressSpace()
	if _, err := Load(as, []byte("not an elf")); err == nil {
		t.Fatal("Load on garbage bytes should fail")
	}
}

func TestLoadMarksWritableSegmentWritable(t *testing.T) {
	mem.Phys_init(64)
	as, _ := vmm.NewAddressSpace()
	elfBytes := buildMinimalELF(0x500000, 7, []byte{0x00, 0x00})
	if _, err := Load(as, elfBytes); err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, perms, ok := as.Translate(0x500000)
	if !ok || perms&vmm.PTE_W == 0 {
		t.Fatal("a writable segment (PF_W) should map PTE_W")
	}
}
