// Package elfload implements the ELF loader (component C): parsing a
// statically linked x86_64 executable and mapping its PT_LOAD segments
// into a freshly created address space, using the standard library's
// debug/elf package rather than hand-rolled header parsing.
package elfload

import (
	"bytes"
	"debug/elf"
	"fmt"

	"corekernel/mem"
	"corekernel/vmm"
)

/// Range describes one mapped PT_LOAD segment's page-aligned span.
type Range struct {
	Start  uintptr
	Npages int
}

/// Image describes a loaded binary: its entry point, initial break (the
/// address immediately past the highest segment byte), and the page
/// ranges each PT_LOAD segment was mapped into.
type Image struct {
	Entry  uintptr
	Break  uintptr
	Ranges []Range
}

/// Load validates buf as a static little-endian x86_64 executable and maps
/// each PT_LOAD segment into as, zero-extending .bss per p_memsz > p_filesz.
/// Every failure, including a segment whose frames could not be
/// allocated, is returned as a plain error describing the cause.
func Load(as *vmm.AddressSpace_t, buf []byte) (Image, error) {
	ef, err := elf.NewFile(bytes.NewReader(buf))
	if err != nil {
		return Image{}, fmt.Errorf("elfload: %w", err)
	}
	if err := check(&ef.FileHeader); err != nil {
		return Image{}, err
	}

	var brk uintptr
	var ranges []Range
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		perms := mem.PTE_U
		if prog.Flags&elf.PF_W != 0 {
			perms |= mem.PTE_W
		}

		start := uintptr(prog.Vaddr)
		end := start + uintptr(prog.Memsz)
		startpg := start &^ (uintptr(mem.PGSIZE) - 1)
		npages := (int(end-startpg) + mem.PGSIZE - 1) / mem.PGSIZE

		if errc := as.MapRange(startpg, npages, perms); errc != 0 {
			return Image{}, fmt.Errorf("elfload: mapping segment at 0x%x: %v", start, errc)
		}
		ranges = append(ranges, Range{Start: startpg, Npages: npages})

		segdata := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(segdata, 0); err != nil {
			return Image{}, fmt.Errorf("elfload: reading segment: %w", err)
		}
		if err := writeSegment(as, start, segdata); err != nil {
			return Image{}, err
		}

		if end > brk {
			brk = end
		}
	}

	return Image{Entry: uintptr(ef.Entry), Break: brk, Ranges: ranges}, nil
}

func check(eh *elf.FileHeader) error {
	// The ELF magic has already been checked by elf.NewFile.
	if eh.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("elfload: not little-endian")
	}
	if eh.Type != elf.ET_EXEC {
		return fmt.Errorf("elfload: not a static executable")
	}
	if eh.Machine != elf.EM_X86_64 {
		return fmt.Errorf("elfload: not x86-64")
	}
	return nil
}

// writeSegment copies data into as starting at virtual address va,
// crossing page boundaries as needed.
func writeSegment(as *vmm.AddressSpace_t, va uintptr, data []byte) error {
	for len(data) > 0 {
		pa, _, ok := as.Translate(va)
		if !ok {
			return fmt.Errorf("elfload: segment address 0x%x not mapped", va)
		}
		dst := mem.Physmem.Dmap8(pa | mem.Pa_t(va)&mem.PGOFFSET)
		n := copy(dst, data)
		data = data[n:]
		va += uintptr(n)
	}
	return nil
}
