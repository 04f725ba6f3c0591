// Command kernel is the hosted entry point for the teaching kernel.
//
// A real UEFI loader would hand off a live *boot.Info and jump here with
// interrupts off and a kernel stack already mapped; this binary instead
// builds a boot.Info by hand from command-line flags, since there is no
// bare-metal firmware or page tables available on the host. It still
// performs the same control-flow a bare-metal boot would: init memory,
// virtual memory, process table, syscalls, the clock and filesystem,
// spawn the init user process, then idle.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"corekernel/apic"
	"corekernel/block"
	"corekernel/boot"
	"corekernel/circbuf"
	"corekernel/clock"
	"corekernel/fat16"
	"corekernel/mbr"
	"corekernel/mem"
	"corekernel/proc"
	"corekernel/trapsys"
)

// nullLapic is a software stand-in for the local APIC: there is no real
// timer hardware to arm or acknowledge on the host, so Arm/EOI are no-ops
// and the demo loop below drives Clock.Tick directly instead of waiting
// on a real interrupt.
type nullLapic struct{}

func (nullLapic) Arm(divider, initialCount uint32) {}
func (nullLapic) EOI()                              {}

var _ apic.Device = nullLapic{}

func loadApps(dir string) (map[string][]byte, error) {
	apps := map[string][]byte{}
	if dir == "" {
		return apps, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading app directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading app %q: %w", path, err)
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext != "" {
			name = name[:len(name)-len(ext)]
		}
		apps[name] = b
	}
	return apps, nil
}

func mountDisk(diskPath string) (*fat16.FS, error) {
	f, err := os.Open(diskPath)
	if err != nil {
		return nil, fmt.Errorf("opening disk image: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	nsects := uint64(fi.Size()) / block.SectorSize
	dev := block.NewFileDevice(f, nsects)

	sector0 := make([]byte, block.SectorSize)
	if err := dev.ReadSector(0, sector0); err != nil {
		return nil, fmt.Errorf("reading MBR: %w", err)
	}
	entries, err := mbr.Parse(sector0)
	if err != nil {
		return nil, err
	}
	part, ok := mbr.FirstActive(entries)
	if !ok {
		return nil, fmt.Errorf("no active partition in MBR")
	}
	p := block.NewPartition(dev, uint64(part.LBABegin), uint64(part.LBATotal))
	return fat16.Mount(p)
}

func main() {
	diskPath := flag.String("disk", "", "path to a FAT16-formatted disk image")
	appDir := flag.String("apps", "", "directory of ELF binaries embedded as the boot-time app list")
	frames := flag.Int("frames", 16384, "simulated conventional physical frame count")
	ticks := flag.Int("ticks", 0, "number of demo clock ticks to run before halting (0 = run until interrupted)")
	flag.Parse()

	info := &boot.Info{
		MemoryMap: []boot.MemoryRegion{
			{PhysStart: 0, PageCount: uint64(*frames), Kind: boot.Conventional},
		},
		LogLevel: "info",
	}

	apps, err := loadApps(*appDir)
	if err != nil {
		log.Fatal(err)
	}
	for name, elf := range apps {
		info.AppList = append(info.AppList, boot.AppImage{Name: name, ELF: elf})
	}

	// A: frame allocator.
	mem.Phys_init(info.ConventionalFrames())

	// D/E: process table and scheduler.
	mgr := proc.NewManager(apps)
	mgr.BootKernel()

	// I/J/K: block device, MBR, FAT16, only if a disk image was given.
	var fs *fat16.FS
	if *diskPath != "" {
		fs, err = mountDisk(*diskPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	// G: syscall dispatcher.
	console := trapsys.Console{
		In:  circbuf.MkCircbuf(4096),
		Out: os.Stdout,
	}
	disp := &trapsys.Dispatcher{Mgr: mgr, FS: fs, Console: console}

	// H: preemption clock, armed on a null LAPIC stand-in.
	clk := clock.New(nullLapic{}, mgr)

	fmt.Fprintln(os.Stdout, "corekernel: boot complete")

	if pid := mgr.Spawn("sh", mgr.Current()); pid != 0 {
		fmt.Fprintf(os.Stdout, "corekernel: spawned init process sh (pid %d)\n", pid)
		// Exercise the syscall dispatcher once, the way sh's C runtime
		// would on its first instruction: getpid() to learn its own pid.
		out := disp.Dispatch(pid, trapsys.SysGetPid, [3]uint64{})
		if !out.Blocked {
			fmt.Fprintf(os.Stdout, "corekernel: sh's getpid() syscall returned %d\n", out.ReturnRAX)
		}
	} else if len(apps) > 0 {
		log.Printf("corekernel: no app named \"sh\" in app list")
	}

	fmt.Fprintln(os.Stdout, "$ ")

	// Idle halt: a real kernel waits for the next interrupt (hlt); this
	// hosted build instead drives the clock's tick handler itself, since
	// there is no timer hardware to wait on.
	ctx := proc.Context_t{}
	n := *ticks
	for i := 0; n == 0 || i < n; i++ {
		ctx = clk.Tick(ctx)
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}
