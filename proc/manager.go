// Package proc's Manager is the process table, ready queue, wait-pid
// bookkeeping, and the spawn/vfork/kill/schedule operations. Grounded
// on the control-flow shape of original_source's proc/manager.rs (PID
// table + ready queue + explicit current-pid field, since this is a
// single-CPU kernel with no `struct
// Manager` parallel to juggle).
package proc

import (
	"fmt"
	"sort"
	"sync"

	"corekernel/defs"
	"corekernel/util"
)

/// Manager owns every live process, the ready queue, and the wait-pid
/// relation. All scheduler operations run with the manager's lock held,
/// matching the original kernel's convention of running scheduler code
/// with interrupts globally disabled (there being no real interrupt
/// state in a hosted reimplementation, the mutex is the enforcement
/// mechanism).
type Manager struct {
	mu sync.Mutex

	procs   map[defs.ProcessId]*Process_t
	ready   []defs.ProcessId
	current defs.ProcessId
	waiters map[defs.ProcessId][]defs.ProcessId // target pid -> callers blocked in WaitPid

	nextPid defs.ProcessId
	slots   *slotAllocator
	apps    map[string][]byte
}

/// NewManager builds an empty process table with the given boot-time app
/// list (name -> ELF bytes), used by Spawn and the ListApp syscall.
func NewManager(apps map[string][]byte) *Manager {
	return &Manager{
		procs:   map[defs.ProcessId]*Process_t{},
		waiters: map[defs.ProcessId][]defs.ProcessId{},
		nextPid: defs.KernelPID,
		slots:   newSlotAllocator(),
		apps:    apps,
	}
}

// allocPid hands out the next dense PID; PID 1 is reserved for the
// kernel process and is assigned exactly once, by BootKernel.
func (m *Manager) allocPid() defs.ProcessId {
	m.nextPid++
	return m.nextPid
}

/// BootKernel installs the reserved PID-1 kernel process: no user memory,
/// just a PCB so ps and wait_pid have something to report.
func (m *Manager) BootKernel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs[defs.KernelPID] = &Process_t{
		Pid:    defs.KernelPID,
		Name:   "kernel",
		Status: Running,
	}
	m.current = defs.KernelPID
}

/// ListApp returns the boot-time application names, for the ListApp
/// syscall (#65529); see SPEC_FULL.md §13.
func (m *Manager) ListApp() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.apps))
	for n := range m.apps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

/// Spawn creates a new process running the named boot-time application:
/// a fresh address space, ELF loaded, initial RIP=entry, RSP=
/// STACK_INIT_TOP, marked Ready and enqueued. Returns PID 0 if name is
/// not a known application.
func (m *Manager) Spawn(name string, parent defs.ProcessId) defs.ProcessId {
	m.mu.Lock()
	elf, ok := m.apps[name]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	vm, entry, err := NewProcessVm(elf, m.slots)
	if err != 0 {
		return 0
	}
	data := NewProcessData()

	m.mu.Lock()
	pid := m.allocPid()
	p := &Process_t{
		Pid:  pid,
		Ppid: parent,
		Name: name,
		Vm:   vm,
		Data: data,
		Status: Ready,
	}
	p.Ctx.RIP = uint64(entry)
	p.Ctx.RSP = uint64(vm.Stack.Top)
	m.procs[pid] = p
	if pp, ok := m.procs[parent]; ok {
		pp.AddChild(pid)
	}
	m.ready = append(m.ready, pid)
	m.mu.Unlock()
	return pid
}

/// Vfork duplicates the calling process: a shared ProcessData, a shared
/// page table, and a freshly copied stack in a new slot. The child is
/// enqueued Ready with RAX 0; the parent keeps running (this syscall
/// doesn't switch away) and returns the child's pid directly. Returns 0
/// if the slot/stack allocation failed.
func (m *Manager) Vfork(callerPid defs.ProcessId) defs.ProcessId {
	m.mu.Lock()
	parent, ok := m.procs[callerPid]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	childVm, childRsp, err := parent.Vm.VforkDup()
	if err != 0 {
		return 0
	}
	parent.Data.Share()

	m.mu.Lock()
	pid := m.allocPid()
	child := &Process_t{
		Pid:    pid,
		Ppid:   callerPid,
		Name:   parent.Name,
		Vm:     childVm,
		Data:   parent.Data,
		Status: Ready,
		Ctx:    parent.Ctx,
	}
	child.Ctx.RSP = uint64(childRsp)
	child.Ctx.RAX = 0
	m.procs[pid] = child
	parent.AddChild(pid)
	m.ready = append(m.ready, pid)
	m.mu.Unlock()

	// The caller returns from this syscall synchronously (Dispatch's
	// SysVFork case is non-blocking: no Save/Restore switch happens), so
	// parent stays Running and off the ready queue. Its RAX is set by the
	// trap trampoline from Dispatch's returned Outcome, not here.
	return pid
}

/// Save copies ctx into the current process's saved context and marks it
/// Ready, then re-enqueues it at the back of the ready queue. A Dead
/// current process is left Dead and not re-enqueued.
func (m *Manager) Save(ctx Context_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[m.current]
	if !ok {
		return
	}
	p.mu.Lock()
	if p.Status == Dead {
		p.mu.Unlock()
		return
	}
	p.Ctx = ctx
	p.Status = Ready
	p.mu.Unlock()
	m.ready = append(m.ready, m.current)
}

/// Restore copies pid's saved context into ctx, marks it Running, and
/// makes it current. It panics if pid is unknown — the scheduler must
/// never attempt to restore a process it doesn't track.
func (m *Manager) Restore(pid defs.ProcessId) Context_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[pid]
	if !ok {
		panic("restore: unknown pid")
	}
	p.mu.Lock()
	p.Status = Running
	ctx := p.Ctx
	p.mu.Unlock()
	m.current = pid
	return ctx
}

/// SwitchNext pops the ready queue until it finds an entry that is still
/// Ready and differs from the current process, and restores it. Entries
/// that are no longer Ready (blocked or killed since being enqueued) are
/// dropped; an entry equal to the current process is set aside and
/// re-enqueued so it isn't lost. If no eligible next exists, the current
/// process keeps running.
func (m *Manager) SwitchNext() defs.ProcessId {
	m.mu.Lock()
	cur := m.current
	var self defs.ProcessId
	sawSelf := false
	for len(m.ready) > 0 {
		pid := m.ready[0]
		m.ready = m.ready[1:]
		p, ok := m.procs[pid]
		if !ok || p.GetStatus() != Ready {
			continue
		}
		if pid == cur {
			self, sawSelf = pid, true
			continue
		}
		if sawSelf {
			m.ready = append(m.ready, self)
		}
		m.mu.Unlock()
		m.Restore(pid)
		return pid
	}
	if sawSelf {
		m.ready = append(m.ready, self)
	}
	m.mu.Unlock()
	return cur
}

/// Tick increments the current process's tick counter.
func (m *Manager) Tick() {
	m.mu.Lock()
	p, ok := m.procs[m.current]
	m.mu.Unlock()
	if ok {
		p.mu.Lock()
		p.Ticks++
		p.mu.Unlock()
	}
}

/// Block marks pid Blocked. The caller is responsible for calling
/// SwitchNext afterward if pid is the currently running process.
func (m *Manager) Block(pid defs.ProcessId) {
	m.mu.Lock()
	p, ok := m.procs[pid]
	m.mu.Unlock()
	if ok {
		p.SetStatus(Blocked)
	}
}

/// WakeUp transitions a Blocked pid back to Ready, optionally stashing a
/// return value in its saved RAX, and re-enqueues it at the back of the
/// ready queue. It is a no-op if pid is unknown, dead, or not Blocked —
/// callers that scrub dead PIDs before waking (sem.Set.Scrub) never hit
/// that last case, but WakeUp tolerates it regardless.
func (m *Manager) WakeUp(pid defs.ProcessId, ret *uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[pid]
	if !ok {
		return
	}
	p.mu.Lock()
	if p.Status != Blocked {
		p.mu.Unlock()
		return
	}
	if ret != nil {
		p.Ctx.RAX = *ret
	}
	p.Status = Ready
	p.mu.Unlock()
	m.ready = append(m.ready, pid)
}

/// WaitPid implements the WaitPid syscall: if target already has an exit
/// code, it is returned immediately (ok=true); otherwise caller is
/// recorded as waiting on target and blocked=true is returned so the
/// dispatcher can Block(caller) and SwitchNext.
func (m *Manager) WaitPid(caller, target defs.ProcessId) (exitCode int, ok, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, exists := m.procs[target]
	if exists {
		p.mu.Lock()
		if p.ExitCode != nil {
			ec := *p.ExitCode
			p.mu.Unlock()
			return ec, true, false
		}
		p.mu.Unlock()
	}
	m.waiters[target] = append(m.waiters[target], caller)
	return 0, false, true
}

/// Kill marks pid Dead, records ret as its exit code, tears down its
/// ProcessVm/ProcessData, scrubs it from every semaphore waiter list
/// and wakes every process waiting on it
/// via WaitPid. Killing PID 1 (the kernel process) is refused. Killing
/// the caller itself is permitted; the caller must then call SwitchNext.
func (m *Manager) Kill(pid defs.ProcessId, ret int) defs.Err_t {
	if pid == defs.KernelPID {
		return defs.EINVAL
	}
	m.mu.Lock()
	p, ok := m.procs[pid]
	if !ok {
		m.mu.Unlock()
		return defs.ESRCH
	}

	p.mu.Lock()
	if p.Status == Dead {
		p.mu.Unlock()
		m.mu.Unlock()
		return 0
	}
	p.Status = Dead
	ec := ret
	p.ExitCode = &ec
	data := p.Data
	vm := p.Vm
	p.mu.Unlock()

	waiting := m.waiters[pid]
	delete(m.waiters, pid)
	m.mu.Unlock()

	if vm != nil {
		vm.Cleanup()
	}
	if data != nil {
		data.Sems.Scrub(pid)
		data.Drop()
	}

	retU := uint64(ret)
	for _, w := range waiting {
		m.WakeUp(w, &retU)
	}
	return 0
}

/// Current returns the currently running process's pid.
func (m *Manager) Current() defs.ProcessId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

/// Process returns the PCB for pid, or nil if unknown.
func (m *Manager) Process(pid defs.ProcessId) *Process_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procs[pid]
}

/// String renders a `ps`-style PID | PPID | Name | Mem | Ticks | Status
/// table, grounded on the supplemented process-table rendering described
/// in SPEC_FULL.md §13 (originally process.rs's Display impl).
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]defs.ProcessId, 0, len(m.procs))
	for pid := range m.procs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	s := fmt.Sprintf("%-6s %-6s %-12s %-10s %-8s %s\n", "PID", "PPID", "NAME", "MEM", "TICKS", "STATUS")
	for _, pid := range pids {
		p := m.procs[pid]
		p.mu.Lock()
		mem := int64(0)
		if p.Vm != nil {
			mem = p.Vm.Usage()
		}
		sz, unit := util.HumanizedSize(uint64(mem))
		s += fmt.Sprintf("%-6d %-6d %-12s %-10s %-8d %s\n",
			p.Pid, p.Ppid, p.Name, fmt.Sprintf("%.1f%s", sz, unit), p.Ticks, p.Status)
		p.mu.Unlock()
	}
	return s
}
