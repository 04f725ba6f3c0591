// Package clock implements component H: the periodic LAPIC timer tick
// that drives preemption. The LAPIC itself is an external collaborator
// (package apic); this package only owns the tick handler's control flow.
package clock

import (
	"corekernel/apic"
	"corekernel/proc"
)

/// Divider is the LAPIC timer divide configuration used throughout.
const Divider uint32 = 1

/// InitialCount is the LAPIC timer's periodic reload value.
const InitialCount uint32 = 0x20000

/// Clock drives preemptive scheduling off a LAPIC timer.
type Clock struct {
	lapic apic.Device
	mgr   *proc.Manager
}

/// New arms lapic as a periodic timer at Divider/InitialCount and
/// returns a Clock bound to mgr.
func New(lapic apic.Device, mgr *proc.Manager) *Clock {
	lapic.Arm(Divider, InitialCount)
	return &Clock{lapic: lapic, mgr: mgr}
}

/// Tick is the timer interrupt handler: save the current context,
/// re-queue the current process, select the next Ready process, and
/// acknowledge the interrupt. The caller (the trap dispatcher) supplies
/// the context it captured from the interrupted process and installs the
/// one this returns before iretq.
func (c *Clock) Tick(saved proc.Context_t) proc.Context_t {
	c.mgr.Tick()
	c.mgr.Save(saved)
	next := c.mgr.SwitchNext()
	c.lapic.EOI()
	return c.mgr.Process(next).Ctx
}
