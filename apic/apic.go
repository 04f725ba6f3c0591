// Package apic declares the LAPIC collaborator interface: arming the
// periodic timer and acknowledging interrupts. Nothing here is
// implemented; the clock package (component H) only calls this contract.
package apic

/// Device is the subset of a local APIC the clock package depends on.
type Device interface {
	// Arm configures the timer as periodic with the given divider and
	// initial count.
	Arm(divider, initialCount uint32)
	// EOI acknowledges the current interrupt.
	EOI()
}
