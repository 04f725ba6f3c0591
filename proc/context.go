package proc

/// Context_t is the saved register file of a process: everything the
/// trap trampoline pushes on syscall/interrupt entry and the scheduler
/// restores on a context switch.
type Context_t struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RIP, RSP, RFLAGS   uint64
	CS, SS             uint16
}
