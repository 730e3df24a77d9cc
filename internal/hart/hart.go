// Package hart implements an RV32IMA interpreter with enough privileged
// architecture -- machine and supervisor modes, CSRs, SV32 address
// translation, and trap delivery -- to boot a small kernel.
//
// # Hart #
//
// The hart is a single in-order core: a program counter, 32 integer
// registers, and the control and status registers that hold its privileged
// state. Each instruction is fetched, decoded into an [operation], and
// carried out by a single Execute call; see ops.go.
//
// # Memory #
//
// All of the hart's memory accesses -- instruction fetch, data load, data
// store -- pass through [Memory], which applies SV32 address translation
// when enabled and routes addresses outside of RAM to the [Bridge] for
// memory-mapped I/O.
//
// # Traps #
//
// Exceptions and interrupts are delivered by the trap engine in traps.go,
// which mutates mcause/mepc/mstatus (or their supervisor-mode shadows, when
// the machine-mode exception-delegation register routes a cause to S-mode)
// and transfers control to the configured trap vector.
package hart

import (
	"fmt"
	"time"

	"github.com/smoynes/rv32ima/internal/log"
)

// Hart is a single RISC-V hardware thread: the whole of its architectural
// state.
type Hart struct {
	pc   Word
	regs RegisterFile

	// cycle is a genuine 64-bit counter; CSR reads project the low and high
	// halves rather than the struct being laid out as two 32-bit fields.
	cycle   uint64
	instret uint64

	// timerMatch is the value of the `mtimecmp`-equivalent compare register;
	// a timer interrupt is latched into mip when cycle reaches it.
	timerMatch uint64

	// priv is the current privilege level. waitingForInterrupt and
	// reservationValid are modeled as independent fields, not packed into a
	// single "extraflags" word, per the redesign guidance this hart follows.
	priv                Privilege
	waitingForInterrupt bool
	reservationValid    bool
	reservation         Word

	mstatus Word
	misa    Word
	medeleg Word
	mideleg Word
	mie     Word
	mip     Word
	mtvec   Word
	mscratch Word
	mepc    Word
	mcause  Word
	mtval   Word

	stvec    Word
	sscratch Word
	sepc     Word
	scause   Word
	stval    Word
	satp     Word

	Mem *Memory

	// pendingSignal carries a syscon halt/restart request from a store
	// operation back to the Step Loop for the current instruction.
	pendingSignal StepSignal

	// wallClock, when set, drives the cycle counter from the host's clock
	// instead of instructions retired, so the timer fires at a realistic
	// rate instead of a rate tied to interpreter speed.
	wallClock bool
	epoch     time.Time

	// failOnFault stops Step with an error on the first unhandled exception
	// instead of delivering it to the guest's trap handler; useful for
	// catching a kernel or test program that faults unexpectedly.
	failOnFault bool

	// debugCSR gates the register-dump debug CSR.
	debugCSR bool

	log *log.Logger
}

// misa value advertising RV32IMA with M and S privilege modes: base (MXL=1),
// extensions I, M, A, S, U.
const misaRV32IMA = Word(1<<30) | (1 << ('I' - 'A')) | (1 << ('M' - 'A')) | (1 << ('A' - 'A')) |
	(1 << ('S' - 'A')) | (1 << ('U' - 'A'))

// OptionFn configures a Hart during construction.
type OptionFn func(h *Hart)

// New creates a hart with the given amount of RAM and applies options.
func New(ramSize Word, opts ...OptionFn) *Hart {
	h := &Hart{
		misa: misaRV32IMA,
		priv: PrivilegeMachine,
		log:  log.DefaultLogger(),
	}

	h.Mem = NewMemory(ramSize, h)

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// WithLogger configures the hart and its memory controller to write to the
// given logger.
func WithLogger(logger *log.Logger) OptionFn {
	return func(h *Hart) {
		h.log = logger
		h.Mem.log = logger
	}
}

// WithBridge configures the behavior interface used for MMIO and "other" CSR
// accesses. Without this option the hart uses [NopBridge].
func WithBridge(b Bridge) OptionFn {
	return func(h *Hart) {
		h.Mem.bridge = b
	}
}

// WithWallClock drives the cycle counter, and so the timer, from the host's
// clock instead of instructions retired, for a realistic timer rate
// independent of interpreter speed.
func WithWallClock(enabled bool) OptionFn {
	return func(h *Hart) { h.wallClock = enabled }
}

// WithFailOnFault stops Step with an error on the first unhandled exception
// instead of delivering it to the guest, useful when running a test program
// that is not expected to fault.
func WithFailOnFault(enabled bool) OptionFn {
	return func(h *Hart) { h.failOnFault = enabled }
}

// WithDebugCSR enables the register-dump debug CSR (0x135).
func WithDebugCSR(enabled bool) OptionFn {
	return func(h *Hart) { h.debugCSR = enabled }
}

// Reset places the hart at its entry point with the given RAM image already
// populated (by the caller, typically via the image package) and zeroes its
// architectural registers. a0 holds the hart ID (always 0, single-hart), a1
// holds the address of the flattened device tree, matching the calling
// convention a Linux/XV6-class kernel expects on entry.
func (h *Hart) Reset(entry, dtbAddr Word) {
	h.pc = entry
	h.regs = RegisterFile{}
	h.regs.Set(X10, Register(0))
	h.regs.Set(X11, Register(dtbAddr))

	h.cycle = 0
	h.instret = 0
	h.timerMatch = ^uint64(0)
	h.priv = PrivilegeMachine
	h.waitingForInterrupt = false
	h.reservationValid = false

	if h.wallClock {
		h.epoch = time.Now()
	}

	h.mstatus, h.mie, h.mip = 0, 0, 0
	h.mcause, h.mepc, h.mtval, h.mscratch, h.mtvec = 0, 0, 0, 0, 0
	h.medeleg, h.mideleg = 0, 0
	h.scause, h.sepc, h.stval, h.sscratch, h.stvec, h.satp = 0, 0, 0, 0, 0, 0
}

// PC returns the current program counter.
func (h *Hart) PC() Word { return h.pc }

// Privilege returns the hart's current privilege level.
func (h *Hart) Privilege() Privilege { return h.priv }

// PackedFlags projects the independently-held privilege, WFI, and
// reservation-valid fields into the single word layout RISC-V debug tooling
// expects: privilege in bits [1:0], WFI in bit 2, reservation-valid in bit 3.
func (h *Hart) PackedFlags() Word {
	var flags Word

	flags |= Word(h.priv) & 0x3

	if h.waitingForInterrupt {
		flags |= 1 << 2
	}

	if h.reservationValid {
		flags |= 1 << 3
	}

	return flags
}

// CycleLo and CycleHi project the 64-bit cycle counter's halves for CSR
// reads.
func (h *Hart) CycleLo() Word { return Word(h.cycle) }
func (h *Hart) CycleHi() Word { return Word(h.cycle >> 32) }

func (h *Hart) LogValue() log.Value {
	return log.GroupValue(
		log.String("PC", h.pc.String()),
		log.String("PRIV", h.priv.String()),
		log.Any("REGS", h.regs),
		log.String("MSTATUS", h.mstatus.String()),
		log.String("MCAUSE", h.mcause.String()),
		log.String("MEPC", h.mepc.String()),
	)
}

func (h *Hart) dump() string {
	return fmt.Sprintf("%s\n%s", h, h.regs)
}
