package hart

// traps.go implements the trap engine: exception/interrupt causes and the
// mechanics of transferring control to a trap handler, including
// medeleg/mideleg-gated machine-to-supervisor delegation.

import "fmt"

// Cause identifies an exception or interrupt. Interrupt causes have their
// top bit set, matching the encoding software reads out of mcause/scause.
type Cause Word

const interruptBit = Word(1) << 31

// Exception causes.
const (
	CauseInstructionMisaligned Cause = 0
	CauseInstructionFault      Cause = 1
	CauseIllegalInstruction    Cause = 2
	CauseBreakpoint            Cause = 3
	CauseLoadMisaligned        Cause = 4
	CauseLoadFault             Cause = 5
	CauseStoreMisaligned       Cause = 6
	CauseStoreFault            Cause = 7
	CauseECallFromU            Cause = 8
	CauseECallFromS            Cause = 9
	CauseECallFromM            Cause = 11
	CauseInstructionPageFault  Cause = 12
	CauseLoadPageFault         Cause = 13
	CauseStorePageFault        Cause = 15
)

// Interrupt causes (as stored, without the interrupt bit; code applies it).
const (
	CauseSupervisorSoftware Cause = 1
	CauseMachineSoftware    Cause = 3
	CauseSupervisorTimer    Cause = 5
	CauseMachineTimer       Cause = 7
	CauseSupervisorExternal Cause = 9
	CauseMachineExternal    Cause = 11
)

func (c Cause) String() string {
	return fmt.Sprintf("%#x", Word(c))
}

// Trap carries the cause and faulting-value pair the trap engine needs to
// deliver an exception, and is also used to carry pending interrupts through
// the Step Loop.
type Trap struct {
	Cause      Cause
	Tval       Word
	Interrupt  bool
}

func (t *Trap) Error() string {
	kind := "exception"
	if t.Interrupt {
		kind = "interrupt"
	}

	return fmt.Sprintf("%s: cause=%s tval=%s", kind, t.Cause, t.Tval)
}

// code returns the mcause/scause encoding: the cause with the interrupt bit
// set when appropriate.
func (t *Trap) code() Word {
	if t.Interrupt {
		return Word(t.Cause) | interruptBit
	}

	return Word(t.Cause)
}

// pendingInterrupt returns the highest-priority pending, enabled interrupt,
// if any, following machine-then-supervisor, external-then-software-then-
// timer priority order.
func (h *Hart) pendingInterrupt() (*Trap, bool) {
	pending := h.mip & h.mie

	if pending == 0 {
		return nil, false
	}

	// Machine-mode interrupts are only taken globally when MIE is set, or
	// unconditionally when running below machine mode.
	mEnabled := h.priv != PrivilegeMachine || h.mstatus&mstatusMIE != 0
	sEnabled := h.priv == PrivilegeUser || (h.priv == PrivilegeSupervisor && h.mstatus&mstatusSIE != 0)

	check := func(bit Word, cause Cause, machineLevel bool) (*Trap, bool) {
		if pending&bit == 0 {
			return nil, false
		}

		delegated := h.mideleg&bit != 0

		if !delegated && machineLevel && !mEnabled {
			return nil, false
		}

		if delegated && !machineLevel && !sEnabled {
			return nil, false
		}

		return &Trap{Cause: cause, Interrupt: true}, true
	}

	order := []struct {
		bit   Word
		cause Cause
	}{
		{IntMEI, CauseMachineExternal},
		{IntMSI, CauseMachineSoftware},
		{IntMTI, CauseMachineTimer},
		{IntSEI, CauseSupervisorExternal},
		{IntSSI, CauseSupervisorSoftware},
		{IntSTI, CauseSupervisorTimer},
	}

	for _, o := range order {
		if t, ok := check(o.bit, o.cause, o.bit == IntMEI || o.bit == IntMSI || o.bit == IntMTI); ok {
			return t, true
		}
	}

	return nil, false
}

// raise delivers a trap, choosing the supervisor or machine targets
// according to delegation, and updates the privilege level and the trap's
// mstatus save/restore bits.
func (h *Hart) raise(t *Trap) {
	code := t.code()

	delegated := h.priv != PrivilegeMachine &&
		((t.Interrupt && h.mideleg&bitFor(t.Cause) != 0) ||
			(!t.Interrupt && h.medeleg&(1<<Word(t.Cause)) != 0))

	if delegated {
		h.scause = code
		h.stval = t.Tval
		h.sepc = h.pc
		h.setSPP(h.priv)

		if h.mstatus&mstatusSIE != 0 {
			h.mstatus |= mstatusSPIE
		} else {
			h.mstatus &^= mstatusSPIE
		}

		h.mstatus &^= mstatusSIE
		h.priv = PrivilegeSupervisor
		h.pc = h.stvec &^ 0x3
	} else {
		h.mcause = code
		h.mtval = t.Tval
		h.mepc = h.pc
		h.setMPP(h.priv)

		if h.mstatus&mstatusMIE != 0 {
			h.mstatus |= mstatusMPIE
		} else {
			h.mstatus &^= mstatusMPIE
		}

		h.mstatus &^= mstatusMIE
		h.priv = PrivilegeMachine
		h.pc = h.mtvec &^ 0x3
	}

	h.waitingForInterrupt = false
}

// bitFor maps an interrupt cause to its mip/mie bit. Used only to check
// mideleg, which is indexed the same way.
func bitFor(c Cause) Word {
	return Word(1) << Word(c)
}

// mret implements the MRET instruction: restore the privilege and
// interrupt-enable state saved by the last trap into machine mode.
func (h *Hart) mret() {
	prev := h.MPP()

	if h.mstatus&mstatusMPIE != 0 {
		h.mstatus |= mstatusMIE
	} else {
		h.mstatus &^= mstatusMIE
	}

	h.mstatus |= mstatusMPIE
	h.setMPP(PrivilegeUser)
	h.priv = prev
	h.pc = h.mepc &^ 0x3
}

// sret implements the SRET instruction, restoring supervisor-mode state.
func (h *Hart) sret() {
	prev := h.SPP()

	if h.mstatus&mstatusSPIE != 0 {
		h.mstatus |= mstatusSIE
	} else {
		h.mstatus &^= mstatusSIE
	}

	h.mstatus |= mstatusSPIE
	h.setSPP(PrivilegeUser)
	h.priv = prev
	h.pc = h.sepc &^ 0x3
}
