package hart

// ops_amo.go implements the A extension: load-reserved/store-conditional and
// the atomic memory operations. Reservations are tracked as independent
// reservationValid/reservation fields on Hart, a single-reservation-slot
// model: SC.W unconditionally clears the reservation whether or not the
// store succeeds, and any store to the reserved address invalidates it.

import "fmt"

const (
	amoFuncLR      = 0b00010
	amoFuncSC      = 0b00011
	amoFuncSwap    = 0b00001
	amoFuncAdd     = 0b00000
	amoFuncXor     = 0b00100
	amoFuncAnd     = 0b01100
	amoFuncOr      = 0b01000
	amoFuncMin     = 0b10000
	amoFuncMax     = 0b10100
	amoFuncMinu    = 0b11000
	amoFuncMaxu    = 0b11100
)

type amo struct {
	mo
	funct3       uint32
	funct5       uint32
	rd, rs1, rs2 GPR
}

func (op *amo) Execute() {
	if op.funct3 != 0b010 {
		op.Fail(&Trap{Cause: CauseIllegalInstruction})
		return
	}

	addr := Word(op.h.regs.Get(op.rs1))

	switch op.funct5 {
	case amoFuncLR:
		v, trap := op.h.Mem.Load(addr, 4, false)
		if trap != nil {
			op.Fail(trap)
			return
		}

		op.h.reservationValid = true
		op.h.reservation = addr
		op.h.regs.Set(op.rd, Register(v))

		return

	case amoFuncSC:
		success := op.h.reservationValid && op.h.reservation == addr
		op.h.reservationValid = false

		if success {
			sig, trap := op.h.Mem.Store(addr, 4, Word(op.h.regs.Get(op.rs2)))
			if trap != nil {
				op.Fail(trap)
				return
			}

			op.h.pendingSignal = sig
			op.h.regs.Set(op.rd, 0)
		} else {
			op.h.regs.Set(op.rd, 1)
		}

		return
	}

	old, trap := op.h.Mem.Load(addr, 4, false)
	if trap != nil {
		op.Fail(trap)
		return
	}

	rhs := Word(op.h.regs.Get(op.rs2))

	var result Word

	switch op.funct5 {
	case amoFuncSwap:
		result = rhs
	case amoFuncAdd:
		result = old + rhs
	case amoFuncXor:
		result = old ^ rhs
	case amoFuncAnd:
		result = old & rhs
	case amoFuncOr:
		result = old | rhs
	case amoFuncMin:
		if int32(old) < int32(rhs) {
			result = old
		} else {
			result = rhs
		}
	case amoFuncMax:
		if int32(old) > int32(rhs) {
			result = old
		} else {
			result = rhs
		}
	case amoFuncMinu:
		if old < rhs {
			result = old
		} else {
			result = rhs
		}
	case amoFuncMaxu:
		if old > rhs {
			result = old
		} else {
			result = rhs
		}
	default:
		op.Fail(&Trap{Cause: CauseIllegalInstruction})
		return
	}

	sig, trap := op.h.Mem.Store(addr, 4, result)
	if trap != nil {
		op.Fail(trap)
		return
	}

	op.h.pendingSignal = sig
	op.h.regs.Set(op.rd, Register(old))
}

func (op *amo) String() string { return fmt.Sprintf("amo%d x%d, x%d, x%d", op.funct5, op.rd, op.rs1, op.rs2) }
