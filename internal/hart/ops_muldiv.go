package hart

// ops_muldiv.go implements the M extension, funct7 == 0x01 under the OP
// major opcode. Division and remainder semantics follow the RISC-V spec's
// exact treatment of division-by-zero and signed overflow: DIV/REM by zero
// return -1/the dividend, and INT_MIN/-1 returns INT_MIN/0 rather than
// trapping or overflowing.

import "fmt"

type muldiv struct {
	mo
	funct3       uint32
	rd, rs1, rs2 GPR
}

func (op *muldiv) Execute() {
	a := int32(op.h.regs.Get(op.rs1))
	b := int32(op.h.regs.Get(op.rs2))
	ua := uint32(a)
	ub := uint32(b)

	var result uint32

	switch op.funct3 {
	case 0b000: // MUL
		result = ua * ub
	case 0b001: // MULH (signed x signed, high 32 bits)
		result = uint32((int64(a) * int64(b)) >> 32)
	case 0b010: // MULHSU (signed x unsigned, high 32 bits)
		result = uint32((int64(a) * int64(ub)) >> 32)
	case 0b011: // MULHU (unsigned x unsigned, high 32 bits)
		result = uint32((uint64(ua) * uint64(ub)) >> 32)
	case 0b100: // DIV
		switch {
		case b == 0:
			result = 0xffff_ffff
		case a == -0x8000_0000 && b == -1:
			result = uint32(a)
		default:
			result = uint32(a / b)
		}
	case 0b101: // DIVU
		if ub == 0 {
			result = 0xffff_ffff
		} else {
			result = ua / ub
		}
	case 0b110: // REM
		switch {
		case b == 0:
			result = ua
		case a == -0x8000_0000 && b == -1:
			result = 0
		default:
			result = uint32(a % b)
		}
	case 0b111: // REMU
		if ub == 0 {
			result = ua
		} else {
			result = ua % ub
		}
	default:
		op.Fail(&Trap{Cause: CauseIllegalInstruction})
		return
	}

	op.h.regs.Set(op.rd, Register(result))
}

func (op *muldiv) String() string {
	return fmt.Sprintf("muldiv%d x%d, x%d, x%d", op.funct3, op.rd, op.rs1, op.rs2)
}
