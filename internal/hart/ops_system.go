package hart

// ops_system.go decodes SYSTEM-opcode instructions: ECALL/EBREAK/MRET/SRET/
// WFI and the six CSR instructions. CSR reads route first through the
// hart's own ReadCSR/WriteCSR, falling back to the Bridge's CSRReadOther/
// CSRWriteOther for anything this hart does not implement directly -- the
// debug CSRs in particular.

import "fmt"

func (h *Hart) decodeSystem(ir Instruction, base mo) operation {
	funct3 := ir.Funct3()

	if funct3 == 0 {
		switch ir.Csr() {
		case 0x000:
			return &ecall{mo: base}
		case 0x001:
			return &ebreak{mo: base}
		case 0x102:
			return &sretOp{mo: base}
		case 0x105:
			return &wfi{mo: base}
		case 0x302:
			return &mretOp{mo: base}
		default:
			return &illegal{mo: base, raw: Word(ir)}
		}
	}

	return &csrOp{
		mo:     base,
		funct3: funct3,
		rd:     ir.Rd(),
		rs1:    ir.Rs1(),
		csr:    ir.Csr(),
	}
}

type ecall struct{ mo }

func (op *ecall) Execute() {
	var cause Cause

	switch op.h.priv {
	case PrivilegeUser:
		cause = CauseECallFromU
	case PrivilegeSupervisor:
		cause = CauseECallFromS
	default:
		cause = CauseECallFromM
	}

	op.Fail(&Trap{Cause: cause})
}

func (op *ecall) String() string { return "ecall" }

type ebreak struct{ mo }

func (op *ebreak) Execute() { op.Fail(&Trap{Cause: CauseBreakpoint, Tval: Word(op.h.pc)}) }
func (op *ebreak) String() string { return "ebreak" }

type mretOp struct{ mo }

func (op *mretOp) Execute() { op.h.mret(); op.h.pc -= 4 }
func (op *mretOp) String() string { return "mret" }

type sretOp struct{ mo }

func (op *sretOp) Execute() { op.h.sret(); op.h.pc -= 4 }
func (op *sretOp) String() string { return "sret" }

// wfi idles the hart until an interrupt is pending. Run checks
// waitingForInterrupt between batches and resumes as soon as
// pendingInterrupt reports an interrupt that can be taken.
type wfi struct{ mo }

func (op *wfi) Execute() { op.h.waitingForInterrupt = true }
func (op *wfi) String() string { return "wfi" }

type csrOp struct {
	mo
	funct3 uint32
	rd, rs1 GPR
	csr    uint16
}

func (op *csrOp) Execute() {
	if op.csr == CsrDebugDumpRegs {
		if op.h.debugCSR {
			op.h.log.Info("register dump", "HART", op.h.dump())
		}

		if op.rd != X0 {
			op.h.regs.Set(op.rd, 0)
		}

		return
	}

	isImm := op.funct3&0x4 != 0
	writeKind := op.funct3 & 0x3 // 1=RW, 2=RS, 3=RC

	var writeVal Word

	if isImm {
		writeVal = Word(op.rs1) // rs1 field holds the 5-bit zero-extended immediate
	} else {
		writeVal = Word(op.h.regs.Get(op.rs1))
	}

	suppressRead := false // CSRRW reads are always performed unless rd == x0.

	shouldWrite := writeKind == 1 || writeVal != 0 || (!isImm && op.rs1 != X0) || (isImm && op.rs1 != 0)

	var (
		old Word
		ok  bool
	)

	if old, ok = op.h.ReadCSR(op.csr); !ok {
		old, ok = op.h.Mem.bridge.CSRReadOther(op.csr)
	}

	if !ok && !isOtherCSR(op.csr) {
		op.Fail(&Trap{Cause: CauseIllegalInstruction})
		return
	}

	if op.rd != X0 && !suppressRead {
		op.h.regs.Set(op.rd, Register(old))
	}

	if !shouldWrite {
		return
	}

	var next Word

	switch writeKind {
	case 1: // CSRRW/CSRRWI
		next = writeVal
	case 2: // CSRRS/CSRRSI
		next = old | writeVal
	case 3: // CSRRC/CSRRCI
		next = old &^ writeVal
	default:
		op.Fail(&Trap{Cause: CauseIllegalInstruction})
		return
	}

	if !op.h.WriteCSR(op.csr, next) {
		op.h.Mem.bridge.CSRWriteOther(op.csr, next)
	}
}

// isOtherCSR reports whether a CSR number is one this hart delegates to the
// Bridge by design (the debug CSRs and the custom/implementation-defined
// range), so a Bridge miss on it is treated as a no-op rather than an
// illegal instruction.
func isOtherCSR(csr uint16) bool {
	switch csr {
	case CsrDebugPrintDecimal, CsrDebugPrintHex, CsrDebugPrintString, CsrDebugPrintChar,
		CsrDebugReadChar, CsrDebugDumpRegs:
		return true
	default:
		return csr >= 0x7c0 && csr <= 0x7ff // custom/implementation-defined range
	}
}

func (op *csrOp) String() string {
	return fmt.Sprintf("csr%d x%d, %#x, x%d", op.funct3, op.rd, op.csr, op.rs1)
}
