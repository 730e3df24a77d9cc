package hart

import "testing"

func TestCSRRWReadsOldWritesNew(t *testing.T) {
	h := newTestHart(4096)
	h.WriteCSR(CsrMscratch, 0x1111)
	h.regs.Set(X1, 0x2222)

	loadWord(h.Mem.RAM(), h.pc, encodeCSR(0b001, X2, X1, CsrMscratch)) // csrrw x2, mscratch, x1

	if err := h.Step(); err != nil {
		t.Fatalf("step: %s", err)
	}

	if got := h.regs.Get(X2); got != 0x1111 {
		t.Errorf("x2 (old value): want 0x1111, got %s", got)
	}

	v, _ := h.ReadCSR(CsrMscratch)
	if v != 0x2222 {
		t.Errorf("mscratch: want 0x2222, got %s", v)
	}
}

func TestCSRRSWithX0SourceOnlyReads(t *testing.T) {
	h := newTestHart(4096)
	h.WriteCSR(CsrMscratch, 0x42)

	loadWord(h.Mem.RAM(), h.pc, encodeCSR(0b010, X1, X0, CsrMscratch)) // csrrs x1, mscratch, x0

	if err := h.Step(); err != nil {
		t.Fatalf("step: %s", err)
	}

	if got := h.regs.Get(X1); got != 0x42 {
		t.Errorf("x1: want 0x42, got %s", got)
	}

	v, _ := h.ReadCSR(CsrMscratch)
	if v != 0x42 {
		t.Errorf("mscratch should be unmodified by a read-only csrrs, got %s", v)
	}
}

func TestCSRRCIClearsBitsFromImmediate(t *testing.T) {
	h := newTestHart(4096)
	h.WriteCSR(CsrMscratch, 0xff)

	loadWord(h.Mem.RAM(), h.pc, encodeCSR(0b111, X0, 0x0f, CsrMscratch)) // csrrci x0, mscratch, 0xf

	if err := h.Step(); err != nil {
		t.Fatalf("step: %s", err)
	}

	v, _ := h.ReadCSR(CsrMscratch)
	if v != 0xf0 {
		t.Errorf("mscratch: want 0xf0, got %s", v)
	}
}

func TestUnknownCSRTraps(t *testing.T) {
	h := newTestHart(4096)
	loadWord(h.Mem.RAM(), h.pc, encodeCSR(0b001, X1, X0, 0x3a0)) // not implemented by this hart, not an "other" CSR either

	if err := h.Step(); err != nil {
		t.Fatalf("step: %s", err)
	}

	if h.mcause != Word(CauseIllegalInstruction) {
		t.Errorf("mcause: want illegal instruction, got %s", h.mcause)
	}
}

func TestDebugDumpRegsCSRDoesNotTrap(t *testing.T) {
	h := newTestHart(4096)
	h.debugCSR = true

	loadWord(h.Mem.RAM(), h.pc, encodeCSR(0b001, X1, X2, CsrDebugDumpRegs))

	if err := h.Step(); err != nil {
		t.Fatalf("step: %s", err)
	}

	if got := h.regs.Get(X1); got != 0 {
		t.Errorf("rd: want 0, got %s", got)
	}
}
