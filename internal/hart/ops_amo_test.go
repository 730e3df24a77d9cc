package hart

import "testing"

func TestLoadReservedStoreConditionalSucceeds(t *testing.T) {
	h := newTestHart(4096)
	addr := RAMBase + 0x100
	loadWord(h.Mem.RAM(), addr, 7)

	h.regs.Set(X1, Register(addr))
	loadWord(h.Mem.RAM(), h.pc, encodeR(OpAMO, 0b010, amoFuncLR<<2, X2, X1, X0)) // lr.w x2, (x1)

	if err := h.Step(); err != nil {
		t.Fatalf("lr.w step: %s", err)
	}

	if !h.reservationValid || h.reservation != addr {
		t.Fatal("expected a valid reservation at addr")
	}

	h.regs.Set(X3, 99)
	loadWord(h.Mem.RAM(), h.pc, encodeR(OpAMO, 0b010, amoFuncSC<<2, X4, X1, X3)) // sc.w x4, x3, (x1)

	if err := h.Step(); err != nil {
		t.Fatalf("sc.w step: %s", err)
	}

	if got := h.regs.Get(X4); got != 0 {
		t.Errorf("sc.w result: want 0 (success), got %s", got)
	}

	v, _ := h.Mem.Load(addr, 4, false)
	if v != 99 {
		t.Errorf("memory: want 99, got %s", v)
	}

	if h.reservationValid {
		t.Error("reservation should be cleared after sc.w")
	}
}

func TestStoreConditionalFailsWithoutReservation(t *testing.T) {
	h := newTestHart(4096)
	addr := RAMBase + 0x100
	h.regs.Set(X1, Register(addr))
	h.regs.Set(X3, 99)
	loadWord(h.Mem.RAM(), h.pc, encodeR(OpAMO, 0b010, amoFuncSC<<2, X4, X1, X3))

	if err := h.Step(); err != nil {
		t.Fatalf("sc.w step: %s", err)
	}

	if got := h.regs.Get(X4); got != 1 {
		t.Errorf("sc.w result: want 1 (failure), got %s", got)
	}
}

func TestAnyStoreInvalidatesReservation(t *testing.T) {
	h := newTestHart(4096)
	addr := RAMBase + 0x100
	h.regs.Set(X1, Register(addr))
	loadWord(h.Mem.RAM(), h.pc, encodeR(OpAMO, 0b010, amoFuncLR<<2, X2, X1, X0))

	if err := h.Step(); err != nil {
		t.Fatalf("lr.w step: %s", err)
	}

	h.regs.Set(X5, Register(addr))
	h.regs.Set(X6, 123)
	loadWord(h.Mem.RAM(), h.pc, encodeS(OpStore, 0b010, X5, X6, 0)) // an ordinary sw to the reserved address

	if err := h.Step(); err != nil {
		t.Fatalf("sw step: %s", err)
	}

	if h.reservationValid {
		t.Error("an ordinary store to the reserved address should invalidate it")
	}
}

func TestAMOAdd(t *testing.T) {
	h := newTestHart(4096)
	addr := RAMBase + 0x100
	loadWord(h.Mem.RAM(), addr, 10)

	h.regs.Set(X1, Register(addr))
	h.regs.Set(X2, 5)
	loadWord(h.Mem.RAM(), h.pc, encodeR(OpAMO, 0b010, amoFuncAdd<<2, X3, X1, X2)) // amoadd.w x3, x2, (x1)

	if err := h.Step(); err != nil {
		t.Fatalf("step: %s", err)
	}

	if got := h.regs.Get(X3); got != 10 {
		t.Errorf("x3 (old value): want 10, got %s", got)
	}

	v, _ := h.Mem.Load(addr, 4, false)
	if v != 15 {
		t.Errorf("memory: want 15, got %s", v)
	}
}
