package hart

// mem.go is the hart's memory controller: it holds the backing RAM, performs
// SV32 address translation when enabled, and routes anything outside of RAM
// to the Bridge for memory-mapped I/O.

import (
	"github.com/smoynes/rv32ima/internal/log"
)

// RAMBase is the guest-physical address where RAM begins. Addresses below
// this are either memory-mapped devices or unmapped.
const RAMBase Word = 0x8000_0000

// Memory is the hart's memory controller.
type Memory struct {
	ram    []byte
	bridge Bridge
	hart   *Hart

	log *log.Logger
}

// NewMemory allocates size bytes of RAM and wires a no-op bridge; callers
// typically replace it with [WithBridge].
func NewMemory(size Word, h *Hart) *Memory {
	return &Memory{
		ram:    make([]byte, size),
		bridge: NopBridge{},
		hart:   h,
		log:    log.DefaultLogger(),
	}
}

// Size returns the amount of RAM, in bytes.
func (m *Memory) Size() Word { return Word(len(m.ram)) }

// RAM exposes the backing array directly, for the image builder to populate
// before Reset and for tests to inspect state.
func (m *Memory) RAM() []byte { return m.ram }

type accessKind uint8

const (
	accessExec accessKind = iota
	accessRead
	accessWrite
)

// Fetch reads a 32-bit instruction word at a virtual address.
func (m *Memory) Fetch(va Word) (Word, *Trap) {
	if va&0x3 != 0 {
		return 0, &Trap{Cause: CauseInstructionMisaligned, Tval: va}
	}

	pa, trap := m.translate(va, accessExec)
	if trap != nil {
		return 0, trap
	}

	v, ok := m.readPhysical(pa, 4)
	if !ok {
		return 0, &Trap{Cause: CauseInstructionFault, Tval: va}
	}

	return v, nil
}

// Load reads width bytes (1, 2, or 4) at a virtual address, optionally
// sign-extended.
func (m *Memory) Load(va Word, width int, signed bool) (Word, *Trap) {
	if !aligned(va, width) {
		return 0, &Trap{Cause: CauseLoadMisaligned, Tval: va}
	}

	pa, trap := m.translate(va, accessRead)
	if trap != nil {
		trap.Cause = remapCause(trap.Cause, CauseLoadPageFault, CauseLoadFault)
		return 0, trap
	}

	v, ok := m.readPhysical(pa, width)
	if !ok {
		return 0, &Trap{Cause: CauseLoadFault, Tval: va}
	}

	if signed {
		v = Word(sext(uint32(v), uint8(width*8)))
	}

	return v, nil
}

// Store writes width bytes (1, 2, or 4) at a virtual address. The returned
// StepSignal carries a syscon halt/restart request up to the Step Loop.
func (m *Memory) Store(va Word, width int, val Word) (StepSignal, *Trap) {
	if !aligned(va, width) {
		return SignalNone, &Trap{Cause: CauseStoreMisaligned, Tval: va}
	}

	pa, trap := m.translate(va, accessWrite)
	if trap != nil {
		trap.Cause = remapCause(trap.Cause, CauseStorePageFault, CauseStoreFault)
		return SignalNone, trap
	}

	if m.hart != nil && m.hart.reservationValid && pa == m.hart.reservation {
		// Any store to the reserved address invalidates the reservation,
		// whether or not it came from an AMO/SC; matches real hardware.
		m.hart.reservationValid = false
	}

	sig, ok := m.writePhysical(pa, width, val)
	if !ok {
		return SignalNone, &Trap{Cause: CauseStoreFault, Tval: va}
	}

	return sig, nil
}

func aligned(va Word, width int) bool {
	switch width {
	case 1:
		return true
	case 2:
		return va&0x1 == 0
	case 4:
		return va&0x3 == 0
	default:
		return false
	}
}

// remapCause turns a translate()-reported page fault placeholder into the
// access-specific page-fault cause; any other cause becomes the
// access-specific access-fault cause.
func remapCause(c Cause, pageFault, accessFault Cause) Cause {
	if c == CauseInstructionPageFault {
		return pageFault
	}

	return accessFault
}

// translate performs the SV32 two-level page walk when satp.MODE is set and
// the hart is running below machine mode. It returns the physical address or
// a Trap with Cause set to CauseInstructionPageFault as a placeholder the
// caller remaps to the access-specific page fault cause.
func (m *Memory) translate(va Word, kind accessKind) (Word, *Trap) {
	if m.hart == nil || m.hart.satp&0x8000_0000 == 0 || m.hart.priv == PrivilegeMachine {
		return va, nil
	}

	satp := m.hart.satp
	root := (satp & 0x003f_ffff) << 12

	vpn1 := (va >> 22) & 0x3ff
	vpn0 := (va >> 12) & 0x3ff
	pageOff := va & 0xfff

	ptAddr := root + vpn1*4

	pte0, ok := m.readPhysical(ptAddr, 4)
	if !ok {
		return 0, &Trap{Cause: CauseInstructionPageFault, Tval: va}
	}

	if pte0&pteV == 0 {
		return 0, &Trap{Cause: CauseInstructionPageFault, Tval: va}
	}

	if pte0&(pteR|pteX) != 0 {
		// Superpage (4 MiB) leaf at level 1.
		m.setAccessed(ptAddr, pte0, kind)

		if !permitted(pte0, kind, m.hart.priv) {
			return 0, &Trap{Cause: CauseInstructionPageFault, Tval: va}
		}

		ppn1 := (pte0 >> 20) & 0x3ff
		return (ppn1 << 22) | (vpn0 << 12) | pageOff, nil
	}

	ptAddr2 := ((pte0 >> 10) << 12) + vpn0*4

	pte1, ok := m.readPhysical(ptAddr2, 4)
	if !ok || pte1&pteV == 0 {
		return 0, &Trap{Cause: CauseInstructionPageFault, Tval: va}
	}

	if !permitted(pte1, kind, m.hart.priv) {
		return 0, &Trap{Cause: CauseInstructionPageFault, Tval: va}
	}

	m.setAccessed(ptAddr2, pte1, kind)

	ppn := (pte1 >> 10) << 12

	return ppn | pageOff, nil
}

// SV32 PTE bit fields.
const (
	pteV = Word(1 << 0)
	pteR = Word(1 << 1)
	pteW = Word(1 << 2)
	pteX = Word(1 << 3)
	pteU = Word(1 << 4)
	pteA = Word(1 << 6)
	pteD = Word(1 << 7)
)

func permitted(pte Word, kind accessKind, priv Privilege) bool {
	if priv == PrivilegeUser && pte&pteU == 0 {
		return false
	}

	if priv == PrivilegeSupervisor && pte&pteU != 0 {
		// Supervisor access to user pages is denied; this hart does not
		// model sstatus.SUM.
		return false
	}

	switch kind {
	case accessExec:
		return pte&pteX != 0
	case accessRead:
		return pte&pteR != 0
	case accessWrite:
		return pte&pteW != 0
	default:
		return false
	}
}

// setAccessed sets the A bit, and the D bit for writes, on first access. Bits
// are set-on-access and never cleared.
func (m *Memory) setAccessed(addr Word, pte Word, kind accessKind) {
	updated := pte | pteA

	if kind == accessWrite {
		updated |= pteD
	}

	if updated != pte {
		_, _ = m.writePhysical(addr, 4, updated)
	}
}

// readPhysical reads width bytes from a guest-physical address, dispatching
// to RAM or the Bridge.
func (m *Memory) readPhysical(pa Word, width int) (Word, bool) {
	if pa >= RAMBase && int(pa-RAMBase)+width <= len(m.ram) {
		off := pa - RAMBase

		var v Word

		for i := 0; i < width; i++ {
			v |= Word(m.ram[int(off)+i]) << (8 * i)
		}

		return v, true
	}

	if width != 4 {
		mask := Word(1)<<(uint(width)*8) - 1

		// Devices are addressed byte-precisely first -- a UART's line-status
		// register, for instance, lives at its own exact address and must
		// answer a byte load directly rather than be shifted out of some
		// containing word. Only if that misses do we fall back to treating
		// the device as word-only and extracting the sub-word field.
		if v, ok := m.bridge.LoadMMIO(pa); ok {
			return v & mask, true
		}

		word, ok := m.bridge.LoadMMIO(pa &^ 0x3)
		if !ok {
			return 0, false
		}

		shift := (pa & 0x3) * 8

		return (word >> shift) & mask, true
	}

	return m.bridge.LoadMMIO(pa)
}

// writePhysical writes width bytes to a guest-physical address.
func (m *Memory) writePhysical(pa Word, width int, val Word) (StepSignal, bool) {
	if pa >= RAMBase && int(pa-RAMBase)+width <= len(m.ram) {
		off := pa - RAMBase

		for i := 0; i < width; i++ {
			m.ram[int(off)+i] = byte(val >> (8 * i))
		}

		return SignalNone, true
	}

	if width != 4 {
		mask := Word(1)<<(uint(width)*8) - 1

		if sig, ok := m.bridge.StoreMMIO(pa, val&mask); ok {
			return sig, true
		}

		return m.bridge.StoreMMIO(pa&^0x3, val&mask)
	}

	return m.bridge.StoreMMIO(pa, val)
}
