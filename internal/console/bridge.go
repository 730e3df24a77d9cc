package console

import (
	"fmt"

	"github.com/smoynes/rv32ima/internal/hart"
)

// UART line-status bits, matching the 16550-style register the reference
// core exposes at [hart.UARTLSRAddr].
const (
	lsrDataReady = hart.Word(1 << 0)
	lsrTHREmpty  = hart.Word(1 << 5)
	lsrTxEmpty   = hart.Word(1 << 6)
)

// LoadMMIO implements [hart.Bridge]. The UART data register pops the next
// buffered keystroke (0 if none is pending); the line-status register
// reports data-ready/transmitter-empty. Everything else misses.
func (c *Console) LoadMMIO(addr hart.Word) (hart.Word, bool) {
	switch addr {
	case hart.UARTBaseAddr:
		b, _ := c.kbd.Pop()
		return hart.Word(b), true
	case hart.UARTLSRAddr:
		status := lsrTHREmpty | lsrTxEmpty
		if c.kbd.Ready() {
			status |= lsrDataReady
		}

		return status, true
	default:
		return 0, false
	}
}

// StoreMMIO implements [hart.Bridge]. Writes to the UART data register print
// the low byte to the terminal; writes to syscon request a halt or restart.
func (c *Console) StoreMMIO(addr, val hart.Word) (hart.StepSignal, bool) {
	switch addr {
	case hart.UARTBaseAddr:
		_, _ = c.out.Write([]byte{byte(val)})
		return hart.SignalNone, true
	case hart.SysconAddr:
		switch val {
		case hart.SysconHalt:
			c.halted = true
			return hart.SignalHalt, true
		case hart.SysconRestart:
			c.restart = true
			return hart.SignalRestart, true
		default:
			return hart.SignalNone, true
		}
	default:
		return hart.SignalNone, false
	}
}

// CSRReadOther implements [hart.Bridge]'s debug-CSR read-char path: the next
// buffered keystroke, or -1 if none is pending.
func (c *Console) CSRReadOther(csr uint16) (hart.Word, bool) {
	if csr != hart.CsrDebugReadChar {
		return 0, false
	}

	b, ok := c.kbd.Pop()
	if !ok {
		return hart.Word(0xffff_ffff), true
	}

	return hart.Word(b), true
}

// CSRWriteOther implements [hart.Bridge]'s debug-CSR print family: a cheap
// host I/O channel guest code uses via CSRRW without a UART round-trip.
func (c *Console) CSRWriteOther(csr uint16, val hart.Word) {
	switch csr {
	case hart.CsrDebugPrintDecimal:
		fmt.Fprintf(c.out, "%d", int32(val))
	case hart.CsrDebugPrintHex:
		fmt.Fprintf(c.out, "%08x", uint32(val))
	case hart.CsrDebugPrintChar:
		_, _ = c.out.Write([]byte{byte(val)})
	case hart.CsrDebugPrintString:
		// The CSR carries up to four packed ASCII bytes, little-endian,
		// terminated early by a zero byte -- there is no guest-memory
		// pointer available through this interface to read a real
		// NUL-terminated string.
		for shift := 0; shift < 32; shift += 8 {
			b := byte(val >> shift)
			if b == 0 {
				break
			}

			_, _ = c.out.Write([]byte{b})
		}
	}
}
