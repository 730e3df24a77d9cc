package hart

// exec.go implements the Step Loop: fetch, decode, execute, and the
// housekeeping between instructions -- trap delivery, interrupt checks,
// the cycle/instret counters, and the timer.

import (
	"context"
	"errors"
	"time"

	"github.com/smoynes/rv32ima/internal/log"
)

// ErrHalted is returned by Run when the guest writes the syscon halt value.
var ErrHalted = errors.New("halted")

// ErrRestart is returned by Run when the guest writes the syscon restart
// value; callers typically call Reset and run again.
var ErrRestart = errors.New("restart")

// Run executes instructions until the guest halts or restarts, the context
// is cancelled, or an unrecoverable error occurs. batchSize bounds how many
// instructions run between interrupt/context checks, trading latency for
// throughput.
func (h *Hart) Run(ctx context.Context, batchSize int) error {
	h.log.Info("START", log.Group("HART", h))

	for {
		select {
		case <-ctx.Done():
			h.log.Warn("CANCELLED")
			return ctx.Err()
		default:
		}

		for i := 0; i < batchSize; i++ {
			if h.waitingForInterrupt {
				break
			}

			if err := h.Step(); err != nil {
				return err
			}
		}

		if err := h.checkTimer(); err != nil {
			return err
		}

		if h.waitingForInterrupt {
			if _, pending := h.pendingInterrupt(); pending {
				h.waitingForInterrupt = false
			} else {
				time.Sleep(500 * time.Microsecond)
				continue
			}
		}

		if t, pending := h.pendingInterrupt(); pending {
			h.raise(t)
		}
	}
}

// checkTimer latches a machine-timer interrupt into mip once the cycle
// counter reaches timerMatch, guest-programmable via the timermatch_lo/hi
// CSRs. When wallClock is enabled, cycle is resynced from the host's clock
// here rather than incremented per instruction.
func (h *Hart) checkTimer() error {
	if h.wallClock {
		h.cycle = uint64(time.Since(h.epoch).Microseconds())
	}

	if h.cycle >= h.timerMatch {
		h.mip |= IntMTI
	}

	return nil
}

// Step fetches, decodes, and executes a single instruction, then advances
// cycle/instret and delivers any trap the instruction raised. Every
// operation's Execute sets pc to target-4 for taken jumps/branches; Step
// applies the unconditional +4 afterward, so non-control-flow instructions
// never need to touch pc at all.
func (h *Hart) Step() error {
	ir, trap := h.Mem.Fetch(h.pc)
	if trap != nil {
		if h.failOnFault {
			return trap
		}

		h.raise(trap)
		h.advanceCounters()

		return nil
	}

	op := h.decode(Instruction(ir))

	op.Execute()

	if err := op.Err(); err != nil {
		h.log.Debug("trap", "OP", op, "TRAP", err)

		if h.failOnFault {
			return err
		}

		h.raise(err)
		h.advanceCounters()

		return nil
	}

	h.log.Debug("executed", "OP", op, "PC", h.pc)

	h.pc += 4
	h.advanceCounters()

	switch h.pendingSignal {
	case SignalHalt:
		h.pendingSignal = SignalNone
		return ErrHalted
	case SignalRestart:
		h.pendingSignal = SignalNone
		return ErrRestart
	}

	return nil
}

func (h *Hart) advanceCounters() {
	if !h.wallClock {
		h.cycle++
	}

	h.instret++
}
