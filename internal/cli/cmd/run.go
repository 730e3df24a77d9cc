package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/smoynes/rv32ima/internal/cli"
	"github.com/smoynes/rv32ima/internal/console"
	"github.com/smoynes/rv32ima/internal/encoding"
	"github.com/smoynes/rv32ima/internal/hart"
	"github.com/smoynes/rv32ima/internal/image"
	"github.com/smoynes/rv32ima/internal/log"
)

// Runner returns the "run" sub-command: boots a kernel image on the
// emulator.
func Runner() cli.Command {
	return &runner{log: log.DefaultLogger()}
}

type runner struct {
	ramBytes    int
	cmdline     string
	dtbPath     string
	failOnFault bool
	fixedUpdate bool
	batch       int
	headless    bool
	debugCSR    bool
	format      string

	log *log.Logger
}

func (runner) Description() string { return "boot a kernel image" }

func (runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run [-ram bytes] [-cmdline STR] [-dtb path] [-format raw|hex]
             [-fail-on-fault] [-fixed-update] [-batch N] [-headless] [-debug-csr] kernel.bin

Boots kernel.bin on the emulator. A device tree blob is required; there is
no embedded default.`)

	return err
}

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.IntVar(&r.ramBytes, "ram", 64*1024*1024, "amount of guest RAM, in `bytes`")
	fs.StringVar(&r.cmdline, "cmdline", "", "kernel command line, spliced into the device tree")
	fs.StringVar(&r.dtbPath, "dtb", "", "`path` to a flattened device tree blob (required)")
	fs.BoolVar(&r.failOnFault, "fail-on-fault", false, "stop on the first unhandled exception instead of delivering it to the guest")
	fs.BoolVar(&r.fixedUpdate, "fixed-update", false, "advance the timer by one tick per retired instruction instead of by wall-clock time")
	fs.IntVar(&r.batch, "batch", 1024, "instructions executed per interrupt/context-cancellation check")
	fs.BoolVar(&r.headless, "headless", false, "don't open a raw-terminal console; no device bridge is attached, so guest UART and syscon accesses fault")
	fs.BoolVar(&r.debugCSR, "debug-csr", false, "honor the register-dump debug CSR")
	fs.StringVar(&r.format, "format", "raw", "kernel image `format`: raw or hex")

	return fs
}

// Run boots a kernel image, resetting and re-running it each time the guest
// writes the syscon restart value. Exit codes: 2 for setup errors, 1 for a
// runtime fatal, 0 for a clean halt or an externally cancelled run.
func (r *runner) Run(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) int {
	if len(args) == 0 {
		logger.Error("missing kernel image argument")
		return 2
	}

	if r.dtbPath == "" {
		logger.Error("missing required -dtb flag")
		return 2
	}

	kernel, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("reading kernel image", "err", err)
		return 2
	}

	switch r.format {
	case "raw":
	case "hex":
		dec := encoding.HexEncoding{}
		if err := dec.UnmarshalText(kernel); err != nil {
			logger.Error("decoding hex kernel image", "err", err)
			return 2
		}

		kernel = dec.Flatten()
	default:
		logger.Error("unknown kernel image format", "format", r.format)
		return 2
	}

	dtb, err := os.ReadFile(r.dtbPath)
	if err != nil {
		logger.Error("reading device tree blob", "err", err)
		return 2
	}

	h := hart.New(hart.Word(r.ramBytes),
		hart.WithLogger(logger),
		hart.WithWallClock(!r.fixedUpdate),
		hart.WithFailOnFault(r.failOnFault),
		hart.WithDebugCSR(r.debugCSR),
	)

	if !r.headless {
		con, err := console.NewConsole(os.Stdin, os.Stdout)

		switch {
		case errors.Is(err, console.ErrNoTTY):
			logger.Warn("stdin is not a terminal, running headless")
		case err != nil:
			logger.Error("opening console", "err", err)
			return 2
		default:
			var cancel context.CancelFunc

			ctx, cancel = con.Context(ctx)
			defer cancel()

			hart.WithBridge(con)(h)
		}
	}

	img := image.New(kernel, dtb, r.cmdline)

	entry, dtbAddr, err := img.LoadTo(h)
	if err != nil {
		logger.Error("loading image", "err", err)
		return 2
	}

	h.Reset(entry, dtbAddr)

	for {
		logger.Info("booting", "ram", r.ramBytes, "pc", h.PC())

		err = h.Run(ctx, r.batch)

		switch {
		case errors.Is(err, hart.ErrHalted):
			logger.Info("halted")
			return 0
		case errors.Is(err, hart.ErrRestart):
			logger.Info("restart requested")

			clear(h.Mem.RAM())

			if _, _, err := img.LoadTo(h); err != nil {
				logger.Error("reloading image", "err", err)
				return 2
			}

			h.Reset(entry, dtbAddr)

			continue
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			logger.Warn("stopped", "err", err)
			return 0
		case err != nil:
			logger.Error("runtime error", "err", err)
			return 1
		default:
			return 0
		}
	}
}
