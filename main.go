// Command rv32ima is the command-line interface to the emulator.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/smoynes/rv32ima/internal/cli"
	"github.com/smoynes/rv32ima/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Runner(),
	}
)

// Entry point.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result :=
		cli.New(ctx).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
