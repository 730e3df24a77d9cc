// Termtest is a manual testing tool for the UART/keyboard console. Lacking
// simple PTY support, running this tool by hand is easier than writing
// automated tests for the raw-terminal path.
package main

import (
	"context"
	"os"
	"time"

	"github.com/smoynes/rv32ima/internal/console"
	"github.com/smoynes/rv32ima/internal/hart"
	"github.com/smoynes/rv32ima/internal/log"
)

var logger = log.DefaultLogger()

func main() {
	con, err := console.NewConsole(os.Stdin, os.Stdout)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	ctx, cancel := con.Context(context.Background())
	defer cancel()

	poll := time.Tick(100 * time.Millisecond)
	timeout := time.After(5 * time.Second)

	logger.Info("Polling keyboard. Type keys; echoed back through the UART bridge.")

	for {
		select {
		case <-poll:
			v, ok := con.LoadMMIO(hart.UARTBaseAddr)
			if ok && v != 0 {
				con.StoreMMIO(hart.UARTBaseAddr, v)
			}
		case <-timeout:
			cancel()
			return
		case <-ctx.Done():
			if ctx.Err() != nil {
				logger.Error(context.Cause(ctx).Error())
			} else {
				logger.Info("Done")
			}

			return
		}
	}
}
