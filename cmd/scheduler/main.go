// The scheduler runs due matches. It lives in its own process so a long
// engine run can never stall the HTTP API, and so it can be restarted
// independently of it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/algobattle/algobattle-server/cmd/scheduler/cmds"
	"github.com/algobattle/algobattle-server/internal/logger"
)

func main() {
	logger.InitSlog()

	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer cancelSignal()

	if err := cmds.Execute(ctx); err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)
		cancelSignal()
		os.Exit(1)
	}
}
