package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/bloons/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Logs go to stderr so command output on stdout stays machine readable.
	if err := logger.InitWithWriter(os.Stderr); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
