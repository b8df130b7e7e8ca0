// Command potencynet trains the potency model and writes test-set predictions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/potencynet/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	// A first SIGINT cancels the run between stages or batches; the exit code
	// is then 130.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
