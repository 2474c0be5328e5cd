// Command citoolbox runs the marine cumulative impact pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/interfaces/cli"
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
