package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/jobfeed/config"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{})
	app := &cli.Command{
		Name:     "jobfeed",
		Usage:    "Stream job status, progress and logs over WebSocket",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger := config.NewLogger(config.LogConfig{}, os.Stderr)
		logger.Fatal().Err(err).Msg("jobfeed failed")
	}
}
