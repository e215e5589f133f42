package main

import (
	"context"

	"github.com/orchestra-mcp/jobfeed/src/bridge"
	"github.com/orchestra-mcp/jobfeed/src/server"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the job event server",
		Flags: []cli.Flag{
			configFlag(),
			verboseFlag(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides [server].addr",
			},
			&cli.BoolFlag{
				Name:    "redis",
				Usage:   "Relay events between instances through Redis (REDIS_ADDR, REDIS_PASSWORD, REDIS_DB)",
				Sources: cli.EnvVars("JOBFEED_REDIS"),
			},
		},
		Action: r.Serve,
	}
}

// Serve runs the server until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	var opts []server.Option
	if cmd.Bool("redis") {
		opts = append(opts, server.WithRedis(bridge.RedisConfigFromEnv()))
	}
	return server.New(cfg, logger, opts...).ListenAndServe(ctx)
}
