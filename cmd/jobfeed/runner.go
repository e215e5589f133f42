package main

import (
	"io"
	"os"

	"github.com/orchestra-mcp/jobfeed/config"
	"github.com/orchestra-mcp/jobfeed/src/realtime"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// Runner holds the dependencies shared by every command.
type Runner struct {
	output io.Writer
	logOut io.Writer
	dialer realtime.Dialer
}

// RunnerOpts configures a Runner. Zero values use stdout, stderr and the
// default websocket dialer.
type RunnerOpts struct {
	Output io.Writer
	LogOut io.Writer
	Dialer realtime.Dialer
}

// NewRunner creates a Runner with the provided options.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOut == nil {
		opts.LogOut = os.Stderr
	}
	return &Runner{output: opts.Output, logOut: opts.LogOut, dialer: opts.Dialer}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{serveCommand(r), watchCommand(r)}
}

// loadConfig reads the --config file, applies JOBFEED_* overrides and builds
// the root logger.
func (r *Runner) loadConfig(cmd *cli.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadOrDefault(cmd.String("config"))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg.ApplyEnv()
	if cmd.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	return cfg, config.NewLogger(cfg.Log, r.logOut), nil
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "jobfeed.toml",
		Sources: cli.EnvVars("JOBFEED_CONFIG"),
	}
}

func verboseFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable debug logging",
	}
}
