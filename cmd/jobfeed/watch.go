package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/orchestra-mcp/jobfeed/src/realtime"
	"github.com/orchestra-mcp/jobfeed/src/tracker"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/urfave/cli/v3"
)

// errJobFailed is returned by watch --exit-on-done when the job failed.
var errJobFailed = errors.New("job failed")

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Follow a job channel and print its events",
		ArgsUsage: "[channel]",
		Flags: []cli.Flag{
			configFlag(),
			verboseFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "WebSocket endpoint, overrides [client].url",
			},
			&cli.StringFlag{
				Name:    "channel",
				Aliases: []string{"j"},
				Usage:   "Channel to subscribe to; \"*\" follows every job",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw event frames",
			},
			&cli.BoolFlag{
				Name:  "exit-on-done",
				Usage: "Exit once the job reports COMPLETED or FAILED",
			},
		},
		Action: r.Watch,
	}
}

// Watch connects a realtime client, subscribes to a channel and prints
// events until interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	channel := cmd.String("channel")
	if channel == "" {
		channel = cmd.Args().First()
	}

	rc := cfg.Client.Realtime()
	if u := cmd.String("url"); u != "" {
		rc.URL = u
	}
	rc.QueueWhileConnecting = true

	failed := make(chan error, 1)
	done := make(chan tracker.Job, 1)

	var client *realtime.Client
	rc.OnStateChange = func(s realtime.State) {
		switch s {
		case realtime.Connecting:
			// Each new connection needs its own subscribe; one queued frame
			// covers retries that never opened.
			if channel != "" && client.QueuedSends() == 0 {
				if err := client.Send(types.Action{Action: types.ActionSubscribe, Channel: channel}); err != nil {
					logger.Warn().Err(err).Msg("subscribe not sent")
				}
			}
		case realtime.Failed:
			select {
			case failed <- fmt.Errorf("giving up on %s after %d attempts", rc.URL, client.ReconnectAttempts()):
			default:
			}
		}
	}
	rc.OnError = func(err error) {
		logger.Warn().Err(err).Msg("connection error")
	}

	opts := []realtime.Option{realtime.WithLogger(logger)}
	if r.dialer != nil {
		opts = append(opts, realtime.WithDialer(r.dialer))
	}
	client = realtime.NewClient(rc, opts...)

	p := &printer{w: r.output, json: cmd.Bool("json"), channel: channel}
	for _, mt := range []types.MessageType{types.TypeConnected, types.TypeStatus, types.TypeProgress, types.TypeLog} {
		client.Subscribe(mt, p.print)
	}

	exitOnDone := cmd.Bool("exit-on-done")
	jobs := tracker.New(tracker.Config{
		DefaultChannel: channel,
		OnChange: func(j tracker.Job) {
			if exitOnDone && j.Done() && (channel == j.ID || channel == "") {
				select {
				case done <- j:
				default:
				}
			}
		},
	}, logger)
	jobs.Bind(client)
	defer jobs.Unbind()

	client.Connect()
	defer client.Disconnect()

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	case j := <-done:
		if j.Status == types.StatusFailed {
			return fmt.Errorf("%w: %s: %s", errJobFailed, j.ID, j.Error)
		}
		return nil
	}
}

// printer writes one line per event.
type printer struct {
	w       io.Writer
	json    bool
	channel string
}

func (p *printer) print(msg types.Message) {
	if p.json {
		data, err := types.Encode(msg)
		if err != nil {
			return
		}
		fmt.Fprintln(p.w, string(data))
		return
	}

	ch := types.ChannelOf(msg)
	if ch == "" {
		ch = p.channel
	}
	switch m := msg.(type) {
	case types.Connected:
		fmt.Fprintf(p.w, "[%s] connected\n", ch)
	case types.Status:
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s %.0f%%", ch, m.Status, m.Progress)
		if m.Message != "" {
			fmt.Fprintf(&b, " %s", m.Message)
		}
		if m.Error != "" {
			fmt.Fprintf(&b, " (error: %s)", m.Error)
		}
		fmt.Fprintln(p.w, b.String())
	case types.Progress:
		fmt.Fprintf(p.w, "[%s] %.0f%%\n", ch, m.Percent)
	case types.Log:
		fmt.Fprintf(p.w, "[%s] | %s\n", ch, m.Line)
	}
}
