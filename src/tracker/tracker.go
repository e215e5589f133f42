// Package tracker keeps the latest known state of every job seen on a
// realtime client.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/orchestra-mcp/jobfeed/src/realtime"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/rs/zerolog"
)

// DefaultMaxLogLines bounds each job's log tail when Config leaves it unset.
const DefaultMaxLogLines = 500

// Job is the last known state of one job channel.
type Job struct {
	ID        string          `json:"id"`
	Status    types.JobStatus `json:"status,omitempty"`
	Progress  float64         `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Logs      []string        `json:"logs,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Done reports whether the job reached a final status.
func (j Job) Done() bool {
	return j.Status == types.StatusCompleted || j.Status == types.StatusFailed
}

// Config configures a Tracker.
type Config struct {
	// DefaultChannel receives progress and log events that carry no channel_id.
	DefaultChannel string
	// MaxLogLines bounds each job's log tail.
	MaxLogLines int
	// OnChange, if set, is called with a copy of a job after every update.
	OnChange func(Job)
}

// Tracker folds job events into per-channel Job records.
type Tracker struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job

	client *realtime.Client
	subs   []*realtime.Subscription
}

// New creates an empty tracker.
func New(cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.MaxLogLines <= 0 {
		cfg.MaxLogLines = DefaultMaxLogLines
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger.With().Str("component", "tracker").Logger(),
		now:    time.Now,
		jobs:   make(map[string]*Job),
	}
}

// Bind subscribes the tracker to every job event type on c. A tracker binds
// to at most one client; binding again moves it.
func (t *Tracker) Bind(c *realtime.Client) {
	t.Unbind()
	t.client = c
	for _, mt := range []types.MessageType{types.TypeConnected, types.TypeStatus, types.TypeProgress, types.TypeLog} {
		t.subs = append(t.subs, c.Subscribe(mt, t.Apply))
	}
}

// Unbind removes the tracker's subscriptions from its client.
func (t *Tracker) Unbind() {
	if t.client == nil {
		return
	}
	for _, sub := range t.subs {
		t.client.Unsubscribe(sub.Type(), sub)
	}
	t.client = nil
	t.subs = nil
}

// Apply folds one event into the job it belongs to.
func (t *Tracker) Apply(msg types.Message) {
	id := types.ChannelOf(msg)
	if id == "" {
		id = t.cfg.DefaultChannel
	}
	if id == "" {
		t.logger.Debug().Str("type", string(msg.Type())).Msg("event without channel, ignored")
		return
	}

	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		job = &Job{ID: id}
		t.jobs[id] = job
	}
	switch m := msg.(type) {
	case types.Connected:
		// The server replays its tail after this, so start the log over.
		job.Logs = nil
	case types.Status:
		job.Status = m.Status
		job.Progress = m.Progress
		job.Message = m.Message
		job.Error = m.Error
	case types.Progress:
		job.Progress = m.Percent
	case types.Log:
		job.Logs = append(job.Logs, m.Line)
		if over := len(job.Logs) - t.cfg.MaxLogLines; over > 0 {
			job.Logs = append([]string(nil), job.Logs[over:]...)
		}
	}
	job.UpdatedAt = t.now()
	snapshot := job.clone()
	t.mu.Unlock()

	if t.cfg.OnChange != nil {
		t.cfg.OnChange(snapshot)
	}
}

// Job returns a copy of the job with the given id.
func (t *Tracker) Job(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Snapshot returns copies of all jobs ordered by id.
func (t *Tracker) Snapshot() []Job {
	t.mu.RLock()
	out := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job.clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Forget drops a job's record.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}

func (j *Job) clone() Job {
	c := *j
	c.Logs = append([]string(nil), j.Logs...)
	return c
}
