package realtime

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock fires timers synchronously from Advance, in due order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clk  *fakeClock
	id   int
	when time.Time
	f    func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clk: c, id: c.seq, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	for i, other := range t.clk.timers {
		if other == t {
			t.clk.timers = append(t.clk.timers[:i], t.clk.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves time forward by d, running every timer that falls due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool {
			if c.timers[i].when.Equal(c.timers[j].when) {
				return c.timers[i].id < c.timers[j].id
			}
			return c.timers[i].when.Before(c.timers[j].when)
		})
		if len(c.timers) == 0 || c.timers[0].when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		next := c.timers[0]
		c.timers = c.timers[1:]
		c.now = next.when
		c.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fakeTransport records sends and lets tests fire lifecycle events.
type fakeTransport struct {
	url    string
	events TransportEvents

	mu          sync.Mutex
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closeCode = code
	t.closeReason = reason
	return nil
}

func (t *fakeTransport) sentStrings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, b := range t.sent {
		out[i] = string(b)
	}
	return out
}

func (t *fakeTransport) open()              { t.events.OnOpen() }
func (t *fakeTransport) receive(raw string) { t.events.OnMessage([]byte(raw)) }
func (t *fakeTransport) fail(err error)     { t.events.OnError(err) }
func (t *fakeTransport) closeWith(code int) { t.events.OnClose(code, "") }
func (t *fakeTransport) dropAbnormally()    { t.closeWith(CloseAbnormalClosure) }

func (t *fakeTransport) wasClosed() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.closeCode
}

// fakeDialer hands out fakeTransports and remembers all of them.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(url string, events TransportEvents) Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &fakeTransport{url: url, events: events}
	d.transports = append(d.transports, t)
	return t
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// harness bundles a client with its fakes and the states it reported.
type harness struct {
	client *Client
	dialer *fakeDialer
	clock  *fakeClock

	mu     sync.Mutex
	states []State
	errs   []error
}

func (h *harness) recordedStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *harness) recordedErrors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// newHarness builds a client on fakes. mutate may adjust the config.
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{dialer: &fakeDialer{}, clock: newFakeClock()}
	cfg := DefaultConfig("ws://jobs.test/ws?channel=job-1")
	cfg.ReconnectDelay = time.Second
	cfg.MaxReconnectAttempts = 3
	cfg.BufferFlushInterval = 100 * time.Millisecond
	cfg.OnStateChange = func(s State) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.states = append(h.states, s)
	}
	cfg.OnError = func(err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.errs = append(h.errs, err)
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.client = NewClient(cfg,
		WithDialer(h.dialer),
		WithClock(h.clock),
		WithLogger(zerolog.Nop()),
	)
	t.Cleanup(h.client.Disconnect)
	return h
}

// connectAndOpen connects and opens the resulting transport.
func (h *harness) connectAndOpen() *fakeTransport {
	h.client.Connect()
	tr := h.dialer.last()
	tr.open()
	return tr
}
