package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/rs/zerolog"
)

// attempt is one dialed transport. Events are honoured only while the
// attempt is the client's current one.
type attempt struct {
	transport      Transport
	closeRequested bool
	// draining is set while queued payloads are written after open; Send
	// queues behind them until the drain finishes.
	draining bool
}

// notification is one queued OnStateChange or OnError call.
type notification struct {
	state State
	err   error
}

// Client is an automatically reconnecting message channel bound to one URL.
type Client struct {
	id     string
	cfg    Config
	policy ReconnectPolicy
	dialer Dialer
	clock  Clock
	logger zerolog.Logger

	subs *registry
	// deliverMu serializes handler invocations from the transport and flush paths.
	deliverMu sync.Mutex

	mu                sync.Mutex
	state             State
	current           *attempt
	reconnectAttempts int
	lastConnectedAt   time.Time
	reconnectTimer    Timer
	reconnectSeq      uint64
	flushTimer        Timer
	flushSeq          uint64
	sendQueue         [][]byte
	logBuffer         []types.Log
	// disconnects counts Disconnect calls; a flush started before one stops
	// delivering.
	disconnects uint64

	// notifications are queued under mu in the order they happen and fired
	// by whichever goroutine holds the notifying flag.
	notifications []notification
	notifying     bool
}

// NewClient creates a client in the Disconnected state. Nothing is dialed
// until Connect is called.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		id:     uuid.New().String(),
		cfg:    cfg,
		policy: ReconnectPolicy{BaseDelay: cfg.ReconnectDelay, MaxAttempts: cfg.MaxReconnectAttempts},
		clock:  SystemClock(),
		logger: zerolog.Nop(),
		subs:   newRegistry(),
		state:  Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &WebSocketDialer{Logger: c.logger}
	}
	c.logger = c.logger.With().
		Str("component", "realtime-client").
		Str("client_id", c.id).
		Str("url", cfg.URL).
		Logger()
	return c
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// URL returns the endpoint the client dials.
func (c *Client) URL() string { return c.cfg.URL }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the number of consecutive automatic reconnects
// scheduled since the last successful open.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempts
}

// LastConnectedAt returns when the transport last opened, or the zero time.
func (c *Client) LastConnectedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastConnectedAt
}

// Connect dials a new transport unless one is already active.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.unlockAndNotify()
	c.connectLocked()
}

func (c *Client) connectLocked() {
	if c.current != nil && !c.state.terminal() {
		return
	}
	if c.state == Failed {
		c.reconnectAttempts = 0
	}
	c.stopReconnectTimerLocked()

	att := &attempt{}
	c.current = att
	c.setStateLocked(Connecting)
	att.transport = c.dialer.Dial(c.cfg.URL, TransportEvents{
		OnOpen:    func() { c.handleOpen(att) },
		OnMessage: func(data []byte) { c.handleMessage(att, data) },
		OnError:   func(err error) { c.handleError(att, err) },
		OnClose:   func(code int, reason string) { c.handleClose(att, code, reason) },
	})

	c.logger.Debug().Int("attempt", c.reconnectAttempts).Msg("dialing")
}

// Disconnect cancels pending timers, closes the transport cleanly and moves
// to Disconnected. Calling it again is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()

	c.stopReconnectTimerLocked()
	c.stopFlushTimerLocked()
	if n := len(c.logBuffer); n > 0 {
		c.logger.Debug().Int("lines", n).Msg("discarding buffered log lines")
	}
	c.logBuffer = nil
	c.sendQueue = nil
	c.disconnects++

	var t Transport
	if c.current != nil {
		c.current.closeRequested = true
		t = c.current.transport
		c.current = nil
	}
	c.setStateLocked(Disconnected)
	c.unlockAndNotify()

	if t != nil {
		if err := t.Close(CloseNormalClosure, "client disconnect"); err != nil {
			c.logger.Debug().Err(err).Msg("transport close failed")
		}
	}
}

func (c *Client) handleOpen(att *attempt) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if c.current != att {
		return
	}
	c.setStateLocked(Connected)
	c.reconnectAttempts = 0
	c.lastConnectedAt = c.clock.Now()

	// Writes happen outside mu so getters are not held up by the network.
	// Sends made meanwhile are queued behind the drain to keep FIFO order.
	att.draining = true
	flushed := 0
	for c.current == att && len(c.sendQueue) > 0 {
		queued := c.sendQueue
		c.sendQueue = nil
		c.mu.Unlock()

		var errs []error
		for _, data := range queued {
			if err := att.transport.Send(data); err != nil {
				errs = append(errs, err)
			}
		}

		c.mu.Lock()
		flushed += len(queued)
		for _, err := range errs {
			c.notifyErrorLocked(err)
		}
	}
	att.draining = false

	c.logger.Info().Int("flushed", flushed).Msg("connected")
}

func (c *Client) handleClose(att *attempt, code int, reason string) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if c.current != att {
		return
	}
	c.current = nil

	log := c.logger.With().Int("code", code).Str("reason", reason).Logger()

	if att.closeRequested || code == CloseNormalClosure {
		c.sendQueue = nil
		c.setStateLocked(Disconnected)
		log.Info().Msg("closed")
		return
	}

	// Payloads queued for this attempt never reached a server.
	c.sendQueue = nil

	if c.policy.Exhausted(c.reconnectAttempts) {
		c.setStateLocked(Failed)
		log.Warn().Int("attempts", c.reconnectAttempts).Msg("reconnect attempts exhausted")
		return
	}

	delay := c.policy.Delay(c.reconnectAttempts)
	c.reconnectAttempts++
	c.setStateLocked(Reconnecting)
	c.reconnectSeq++
	seq := c.reconnectSeq
	c.reconnectTimer = c.clock.AfterFunc(delay, func() { c.fireReconnect(seq) })

	log.Warn().
		Int("attempt", c.reconnectAttempts).
		Dur("delay", delay).
		Msg("connection lost, reconnect scheduled")
}

func (c *Client) handleError(att *attempt, err error) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if c.current != att {
		return
	}
	c.logger.Warn().Err(err).Msg("transport error")
	c.notifyErrorLocked(err)
}

func (c *Client) fireReconnect(seq uint64) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if c.reconnectTimer == nil || seq != c.reconnectSeq {
		return
	}
	c.reconnectTimer = nil
	c.connectLocked()
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectSeq++
}

func (c *Client) stopFlushTimerLocked() {
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.flushSeq++
}

// setStateLocked records a transition; c.mu must be held.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.notifications = append(c.notifications, notification{state: s})
}

func (c *Client) notifyErrorLocked(err error) {
	c.notifications = append(c.notifications, notification{err: err})
}

// unlockAndNotify releases c.mu and fires queued callbacks without it, so
// callbacks may re-enter the client. Only one goroutine fires at a time and
// it drains the queue in order, so callbacks from the caller, the transport
// and the timers are never reordered.
func (c *Client) unlockAndNotify() {
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.notifications) > 0 {
		batch := c.notifications
		c.notifications = nil
		c.mu.Unlock()

		for _, n := range batch {
			c.fire(n)
		}

		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

// fire runs one callback. A panicking callback is logged so the queue keeps
// draining.
func (c *Client) fire(n notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("callback panicked")
		}
	}()
	if n.err != nil {
		if c.cfg.OnError != nil {
			c.cfg.OnError(n.err)
		}
		return
	}
	c.logger.Debug().Str("state", n.state.String()).Msg("state changed")
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(n.state)
	}
}
