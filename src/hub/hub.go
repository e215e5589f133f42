package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/jobfeed/config"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AggregateChannel receives every event published on any channel.
const AggregateChannel = "*"

// MessageBridge publishes messages to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(channel string, msg types.Message) error
	Available() bool
}

// Hub manages all WebSocket client connections and channel subscriptions.
type Hub struct {
	cfg      config.SocketConfig
	clients  map[string]*Client
	channels map[string]map[string]bool // channel -> set of clientIDs
	tails    map[string][]types.Message // channel -> recent events, oldest first

	// pendingLogs is only touched by the Run goroutine.
	pendingLogs map[string][]types.Message

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	broadcast  chan broadcastMsg
	localCast  chan broadcastMsg // messages from bridge, no re-publish

	handlers  map[string]types.ActionHandler
	onConnect []func(string)
	onDisconn []func(string)

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	stop   sync.Once
}

type broadcastMsg struct {
	channel string
	msg     types.Message
}

type inbound struct {
	clientID string
	action   types.Action
	// reply, if set, receives whether the action succeeded.
	reply chan bool
}

// New creates a new Hub instance. Zero-valued limits in cfg fall back to
// usable values.
func New(cfg *config.SocketConfig, logger zerolog.Logger) *Hub {
	c := *config.DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.BatchIntervalMs <= 0 {
		c.BatchIntervalMs = 100
	}
	if c.ActionsPerSecond <= 0 {
		c.ActionsPerSecond = float64(rate.Inf)
	}
	if c.ActionBurst <= 0 {
		c.ActionBurst = 1
	}

	return &Hub{
		cfg:         c,
		clients:     make(map[string]*Client),
		channels:    make(map[string]map[string]bool),
		tails:       make(map[string][]types.Message),
		pendingLogs: make(map[string][]types.Message),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		incoming:    make(chan inbound, 256),
		broadcast:   make(chan broadcastMsg, 256),
		localCast:   make(chan broadcastMsg, 256),
		handlers:    make(map[string]types.ActionHandler),
		logger:      logger.With().Str("component", "hub").Logger(),
		done:        make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, published messages are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a message from the bridge to local subscribers only.
// It does not re-publish to Redis, preventing infinite loops.
func (h *Hub) BroadcastToLocal(channel string, msg types.Message) {
	select {
	case h.localCast <- broadcastMsg{channel: channel, msg: msg}:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.cfg.BatchInterval())
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			ok := h.handleAction(in.clientID, in.action)
			if in.reply != nil {
				in.reply <- ok
			}
		case bm := <-h.broadcast:
			h.publishToBridge(bm.channel, bm.msg)
			h.deliver(bm.channel, bm.msg)
		case bm := <-h.localCast:
			h.deliver(bm.channel, bm.msg)
		case <-ticker.C:
			h.flushAll()
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })
}

// Register queues a client for registration. It reports false if the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Msg("client registered")

	for _, cb := range h.onConnect {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	// Remove from all channel subscriptions.
	for ch, subs := range h.channels {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	for _, cb := range h.onDisconn {
		cb(c.ID)
	}
}
