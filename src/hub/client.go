package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/jobfeed/src/types"
	"golang.org/x/time/rate"
)

// pinger is implemented by connections that support keepalive pings.
type pinger interface {
	Ping() error
}

// Client wraps a WebSocket connection and manages message flow.
type Client struct {
	ID          string
	UserAgent   string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Message
	connectedAt time.Time
	channels    map[string]bool
	limiter     *rate.Limiter
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a new WebSocket client wrapper.
func NewClient(id string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Message, h.cfg.SendBuffer),
		connectedAt: time.Now(),
		channels:    make(map[string]bool),
		limiter:     rate.NewLimiter(rate.Limit(h.cfg.ActionsPerSecond), h.cfg.ActionBurst),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return types.ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Channels:    channels,
		UserAgent:   c.UserAgent,
	}
}

// AddChannel adds a channel subscription.
func (c *Client) AddChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

// RemoveChannel removes a channel subscription.
func (c *Client) RemoveChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// ReadPump reads actions from the WebSocket and routes them to the hub.
// Actions beyond the client's rate limit are dropped.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		var action types.Action
		if err := c.conn.ReadJSON(&action); err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.hub.logger.Warn().
				Str("client_id", c.ID).
				Str("action", action.Action).
				Msg("action rate limit exceeded, dropping")
			continue
		}
		select {
		case c.hub.incoming <- inbound{clientID: c.ID, action: action}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes messages from the send channel to the WebSocket and
// keeps the connection alive with pings.
func (c *Client) WritePump() {
	defer c.conn.Close()

	var tick <-chan time.Time
	p, canPing := c.conn.(pinger)
	if canPing && c.hub.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.hub.cfg.PingPeriod())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-tick:
			if err := p.Ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
