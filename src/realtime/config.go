package realtime

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the construction parameters of a Client. It is copied at
// construction and never changes afterwards.
type Config struct {
	// URL is the channel endpoint, e.g. ws://host/ws?channel=job-1.
	URL string
	// ReconnectDelay is the base backoff unit.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive automatic reconnects.
	MaxReconnectAttempts int
	// BufferFlushInterval is how long log lines are held before delivery.
	BufferFlushInterval time.Duration
	// QueueWhileConnecting buffers Send calls made while Connecting.
	QueueWhileConnecting bool

	OnStateChange func(State)
	OnError       func(error)
}

// DefaultConfig returns the default client configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
		BufferFlushInterval:  100 * time.Millisecond,
	}
}

// Option customises a Client's collaborators.
type Option func(*Client)

// WithDialer sets the transport dialer. The default is a WebSocketDialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithClock sets the clock used for timestamps and timers.
func WithClock(clk Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}
