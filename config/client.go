package config

import (
	"time"

	"github.com/orchestra-mcp/jobfeed/src/realtime"
)

// ClientConfig holds the settings of a realtime feed client.
type ClientConfig struct {
	URL                   string `toml:"url"`
	ReconnectDelayMs      int    `toml:"reconnect_delay_ms"`
	MaxReconnectAttempts  int    `toml:"max_reconnect_attempts"`
	BufferFlushIntervalMs int    `toml:"buffer_flush_interval_ms"`
	QueueWhileConnecting  bool   `toml:"queue_while_connecting"`
}

// DefaultClientConfig mirrors realtime.DefaultConfig.
func DefaultClientConfig() ClientConfig {
	d := realtime.DefaultConfig("ws://localhost:8080/ws")
	return ClientConfig{
		URL:                   d.URL,
		ReconnectDelayMs:      int(d.ReconnectDelay / time.Millisecond),
		MaxReconnectAttempts:  d.MaxReconnectAttempts,
		BufferFlushIntervalMs: int(d.BufferFlushInterval / time.Millisecond),
		QueueWhileConnecting:  d.QueueWhileConnecting,
	}
}

// Realtime converts the file settings into a realtime.Config. Callbacks are
// left for the caller to set.
func (c ClientConfig) Realtime() realtime.Config {
	return realtime.Config{
		URL:                  c.URL,
		ReconnectDelay:       time.Duration(c.ReconnectDelayMs) * time.Millisecond,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		BufferFlushInterval:  time.Duration(c.BufferFlushIntervalMs) * time.Millisecond,
		QueueWhileConnecting: c.QueueWhileConnecting,
	}
}
