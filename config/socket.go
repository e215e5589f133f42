package config

import "time"

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	MaxConnections  int `toml:"max_connections" json:"max_connections"`
	PingInterval    int `toml:"ping_interval_seconds" json:"ping_interval_seconds"`
	WriteTimeout    int `toml:"write_timeout_seconds" json:"write_timeout_seconds"`
	ReadBufferSize  int `toml:"read_buffer_size" json:"read_buffer_size"`
	WriteBufferSize int `toml:"write_buffer_size" json:"write_buffer_size"`

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `toml:"send_buffer" json:"send_buffer"`
	// ReplayTail is how many recent events per channel are replayed to a
	// new subscriber.
	ReplayTail int `toml:"replay_tail" json:"replay_tail"`
	// BatchIntervalMs is how often pending log lines are sent as a batch.
	BatchIntervalMs int `toml:"batch_interval_ms" json:"batch_interval_ms"`
	// MaxBatchSize flushes a channel's log lines early once this many are pending.
	MaxBatchSize int `toml:"max_batch_size" json:"max_batch_size"`
	// ActionsPerSecond and ActionBurst rate limit inbound client actions.
	ActionsPerSecond float64 `toml:"actions_per_second" json:"actions_per_second"`
	ActionBurst      int     `toml:"action_burst" json:"action_burst"`
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		MaxConnections:   1000,
		PingInterval:     30,
		WriteTimeout:     10,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBuffer:       256,
		ReplayTail:       200,
		BatchIntervalMs:  100,
		MaxBatchSize:     500,
		ActionsPerSecond: 20,
		ActionBurst:      40,
	}
}

// BatchInterval returns BatchIntervalMs as a duration.
func (c *SocketConfig) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMs) * time.Millisecond
}

// PingPeriod returns PingInterval as a duration.
func (c *SocketConfig) PingPeriod() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// WriteWait returns WriteTimeout as a duration.
func (c *SocketConfig) WriteWait() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}
