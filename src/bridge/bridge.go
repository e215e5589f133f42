package bridge

import "github.com/orchestra-mcp/jobfeed/src/types"

// Bridge defines the interface for cross-instance event broadcasting.
// Implementations relay job events between multiple server instances.
type Bridge interface {
	// Publish sends an event for channel to all other instances.
	Publish(channel string, msg types.Message) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive events from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(channel string, msg types.Message)
}
