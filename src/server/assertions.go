package server

import (
	"github.com/orchestra-mcp/jobfeed/src/bridge"
	"github.com/orchestra-mcp/jobfeed/src/hub"
	"github.com/orchestra-mcp/jobfeed/src/types"
)

// Compile-time interface assertions.
var (
	_ bridge.BroadcastTarget = (*hub.Hub)(nil)
	_ hub.MessageBridge      = (*bridge.RedisBridge)(nil)
	_ bridge.Bridge          = (*bridge.RedisBridge)(nil)
	_ types.Conn             = (*fasthttpConn)(nil)
)
