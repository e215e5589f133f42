package realtime

import "errors"

// Close codes the client distinguishes. They follow RFC 6455.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseAbnormalClosure = 1006
)

// ErrTransportClosed is returned by a transport that can no longer send.
var ErrTransportClosed = errors.New("transport closed")

// Transport is one underlying connection attempt. A Transport is never
// reused: every Connect dials a fresh one.
type Transport interface {
	// Send writes one text frame.
	Send(data []byte) error
	// Close requests a close with the given code. The transport still
	// reports OnClose afterwards.
	Close(code int, reason string) error
}

// TransportEvents are the lifecycle hooks a Transport reports through.
// Implementations must call them from a goroutine other than the one that
// called Dial, and must call OnClose exactly once, last.
type TransportEvents struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Dialer creates transports. Dial must not block on the network.
type Dialer interface {
	Dial(url string, events TransportEvents) Transport
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(url string, events TransportEvents) Transport

// Dial calls f.
func (f DialerFunc) Dial(url string, events TransportEvents) Transport {
	return f(url, events)
}
