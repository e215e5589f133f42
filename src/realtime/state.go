package realtime

// State is the connection state of a Client.
type State int

const (
	// Disconnected means no transport is open and no reconnect is pending.
	Disconnected State = iota
	// Connecting means a transport has been dialed but has not opened yet.
	Connecting
	// Connected means the transport is open.
	Connected
	// Reconnecting means a reconnect timer is pending after an abnormal close.
	Reconnecting
	// Failed means automatic reconnects were exhausted.
	Failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether the state only changes on an explicit Connect.
func (s State) terminal() bool {
	return s == Disconnected || s == Failed
}
