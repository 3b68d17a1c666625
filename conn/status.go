package conn

// Status is the lifecycle state of a logical connection. The zero value
// is Initialized. Values are ordered by lifecycle progress; ownership
// adoption uses that ordering to refuse moving a connection backward.
type Status int

const (
	// Initialized is the state before the first connect request.
	Initialized Status = iota

	// Connecting means a transport dial is in flight.
	Connecting

	// Connected means the underlying transport is established.
	Connected

	// WebSocketConnected means the protocol upgrade is confirmed and
	// the connection is fully usable.
	WebSocketConnected

	// Disconnected means the transport was lost and a retry decision
	// is pending.
	Disconnected

	// Reconnecting means a reconnection attempt is scheduled.
	Reconnecting

	// Closed is terminal: explicit close or retry budget exhausted.
	Closed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case WebSocketConnected:
		return "websocket_connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
