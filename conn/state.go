package conn

import (
	"github.com/connkit/wsconn/transport"
)

// State is the authoritative record of one connection: its endpoint
// identity, lifecycle status, current transport handle and generation,
// and the set of open streams.
//
// A State is exclusively owned by its Owner's loop goroutine. Snapshot
// copies are handed out for inspection; mutation only ever happens
// inside a single message-processing turn, which is what makes the
// apply-or-ignore transition semantics below safe without locks.
type State struct {
	// Endpoint is the immutable identity set at creation.
	Endpoint transport.Endpoint

	// Options holds transport-only configuration (TLS, subprotocols,
	// headers). Application session state never lives here.
	Options transport.Options

	// Status is the current lifecycle state.
	Status Status

	// Handle is the current transport handle; nil when not connected.
	Handle transport.Handle

	// Generation counts transport adoptions: it increases on every
	// fresh dial and on every ownership transfer. Events tagged with
	// an older generation are stale and discarded.
	Generation uint64

	// ActiveStreams maps open stream ids to their kind.
	ActiveStreams map[string]transport.StreamKind

	// ReconnectAttempts counts attempts since the last successful
	// upgrade. Reset to zero on every WebSocketConnected transition.
	ReconnectAttempts int

	// mon is the liveness watch on Handle. Released and re-established
	// whenever Handle changes.
	mon *monitor
}

// NewState creates a connection state in the Initialized status.
func NewState(ep transport.Endpoint, opts transport.Options) *State {
	return &State{
		Endpoint:      ep,
		Options:       opts,
		ActiveStreams: map[string]transport.StreamKind{},
	}
}

// ----------------------------------------------------------------------------
// Transitions. Every transition is apply-or-ignore: a request that is not
// valid from the current status returns false and leaves the state
// untouched. Callers log ignored attempts at debug level at most; they
// are never errors.
// ----------------------------------------------------------------------------

// beginConnect moves the connection into Connecting and allocates a new
// generation. Valid from Initialized (first connect), Reconnecting
// (backoff timer expired) and Disconnected (manual reconnect).
func (s *State) beginConnect() bool {
	switch s.Status {
	case Initialized, Reconnecting, Disconnected:
		s.Status = Connecting
		s.Generation++
		return true
	default:
		return false
	}
}

// markConnected records the established transport. Valid only from
// Connecting.
func (s *State) markConnected(h transport.Handle) bool {
	if s.Status != Connecting {
		return false
	}
	s.Status = Connected
	s.Handle = h
	return true
}

// markUpgraded records the confirmed protocol upgrade and resets the
// reconnect attempt counter. Valid only from Connected.
func (s *State) markUpgraded() bool {
	if s.Status != Connected {
		return false
	}
	s.Status = WebSocketConnected
	s.ReconnectAttempts = 0
	return true
}

// markDisconnected records the loss of the transport, dropping the
// handle, its monitor and all open streams. Valid from Connecting,
// Connected and WebSocketConnected.
func (s *State) markDisconnected() bool {
	switch s.Status {
	case Connecting, Connected, WebSocketConnected:
		s.Status = Disconnected
		s.dropTransport()
		return true
	default:
		return false
	}
}

// markReconnecting records a scheduled reconnection attempt. Valid only
// from Disconnected. ReconnectAttempts only ever increases through this
// transition.
func (s *State) markReconnecting() bool {
	if s.Status != Disconnected {
		return false
	}
	s.Status = Reconnecting
	s.ReconnectAttempts++
	return true
}

// markClosed moves the connection to its terminal state, releasing the
// transport and streams. Valid from every status except Closed itself.
func (s *State) markClosed() bool {
	if s.Status == Closed {
		return false
	}
	s.Status = Closed
	s.dropTransport()
	return true
}

// openStream records a stream-open confirmation. Streams only exist on
// a live transport.
func (s *State) openStream(id string, kind transport.StreamKind) bool {
	switch s.Status {
	case Connected, WebSocketConnected:
		s.ActiveStreams[id] = kind
		return true
	default:
		return false
	}
}

// closeStream removes a stream. Removing an unknown stream is a no-op.
func (s *State) closeStream(id string) {
	delete(s.ActiveStreams, id)
}

// dropTransport releases the monitor and clears the handle and streams.
func (s *State) dropTransport() {
	if s.mon != nil {
		s.mon.release()
		s.mon = nil
	}
	s.Handle = nil
	if len(s.ActiveStreams) > 0 {
		s.ActiveStreams = map[string]transport.StreamKind{}
	}
}

// snapshot returns a copy safe to hand outside the owner loop. The
// monitor token stays private.
func (s *State) snapshot() State {
	out := *s
	out.mon = nil
	out.ActiveStreams = make(map[string]transport.StreamKind, len(s.ActiveStreams))
	for id, kind := range s.ActiveStreams {
		out.ActiveStreams[id] = kind
	}
	return out
}
