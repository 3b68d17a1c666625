package conn

import (
	"github.com/connkit/wsconn/transport"
)

// Directive tells the owner what to do after a handler callback.
type Directive int

const (
	// Continue takes no further action.
	Continue Directive = iota

	// Reply sends the Reaction's frame on the connection.
	Reply

	// Reconnect tears the transport down and routes into the
	// reconnection governor.
	Reconnect

	// Stop closes the connection terminally.
	Stop
)

// Reaction is a handler callback's verdict. The zero value means
// Continue.
type Reaction struct {
	Directive Directive

	// Frame is the reply payload when Directive is Reply.
	Frame transport.Frame
}

// ReplyWith builds a Reply reaction carrying the given frame.
func ReplyWith(f transport.Frame) Reaction {
	return Reaction{Directive: Reply, Frame: f}
}

// Handler is the pluggable behavior surface of a connection: one method
// per protocol concern. The owner invokes handlers from its loop
// goroutine with sanitized, non-stale input only; implementations must
// not call back into the owning connection synchronously — they return
// a Reaction instead.
//
// Embed BaseHandler to implement only the callbacks you care about.
type Handler interface {
	// OnAuthRequired runs right after the protocol upgrade, before
	// OnConnected. Return a Reply reaction to send a credential frame.
	OnAuthRequired() Reaction

	// OnConnected runs once the connection is fully usable.
	OnConnected() Reaction

	// OnSubscriptionReplay returns the frames to send after every
	// upgrade, typically subscription requests that must be restored
	// when a transport is re-established.
	OnSubscriptionReplay() []transport.Frame

	// OnMessage runs for every inbound data frame.
	OnMessage(stream string, frame transport.Frame) Reaction

	// OnRateLimit gates outbound sends. Return false to reject the
	// frame with ErrRateLimited.
	OnRateLimit(stream string, frame transport.Frame) bool

	// OnDisconnected runs when the transport is lost, before the
	// governor decides on a retry. A Stop reaction overrides the
	// retry budget and closes the connection.
	OnDisconnected(err error) Reaction

	// OnError surfaces terminal failures (retry budget exhausted or a
	// Stop verdict) with the last transport error as reason.
	OnError(err error)
}

// BaseHandler is a no-op Handler. Embed it and override the callbacks
// your protocol needs.
type BaseHandler struct{}

// OnAuthRequired takes no action.
func (BaseHandler) OnAuthRequired() Reaction { return Reaction{} }

// OnConnected takes no action.
func (BaseHandler) OnConnected() Reaction { return Reaction{} }

// OnSubscriptionReplay replays nothing.
func (BaseHandler) OnSubscriptionReplay() []transport.Frame { return nil }

// OnMessage drops the frame.
func (BaseHandler) OnMessage(stream string, frame transport.Frame) Reaction { return Reaction{} }

// OnRateLimit admits every frame.
func (BaseHandler) OnRateLimit(stream string, frame transport.Frame) bool { return true }

// OnDisconnected defers to the governor.
func (BaseHandler) OnDisconnected(err error) Reaction { return Reaction{} }

// OnError takes no action.
func (BaseHandler) OnError(err error) {}

var _ Handler = BaseHandler{}
