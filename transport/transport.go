// Package transport defines the boundary between the connection runtime
// and the process that actually speaks the WebSocket protocol.
//
// The runtime never performs socket I/O itself: it opens a Handle through
// a Transport implementation and consumes the Handle's asynchronous event
// stream. The production implementation (WS) is built on gorilla/websocket;
// tests substitute in-memory fakes.
package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Endpoint is the immutable identity of a remote WebSocket endpoint.
type Endpoint struct {
	Host string
	Port int
	Path string
}

// StreamKind classifies the logical streams multiplexed over a handle.
type StreamKind int

const (
	// StreamWebSocket is the primary data stream of a connection.
	StreamWebSocket StreamKind = iota

	// StreamControl carries protocol control traffic.
	StreamControl
)

// String returns the string representation of the stream kind.
func (k StreamKind) String() string {
	switch k {
	case StreamWebSocket:
		return "websocket"
	case StreamControl:
		return "control"
	default:
		return "unknown"
	}
}

// FrameKind represents the WebSocket frame type of a payload.
type FrameKind int

const (
	// TextFrame denotes a text data frame (UTF-8 encoded).
	TextFrame FrameKind = 1

	// BinaryFrame denotes a binary data frame.
	BinaryFrame FrameKind = 2
)

// Frame is an opaque payload plus its frame type. The runtime never
// inspects Data; encoding and message semantics belong to the handler
// layer.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Text wraps a string payload in a text frame.
func Text(data string) Frame {
	return Frame{Kind: TextFrame, Data: []byte(data)}
}

// Binary wraps a byte payload in a binary frame.
func Binary(data []byte) Frame {
	return Frame{Kind: BinaryFrame, Data: data}
}

// Options holds transport-only connection configuration.
//
// Options must never carry application state: session, auth and
// subscription data live with the collaborator that owns the canonical
// connection record, not here.
type Options struct {
	// TLSConfig enables wss:// when non-nil; nil dials plain ws://.
	TLSConfig *tls.Config

	// Subprotocols lists the subprotocols offered during the handshake.
	Subprotocols []string

	// Headers are sent with the handshake request.
	Headers http.Header

	// HandshakeTimeout bounds the dial + upgrade. Zero uses the
	// adapter default.
	HandshakeTimeout time.Duration

	// ReadBufferSize and WriteBufferSize size the socket buffers in
	// bytes; zero uses the adapter default.
	ReadBufferSize  int
	WriteBufferSize int

	// ReadLimit caps inbound message size in bytes; zero means no limit.
	ReadLimit int64

	// EnableCompression enables RFC 7692 per-message compression.
	EnableCompression bool
}

// Secure reports whether the options select a TLS transport.
func (o Options) Secure() bool {
	return o.TLSConfig != nil
}

// EventKind identifies the asynchronous notifications a handle emits.
type EventKind int

const (
	// EventConnected signals the underlying transport is established.
	EventConnected EventKind = iota

	// EventUpgraded signals the WebSocket protocol upgrade completed.
	EventUpgraded

	// EventStreamOpened signals a logical stream open confirmation.
	EventStreamOpened

	// EventStreamClosed signals a logical stream teardown.
	EventStreamClosed

	// EventFrame carries an inbound data frame.
	EventFrame

	// EventDown signals the handle is dead. It is the last event a
	// handle emits.
	EventDown
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventUpgraded:
		return "upgraded"
	case EventStreamOpened:
		return "stream_opened"
	case EventStreamClosed:
		return "stream_closed"
	case EventFrame:
		return "frame"
	case EventDown:
		return "down"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification from a handle. Events carry no
// generation themselves: the owner tags them with the generation the
// handle was adopted under when pumping them into its inbox.
type Event struct {
	Kind EventKind

	// Stream identifies the logical stream for stream and frame events.
	Stream string

	// StreamKind classifies the stream for EventStreamOpened.
	StreamKind StreamKind

	// Payload is the frame data for EventFrame.
	Payload Frame

	// Err is the failure reason for EventDown.
	Err error
}

// Handle is an open transport connection. Exactly one owner consumes a
// handle's events at a time; handing a handle to a new owner goes through
// the ownership-transfer protocol, never through concurrent sharing.
type Handle interface {
	// Events returns the handle's notification stream. The channel is
	// closed after EventDown is delivered.
	Events() <-chan Event

	// Done is closed when the underlying connection is dead. It backs
	// the owner's liveness monitor.
	Done() <-chan struct{}

	// Err returns the terminal failure reason. It is only meaningful
	// once Done is closed; supervisors read it so the error they
	// attribute matches the one carried by the final EventDown.
	Err() error
}

// Transport opens and operates handles.
type Transport interface {
	// Open dials the endpoint and returns a live handle. Open blocks
	// for the duration of the handshake; callers dial from a goroutine
	// when they must not block.
	Open(ctx context.Context, ep Endpoint, opts Options) (Handle, error)

	// Send writes a frame on the given stream of the handle.
	Send(h Handle, stream string, frame Frame) error

	// Close tears the handle down. Closing an already-dead handle is a
	// no-op.
	Close(h Handle) error
}
