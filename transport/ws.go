package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	conc "github.com/panyam/gocurrent"
)

// Defaults for the gorilla-backed transport.
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultPingPeriod       = 30 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// ErrForeignHandle is returned when a handle created by a different
// Transport implementation is passed to WS.
var ErrForeignHandle = errors.New("handle was not opened by this transport")

// WSConfig controls the behavior shared by all handles a WS transport
// opens.
type WSConfig struct {
	// PingPeriod is the interval between keep-alive pings.
	PingPeriod time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns a WSConfig with sensible defaults:
//   - PingPeriod: 30 seconds
//   - WriteTimeout: 10 seconds
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		PingPeriod:   DefaultPingPeriod,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// WS is the production Transport built on gorilla/websocket. A single WS
// value can open any number of handles; each handle runs its own read
// pump, serialized writer and ping loop.
type WS struct {
	config *WSConfig
	logger *slog.Logger
}

// NewWS creates a WS transport. A nil config uses DefaultWSConfig; a nil
// logger uses slog.Default.
func NewWS(config *WSConfig, logger *slog.Logger) *WS {
	if config == nil {
		config = DefaultWSConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{config: config, logger: logger}
}

// Open dials the endpoint and returns a live handle. The handle's event
// channel immediately carries Connected, Upgraded and the open
// confirmation of the primary websocket stream; gorilla's dial performs
// the TCP connect and the protocol upgrade in one step.
func (t *WS) Open(ctx context.Context, ep Endpoint, opts Options) (Handle, error) {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{
		TLSClientConfig:   opts.TLSConfig,
		HandshakeTimeout:  timeout,
		ReadBufferSize:    opts.ReadBufferSize,
		WriteBufferSize:   opts.WriteBufferSize,
		Subprotocols:      opts.Subprotocols,
		EnableCompression: opts.EnableCompression,
	}

	conn, resp, err := dialer.DialContext(ctx, ep.URL(opts.Secure()), opts.Headers)
	if err != nil {
		if resp != nil {
			t.logger.Debug("websocket dial rejected", "endpoint", ep.String(), "status", resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", ep.String(), err)
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}

	h := &wsHandle{
		conn:     conn,
		config:   t.config,
		logger:   t.logger.With("endpoint", ep.String()),
		streamID: uuid.NewString(),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	h.start()
	return h, nil
}

// Send writes a frame on the handle. The stream argument is accepted for
// interface symmetry; a gorilla handle carries a single data stream.
func (t *WS) Send(h Handle, stream string, frame Frame) error {
	wh, ok := h.(*wsHandle)
	if !ok {
		return ErrForeignHandle
	}
	return wh.send(frame)
}

// Close tears the handle down, sending a normal-closure close frame
// first. Closing a dead or foreign handle is a no-op.
func (t *WS) Close(h Handle) error {
	wh, ok := h.(*wsHandle)
	if !ok {
		return nil
	}
	wh.closeGracefully()
	return nil
}

// ============================================================================
// wsHandle
// ============================================================================

type wsHandle struct {
	conn     *websocket.Conn
	config   *WSConfig
	logger   *slog.Logger
	streamID string

	events chan Event
	done   chan struct{}
	stop   chan struct{}

	// err is the teardown reason; written once before done is closed.
	err error

	reader *conc.Reader[Frame]
	writer *conc.Writer[outbound]

	stopOnce sync.Once
}

type outbound struct {
	msgType int
	data    []byte
}

// Events implements Handle.
func (h *wsHandle) Events() <-chan Event {
	return h.events
}

// Done implements Handle.
func (h *wsHandle) Done() <-chan struct{} {
	return h.done
}

// Err implements Handle. The value is stable once Done is closed.
func (h *wsHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *wsHandle) start() {
	h.writer = conc.NewWriter(func(msg outbound) error {
		h.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		return h.conn.WriteMessage(msg.msgType, msg.data)
	})
	h.reader = conc.NewReader(func() (Frame, error) {
		msgType, data, err := h.conn.ReadMessage()
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
			return Frame{}, net.ErrClosed
		}
		return Frame{Kind: FrameKind(msgType), Data: data}, err
	})

	h.emit(Event{Kind: EventConnected})
	h.emit(Event{Kind: EventUpgraded})
	h.emit(Event{Kind: EventStreamOpened, Stream: h.streamID, StreamKind: StreamWebSocket})

	go h.run()
}

// run is the handle's single event loop: it multiplexes the read pump
// and the ping ticker until the connection dies.
func (h *wsHandle) run() {
	pingTimer := time.NewTicker(h.config.PingPeriod)
	defer pingTimer.Stop()

	for {
		select {
		case <-h.stop:
			h.teardown(net.ErrClosed)
			return
		case <-pingTimer.C:
			h.writer.Send(outbound{msgType: websocket.PingMessage})
		case result := <-h.reader.OutputChan():
			if result.Error != nil {
				h.teardown(result.Error)
				return
			}
			h.emit(Event{
				Kind:    EventFrame,
				Stream:  h.streamID,
				Payload: result.Value,
			})
		}
	}
}

func (h *wsHandle) send(f Frame) error {
	select {
	case <-h.done:
		return net.ErrClosed
	default:
	}
	h.writer.Send(outbound{msgType: int(f.Kind), data: f.Data})
	return nil
}

// closeGracefully requests shutdown from outside the run loop. The run
// goroutine performs the actual teardown so event delivery and channel
// closure stay single-threaded.
func (h *wsHandle) closeGracefully() {
	select {
	case <-h.done:
		return
	default:
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	h.writer.Send(outbound{msgType: websocket.CloseMessage, data: closeMsg})
	h.stopOnce.Do(func() { close(h.stop) })
}

// teardown is the single shutdown path, only ever entered from the run
// goroutine: it stops the pumps, closes the socket and delivers the
// final StreamClosed/Down events before closing the event channel.
func (h *wsHandle) teardown(reason error) {
	h.reader.Stop()
	h.writer.Stop()
	if err := h.conn.Close(); err != nil {
		h.logger.Debug("socket close", "error", err)
	}
	h.emit(Event{Kind: EventStreamClosed, Stream: h.streamID})
	h.emit(Event{Kind: EventDown, Err: reason})
	h.err = reason
	close(h.done)
	close(h.events)
}

// emit delivers an event, dropping it only once the handle is torn down.
func (h *wsHandle) emit(ev Event) {
	select {
	case <-h.done:
	case h.events <- ev:
	}
}

var _ Transport = (*WS)(nil)
var _ Handle = (*wsHandle)(nil)
