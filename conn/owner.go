// Package conn implements the connection lifecycle core: a
// single-goroutine owner actor per logical connection, its state
// machine, the reconnection governor and the ownership-transfer
// protocol.
//
// All state mutation happens inside the owner's message loop. Transport
// events, timer expiries and API calls all enter through one inbox, and
// every transport event is tagged with the generation its handle was
// wired under — events from a superseded generation are discarded
// before they can touch state or reach a handler.
package conn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/connkit/wsconn/transport"
)

// Errors surfaced by the owner API.
var (
	// ErrClosed is returned by API calls on a terminally closed owner.
	ErrClosed = errors.New("connection is closed")

	// ErrNotConnected is returned by Send before the protocol upgrade
	// is confirmed.
	ErrNotConnected = errors.New("connection is not established")

	// ErrRateLimited is returned by Send when the rate-limit handler
	// rejects the frame.
	ErrRateLimited = errors.New("outbound frame rejected by rate limiter")

	// ErrInvalidTransfer is returned by Adopt for malformed transfer
	// info. The adopting state is left untouched.
	ErrInvalidTransfer = errors.New("invalid ownership transfer")

	errTransportDown    = errors.New("transport down")
	errHandlerReconnect = errors.New("reconnect requested by handler")
	errHandlerStop      = errors.New("stop requested by handler")
)

// Owner is the long-lived actor that owns one logical connection. It
// holds the connection State, receives transport and supervision events
// on a single inbox, drives the reconnection governor and dispatches
// validated events to the configured Handler.
type Owner struct {
	id       string
	config   *Config
	tr       transport.Transport
	handler  Handler
	logger   *slog.Logger
	state    *State
	inbox    chan ownerMsg
	done     chan struct{}
	obs      *observerSet
	metrics  Metrics
	retry    retryState
	lastErr  error
	statusMu atomic.Int32

	// pending holds a freshly dialed handle until the transport
	// confirms it with an EventConnected.
	pending transport.Handle
}

// NewOwner creates the owner and starts its loop; the connection stays
// Initialized until Connect is called.
func NewOwner(config *Config) (*Owner, error) {
	if config == nil || config.Transport == nil {
		return nil, errors.New("conn: Config.Transport is required")
	}
	if config.Endpoint.Host == "" {
		return nil, errors.New("conn: Config.Endpoint.Host is required")
	}
	cfg := config.withDefaults()
	o := &Owner{
		id:      cfg.ID,
		config:  cfg,
		tr:      cfg.Transport,
		handler: cfg.Handler,
		logger:  cfg.Logger.With("conn_id", cfg.ID),
		state:   NewState(cfg.Endpoint, cfg.Options),
		inbox:   make(chan ownerMsg, cfg.InboxSize),
		done:    make(chan struct{}),
		obs:     newObserverSet(),
	}
	go o.run()
	return o, nil
}

// ============================================================================
// Public API. Every call posts into the inbox; the loop goroutine does
// the actual work.
// ============================================================================

// ID returns the connection identifier.
func (o *Owner) ID() string { return o.id }

// Done is closed when the owner has terminated. External supervisors
// (including the registry) monitor it.
func (o *Owner) Done() <-chan struct{} { return o.done }

// Status returns the current lifecycle status without blocking on the
// owner loop.
func (o *Owner) Status() Status { return Status(o.statusMu.Load()) }

// Metrics returns the connection's statistics record.
func (o *Owner) Metrics() *Metrics { return &o.metrics }

// Connect requests the initial dial. Requesting a connect in a state
// where it does not apply is a benign no-op.
func (o *Owner) Connect() error {
	return o.roundtrip(&cmdConnect{reply: make(chan error, 1)})
}

// Reconnect asks the governor to schedule a reconnection, or tears down
// a live transport and reconnects. Concurrent requests collapse into a
// single scheduled attempt.
func (o *Owner) Reconnect() error {
	return o.roundtrip(&cmdReconnect{reply: make(chan error, 1)})
}

// Send writes a frame on the connection. The empty stream id addresses
// the primary stream.
func (o *Owner) Send(stream string, frame transport.Frame) error {
	return o.roundtrip(&cmdSend{stream: stream, frame: frame, reply: make(chan error, 1)})
}

// Adopt takes ownership of a live transport handle (and its monitor and
// open streams) from a previous owner without re-dialing. See
// TransferInfo for the protocol rules.
func (o *Owner) Adopt(info TransferInfo) error {
	return o.roundtrip(&cmdAdopt{info: info, reply: make(chan error, 1)})
}

// Close tears the connection down terminally and waits for the owner
// loop to exit. Closing an already-closed owner is a no-op.
func (o *Owner) Close() {
	o.post(&cmdClose{})
	<-o.done
}

// Snapshot returns a copy of the connection state. The second return is
// false when the owner has already terminated.
func (o *Owner) Snapshot() (State, bool) {
	c := &cmdSnapshot{reply: make(chan State, 1)}
	if !o.post(c) {
		return State{Status: Closed, Endpoint: o.config.Endpoint}, false
	}
	select {
	case st := <-c.reply:
		return st, true
	case <-o.done:
		return State{Status: Closed, Endpoint: o.config.Endpoint}, false
	}
}

// Observe registers a lifecycle listener channel. Registering the same
// channel twice is a no-op.
func (o *Owner) Observe(ch chan LifecycleEvent) { o.obs.add(ch) }

// Unobserve removes a lifecycle listener channel. Removing an unknown
// channel is a no-op.
func (o *Owner) Unobserve(ch chan LifecycleEvent) { o.obs.remove(ch) }

// ============================================================================
// Inbox plumbing
// ============================================================================

type ownerMsg interface{ ownerMsg() }

type cmdConnect struct{ reply chan error }
type cmdReconnect struct{ reply chan error }
type cmdClose struct{}
type cmdSend struct {
	stream string
	frame  transport.Frame
	reply  chan error
}
type cmdAdopt struct {
	info  TransferInfo
	reply chan error
}
type cmdSnapshot struct{ reply chan State }

type evDialDone struct {
	gen    uint64
	handle transport.Handle
	err    error
}
type evTransport struct {
	gen uint64
	ev  transport.Event
}
type evMonitorDown struct {
	mon *monitor
	err error
}
type evRetryFired struct{ gen uint64 }

func (*cmdConnect) ownerMsg()   {}
func (*cmdReconnect) ownerMsg() {}
func (*cmdClose) ownerMsg()     {}
func (*cmdSend) ownerMsg()      {}
func (*cmdAdopt) ownerMsg()     {}
func (*cmdSnapshot) ownerMsg()  {}
func (*evDialDone) ownerMsg()   {}
func (*evTransport) ownerMsg()  {}
func (*evMonitorDown) ownerMsg() {}
func (*evRetryFired) ownerMsg() {}

// post delivers a message to the loop; it reports false once the owner
// has terminated.
func (o *Owner) post(m ownerMsg) bool {
	select {
	case o.inbox <- m:
		return true
	case <-o.done:
		return false
	}
}

func (o *Owner) roundtrip(m ownerMsg) error {
	var reply chan error
	switch c := m.(type) {
	case *cmdConnect:
		reply = c.reply
	case *cmdReconnect:
		reply = c.reply
	case *cmdSend:
		reply = c.reply
	case *cmdAdopt:
		reply = c.reply
	}
	if !o.post(m) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		// The loop may have replied just before exiting.
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// ============================================================================
// Loop
// ============================================================================

func (o *Owner) run() {
	for msg := range o.inbox {
		o.dispatch(msg)
		o.statusMu.Store(int32(o.state.Status))
		if o.state.Status == Closed {
			close(o.done)
			o.drainInbox()
			return
		}
	}
}

// drainInbox releases resources carried by messages that were queued
// behind the close. It runs after done is closed, so anything posted
// later is rejected at the post and cleaned up by its sender.
func (o *Owner) drainInbox() {
	for {
		select {
		case msg := <-o.inbox:
			if m, ok := msg.(*evDialDone); ok && m.handle != nil {
				o.tr.Close(m.handle)
			}
		default:
			return
		}
	}
}

func (o *Owner) dispatch(msg ownerMsg) {
	switch m := msg.(type) {
	case *cmdConnect:
		m.reply <- o.handleConnect()
	case *cmdReconnect:
		m.reply <- o.handleReconnectRequest()
	case *cmdClose:
		o.shutdown(nil, false)
	case *cmdSend:
		m.reply <- o.handleSend(m.stream, m.frame)
	case *cmdAdopt:
		m.reply <- o.handleAdopt(m.info)
	case *cmdSnapshot:
		m.reply <- o.state.snapshot()
	case *evDialDone:
		o.handleDialDone(m)
	case *evTransport:
		o.handleTransportEvent(m)
	case *evMonitorDown:
		if m.mon != o.state.mon {
			o.logger.Debug("ignoring monitor notification for superseded transport")
			return
		}
		o.transportFailure(m.err)
	case *evRetryFired:
		o.retryFired(m.gen)
	}
}

// ============================================================================
// Command handling
// ============================================================================

func (o *Owner) handleConnect() error {
	if !o.state.beginConnect() {
		o.logger.Debug("ignoring connect request", "status", o.state.Status.String())
		return nil
	}
	o.retry.cancel()
	o.dial()
	return nil
}

func (o *Owner) handleReconnectRequest() error {
	switch o.state.Status {
	case Connecting, Connected, WebSocketConnected:
		o.transportFailure(errHandlerReconnect)
	case Disconnected:
		o.scheduleReconnect(o.lastErr)
	default:
		o.logger.Debug("ignoring reconnect request", "status", o.state.Status.String())
	}
	return nil
}

func (o *Owner) handleSend(stream string, frame transport.Frame) error {
	if o.state.Status != WebSocketConnected || o.state.Handle == nil {
		return ErrNotConnected
	}
	if !o.handler.OnRateLimit(stream, frame) {
		return ErrRateLimited
	}
	if err := o.tr.Send(o.state.Handle, stream, frame); err != nil {
		return err
	}
	o.metrics.IncrementSent()
	return nil
}

// ============================================================================
// Dial and transport events
// ============================================================================

// dial starts the transport handshake off the loop goroutine; the
// result re-enters the inbox tagged with the generation allocated for
// this attempt.
func (o *Owner) dial() {
	gen := o.state.Generation
	ep, opts := o.state.Endpoint, o.state.Options
	go func() {
		h, err := o.tr.Open(context.Background(), ep, opts)
		if !o.post(&evDialDone{gen: gen, handle: h, err: err}) && h != nil {
			o.tr.Close(h)
		}
	}()
}

func (o *Owner) handleDialDone(m *evDialDone) {
	if m.gen != o.state.Generation || o.state.Status != Connecting {
		o.logger.Debug("discarding stale dial result", "gen", m.gen, "current", o.state.Generation)
		if m.handle != nil {
			o.tr.Close(m.handle)
		}
		return
	}
	if m.err != nil {
		o.transportFailure(m.err)
		return
	}
	o.pending = m.handle
	go o.pump(m.handle, m.gen)
}

// releasePending closes a handle whose dial succeeded but whose connect
// confirmation never got processed. Without this, a close or reconnect
// landing in that window would strand a live socket.
func (o *Owner) releasePending() {
	if o.pending == nil {
		return
	}
	o.tr.Close(o.pending)
	o.pending = nil
}

// pump forwards a handle's events into the inbox, tagged with the
// generation the handle was wired under. It exits when the handle dies
// or the owner terminates.
func (o *Owner) pump(h transport.Handle, gen uint64) {
	for ev := range h.Events() {
		if !o.post(&evTransport{gen: gen, ev: ev}) {
			return
		}
	}
}

func (o *Owner) handleTransportEvent(m *evTransport) {
	if m.gen < o.state.Generation {
		o.logger.Debug("discarding stale transport event",
			"kind", m.ev.Kind.String(), "gen", m.gen, "current", o.state.Generation)
		return
	}

	switch m.ev.Kind {
	case transport.EventConnected:
		if o.pending == nil || !o.state.markConnected(o.pending) {
			o.logger.Debug("ignoring connected event", "status", o.state.Status.String())
			return
		}
		o.pending = nil
		o.state.mon = o.watch(o.state.Handle)
		o.metrics.ConnectedAt = time.Now()
		o.notify(LifecycleConnected, nil)

	case transport.EventUpgraded:
		if !o.state.markUpgraded() {
			o.logger.Debug("ignoring upgrade event", "status", o.state.Status.String())
			return
		}
		o.logger.Info("websocket connected", "endpoint", o.state.Endpoint.String(), "gen", o.state.Generation)
		o.notify(LifecycleUpgraded, nil)
		o.react(o.handler.OnAuthRequired())
		o.react(o.handler.OnConnected())
		for _, f := range o.handler.OnSubscriptionReplay() {
			o.replyFrame(f)
		}

	case transport.EventStreamOpened:
		if !o.state.openStream(m.ev.Stream, m.ev.StreamKind) {
			o.logger.Debug("ignoring stream open", "stream", m.ev.Stream, "status", o.state.Status.String())
		}

	case transport.EventStreamClosed:
		o.state.closeStream(m.ev.Stream)

	case transport.EventFrame:
		if o.state.Status != WebSocketConnected {
			o.logger.Debug("dropping frame before upgrade", "stream", m.ev.Stream)
			return
		}
		o.metrics.IncrementReceived()
		o.react(o.handler.OnMessage(m.ev.Stream, m.ev.Payload))

	case transport.EventDown:
		o.transportFailure(m.ev.Err)
	}
}

// transportFailure routes a transport loss into the governor. Failures
// reported for a state with no live transport are benign no-ops.
func (o *Owner) transportFailure(reason error) {
	if reason == nil {
		reason = errTransportDown
	}
	old := o.state.Handle
	if !o.state.markDisconnected() {
		o.logger.Debug("ignoring transport failure", "status", o.state.Status.String())
		return
	}
	o.releasePending()
	o.lastErr = reason
	if old != nil {
		o.tr.Close(old)
	}
	o.logger.Info("transport lost", "reason", reason, "gen", o.state.Generation)
	o.notify(LifecycleDisconnected, reason)
	if rx := o.handler.OnDisconnected(reason); rx.Directive == Stop {
		o.shutdown(errHandlerStop, true)
		return
	}
	o.scheduleReconnect(reason)
}

// react applies a handler verdict.
func (o *Owner) react(rx Reaction) {
	switch rx.Directive {
	case Reply:
		o.replyFrame(rx.Frame)
	case Reconnect:
		switch o.state.Status {
		case Connecting, Connected, WebSocketConnected:
			o.transportFailure(errHandlerReconnect)
		case Disconnected:
			o.scheduleReconnect(errHandlerReconnect)
		}
	case Stop:
		o.shutdown(errHandlerStop, true)
	}
}

func (o *Owner) replyFrame(f transport.Frame) {
	if o.state.Handle == nil {
		return
	}
	if err := o.tr.Send(o.state.Handle, "", f); err != nil {
		o.logger.Debug("reply frame dropped", "error", err)
		return
	}
	o.metrics.IncrementSent()
}

// ============================================================================
// Monitor
// ============================================================================

// monitor is the liveness watch on a transport handle: a goroutine
// parked on the handle's Done channel that reports into the inbox. The
// notification carries the monitor identity rather than a generation so
// that a monitor surviving an ownership adoption stays valid.
type monitor struct {
	handle transport.Handle
	stop   chan struct{}
	once   sync.Once
}

func (o *Owner) watch(h transport.Handle) *monitor {
	m := &monitor{handle: h, stop: make(chan struct{})}
	go func() {
		select {
		case <-h.Done():
			err := h.Err()
			if err == nil {
				err = errTransportDown
			}
			o.post(&evMonitorDown{mon: m, err: err})
		case <-m.stop:
		}
	}()
	return m
}

// release detaches the monitor. Releasing twice is a no-op.
func (m *monitor) release() {
	m.once.Do(func() { close(m.stop) })
}

// ============================================================================
// Shutdown
// ============================================================================

// shutdown moves the connection to its terminal state, cancelling the
// retry timer and releasing the transport. Terminal failures surface to
// the error handler and observers; repeating a shutdown is a no-op.
func (o *Owner) shutdown(reason error, terminal bool) {
	o.retry.cancel()
	o.releasePending()
	if o.state.Handle != nil {
		o.tr.Close(o.state.Handle)
	}
	if !o.state.markClosed() {
		return
	}
	if terminal {
		if reason == nil {
			reason = o.lastErr
		}
		o.handler.OnError(reason)
		o.logger.Warn("connection closed", "reason", reason)
	} else {
		o.logger.Info("connection closed")
	}
	o.notify(LifecycleClosed, reason)
}

// notify publishes a lifecycle event to observers.
func (o *Owner) notify(kind LifecycleKind, err error) {
	o.obs.publish(LifecycleEvent{
		Kind:       kind,
		ConnID:     o.id,
		Generation: o.state.Generation,
		Err:        err,
	})
}
