package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/connkit/wsconn/transport"
)

// fakeHandle is a transport handle the tests drive by hand.
type fakeHandle struct {
	events    chan transport.Event
	done      chan struct{}
	closeOnce sync.Once

	// err is the terminal reason; written once before done is closed.
	err error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		events: make(chan transport.Event, 32),
		done:   make(chan struct{}),
	}
}

func (h *fakeHandle) Events() <-chan transport.Event { return h.events }
func (h *fakeHandle) Done() <-chan struct{}          { return h.done }

func (h *fakeHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *fakeHandle) emit(ev transport.Event) { h.events <- ev }

// establish emits the usual connect/upgrade/stream-open sequence.
func (h *fakeHandle) establish(stream string) {
	h.emit(transport.Event{Kind: transport.EventConnected})
	h.emit(transport.Event{Kind: transport.EventUpgraded})
	h.emit(transport.Event{Kind: transport.EventStreamOpened, Stream: stream, StreamKind: transport.StreamWebSocket})
}

// fail simulates transport death: a Down event plus the monitor firing.
func (h *fakeHandle) fail(err error) {
	h.emit(transport.Event{Kind: transport.EventDown, Err: err})
	h.closeOnce.Do(func() {
		h.err = err
		close(h.done)
	})
}

// dieSilently kills the handle without a Down event, leaving only the
// liveness monitor to notice.
func (h *fakeHandle) dieSilently(err error) {
	h.closeOnce.Do(func() {
		h.err = err
		close(h.done)
	})
}

type fakeSent struct {
	handle transport.Handle
	stream string
	frame  transport.Frame
}

// fakeTransport records every open, send and close, and hands each
// freshly opened handle to the test through the opened channel.
type fakeTransport struct {
	mu      sync.Mutex
	opens   int
	sent    []fakeSent
	closed  []transport.Handle
	failAll bool
	dialErr error

	opened chan *fakeHandle
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		opened:  make(chan *fakeHandle, 16),
		dialErr: errors.New("dial refused"),
	}
}

func (t *fakeTransport) Open(ctx context.Context, ep transport.Endpoint, opts transport.Options) (transport.Handle, error) {
	t.mu.Lock()
	t.opens++
	fail := t.failAll
	t.mu.Unlock()
	if fail {
		return nil, t.dialErr
	}
	h := newFakeHandle()
	t.opened <- h
	return h, nil
}

func (t *fakeTransport) Send(h transport.Handle, stream string, frame transport.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, fakeSent{handle: h, stream: stream, frame: frame})
	return nil
}

func (t *fakeTransport) Close(h transport.Handle) error {
	t.mu.Lock()
	t.closed = append(t.closed, h)
	t.mu.Unlock()
	if fh, ok := h.(*fakeHandle); ok {
		fh.closeOnce.Do(func() { close(fh.done) })
	}
	return nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) sentFrames() []fakeSent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]fakeSent, len(t.sent))
	copy(out, t.sent)
	return out
}

// waitHandle blocks until the transport opens its next handle.
func (t *fakeTransport) waitHandle(timeout time.Duration) (*fakeHandle, bool) {
	select {
	case h := <-t.opened:
		return h, true
	case <-time.After(timeout):
		return nil, false
	}
}

var _ transport.Transport = (*fakeTransport)(nil)
