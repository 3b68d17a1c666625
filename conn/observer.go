package conn

import (
	"sync"
	"time"

	conc "github.com/panyam/gocurrent"
)

// LifecycleKind identifies the notifications broadcast to observers.
type LifecycleKind int

const (
	// LifecycleConnected signals the transport is established.
	LifecycleConnected LifecycleKind = iota

	// LifecycleUpgraded signals the protocol upgrade is confirmed.
	LifecycleUpgraded

	// LifecycleDisconnected signals the transport was lost.
	LifecycleDisconnected

	// LifecycleReconnectScheduled signals an armed retry timer.
	LifecycleReconnectScheduled

	// LifecycleClosed signals terminal shutdown, explicit or from an
	// exhausted retry budget.
	LifecycleClosed
)

// String returns the string representation of the lifecycle kind.
func (k LifecycleKind) String() string {
	switch k {
	case LifecycleConnected:
		return "connected"
	case LifecycleUpgraded:
		return "websocket_connected"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleReconnectScheduled:
		return "reconnect_scheduled"
	case LifecycleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LifecycleEvent is a sanitized notification delivered to registered
// observers.
type LifecycleEvent struct {
	Kind       LifecycleKind
	ConnID     string
	Generation uint64

	// Attempt and Delay describe the scheduled retry for
	// LifecycleReconnectScheduled.
	Attempt int
	Delay   time.Duration

	// Err carries the failure reason for disconnects and terminal
	// closes.
	Err error
}

// observerSet broadcasts lifecycle events to any number of subscribed
// channels through a FanOut, tracking membership so that subscribing
// and unsubscribing are idempotent.
type observerSet struct {
	mu     sync.Mutex
	fanout *conc.FanOut[LifecycleEvent]
	subs   map[chan LifecycleEvent]struct{}
}

func newObserverSet() *observerSet {
	return &observerSet{
		fanout: conc.NewFanOut[LifecycleEvent](),
		subs:   map[chan LifecycleEvent]struct{}{},
	}
}

// add registers the channel. Adding an already-registered channel is a
// no-op.
func (o *observerSet) add(ch chan LifecycleEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.subs[ch]; ok {
		return
	}
	o.subs[ch] = struct{}{}
	o.fanout.Add(ch, nil, false)
}

// remove deregisters the channel synchronously so no further publish
// can land on it. Removing an unknown channel is a no-op.
func (o *observerSet) remove(ch chan LifecycleEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.subs[ch]; !ok {
		return
	}
	delete(o.subs, ch)
	<-o.fanout.Remove(ch, true)
}

// publish broadcasts the event to all current observers.
func (o *observerSet) publish(ev LifecycleEvent) {
	o.fanout.Send(ev)
}
