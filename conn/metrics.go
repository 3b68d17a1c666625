package conn

import (
	"sync/atomic"
	"time"
)

// Metrics tracks per-connection statistics.
type Metrics struct {
	ConnectedAt    time.Time
	FramesSent     int64
	FramesReceived int64
	Reconnects     int64
}

// IncrementSent atomically increments the sent-frame counter.
func (m *Metrics) IncrementSent() int64 {
	return atomic.AddInt64(&m.FramesSent, 1)
}

// IncrementReceived atomically increments the received-frame counter.
func (m *Metrics) IncrementReceived() int64 {
	return atomic.AddInt64(&m.FramesReceived, 1)
}

// IncrementReconnects atomically increments the reconnect counter.
func (m *Metrics) IncrementReconnects() int64 {
	return atomic.AddInt64(&m.Reconnects, 1)
}
