package conn

import (
	"time"
)

// retryState tracks the single armed reconnection timer. At most one
// timer is armed per generation; arming while an equivalent timer is
// already armed is ignored, which is what makes concurrent reconnect
// triggers collapse into one attempt.
type retryState struct {
	timer *time.Timer
	gen   uint64
	armed bool
}

// cancel disarms the timer. Cancelling an unarmed or already-fired
// timer is a no-op; a fire that raced the cancel is rejected later by
// its generation check.
func (r *retryState) cancel() {
	if !r.armed {
		return
	}
	r.timer.Stop()
	r.armed = false
}

// scheduleReconnect is the reconnection governor: it consults the
// backoff strategy for the next attempt and either arms the (single)
// delay timer or declares the failure terminal.
func (o *Owner) scheduleReconnect(reason error) {
	if o.state.Status != Disconnected {
		o.logger.Debug("ignoring reconnect trigger", "status", o.state.Status.String())
		return
	}
	if o.retry.armed && o.retry.gen == o.state.Generation {
		o.logger.Debug("reconnect already scheduled", "gen", o.state.Generation)
		return
	}

	attempt := o.state.ReconnectAttempts + 1
	if !o.config.Strategy.ShouldRetry(attempt) {
		o.logger.Warn("retry budget exhausted", "attempts", o.state.ReconnectAttempts, "reason", reason)
		o.shutdown(reason, true)
		return
	}

	o.state.markReconnecting()
	delay := o.config.Strategy.Delay(attempt)
	gen := o.state.Generation
	o.retry = retryState{
		timer: time.AfterFunc(delay, func() { o.post(&evRetryFired{gen: gen}) }),
		gen:   gen,
		armed: true,
	}
	o.metrics.IncrementReconnects()
	o.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	o.obs.publish(LifecycleEvent{
		Kind:       LifecycleReconnectScheduled,
		ConnID:     o.id,
		Generation: gen,
		Attempt:    attempt,
		Delay:      delay,
		Err:        reason,
	})
}

// retryFired handles the expiry of the backoff timer. Expiries from a
// superseded generation (cancelled too late, or raced by an adoption or
// close) are discarded.
func (o *Owner) retryFired(gen uint64) {
	if o.retry.armed && o.retry.gen == gen {
		o.retry.armed = false
	}
	if gen != o.state.Generation || o.state.Status != Reconnecting {
		o.logger.Debug("discarding stale retry timer", "gen", gen, "current", o.state.Generation)
		return
	}
	if o.state.beginConnect() {
		o.dial()
	}
}
