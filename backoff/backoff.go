// Package backoff provides the retry-delay strategies used by the
// connection runtime when deciding whether (and when) to attempt a
// reconnection.
//
// Strategies are immutable parameter records: all behavior is computed
// from the strategy and the attempt number, with no internal state. The
// random source used for jitter is injectable so tests can be fully
// deterministic.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes retry delays and retry-budget decisions.
//
// Attempt numbers start at 1 for the first reconnection attempt.
type Strategy interface {
	// Delay returns how long to wait before the given attempt.
	Delay(attempt int) time.Duration

	// ShouldRetry reports whether the given attempt is within the
	// retry budget. A strategy with an unlimited budget always
	// returns true.
	ShouldRetry(attempt int) bool
}

// Unlimited is the MaxRetries value meaning no retry cap.
const Unlimited = 0

// shouldRetry implements the shared budget check: attempt numbers are
// 1-based and a zero cap means unlimited.
func shouldRetry(attempt, maxRetries int) bool {
	if maxRetries == Unlimited {
		return true
	}
	return attempt <= maxRetries
}

// ============================================================================
// Constant
// ============================================================================

// Constant waits the same interval before every attempt.
type Constant struct {
	// Interval is the fixed delay between attempts.
	Interval time.Duration

	// MaxRetries caps the number of attempts. Unlimited (0) removes
	// the cap.
	MaxRetries int
}

// NewConstant creates a Constant strategy. A non-positive interval is
// normalized to one second.
func NewConstant(interval time.Duration, maxRetries int) *Constant {
	if interval <= 0 {
		interval = time.Second
	}
	return &Constant{Interval: interval, MaxRetries: maxRetries}
}

// Delay returns the fixed interval regardless of attempt number.
func (c *Constant) Delay(attempt int) time.Duration {
	return c.Interval
}

// ShouldRetry reports whether attempt is within the retry budget.
func (c *Constant) ShouldRetry(attempt int) bool {
	return shouldRetry(attempt, c.MaxRetries)
}

// ============================================================================
// Exponential
// ============================================================================

// Exponential doubles the delay on every attempt, capped at Max, with an
// additive uniform jitter of up to JitterFactor times the computed delay.
type Exponential struct {
	// Initial is the delay before the first attempt.
	Initial time.Duration

	// Max caps the pre-jitter delay.
	Max time.Duration

	// JitterFactor scales the additive jitter: the final delay is the
	// computed delay plus a uniform random value in
	// [0, JitterFactor*delay). Zero disables jitter.
	JitterFactor float64

	// MaxRetries caps the number of attempts. Unlimited (0) removes
	// the cap.
	MaxRetries int

	// Rand is the jitter source. Nil falls back to the package-level
	// math/rand source.
	Rand *rand.Rand
}

// NewExponential creates an Exponential strategy. Non-positive initial
// delays are normalized to one second and a max below the initial delay
// is raised to it.
func NewExponential(initial, max time.Duration, jitterFactor float64, maxRetries int) *Exponential {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Exponential{
		Initial:      initial,
		Max:          max,
		JitterFactor: jitterFactor,
		MaxRetries:   maxRetries,
	}
}

// Delay returns Initial for attempt 1, then doubles per attempt up to
// Max, plus jitter.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.Max {
			d = e.Max
			break
		}
	}
	if e.JitterFactor > 0 {
		d += time.Duration(e.float64() * e.JitterFactor * float64(d))
	}
	return d
}

// ShouldRetry reports whether attempt is within the retry budget.
func (e *Exponential) ShouldRetry(attempt int) bool {
	return shouldRetry(attempt, e.MaxRetries)
}

func (e *Exponential) float64() float64 {
	if e.Rand != nil {
		return e.Rand.Float64()
	}
	return rand.Float64()
}

// ============================================================================
// Linear
// ============================================================================

// Linear grows the delay proportionally to the attempt number, with a
// symmetric uniform jitter of JitterFactor times the computed delay. The
// jittered delay is floor-clamped to half the computed delay so it can
// never collapse to zero.
type Linear struct {
	// Base is the delay unit: attempt n waits Base*n before jitter.
	Base time.Duration

	// JitterFactor scales the symmetric jitter: the final delay is the
	// computed delay plus a uniform random value in
	// (-JitterFactor*delay, +JitterFactor*delay).
	JitterFactor float64

	// MaxRetries caps the number of attempts. Unlimited (0) removes
	// the cap.
	MaxRetries int

	// Rand is the jitter source. Nil falls back to the package-level
	// math/rand source.
	Rand *rand.Rand
}

// NewLinear creates a Linear strategy. A non-positive base delay is
// normalized to one second.
func NewLinear(base time.Duration, jitterFactor float64, maxRetries int) *Linear {
	if base <= 0 {
		base = time.Second
	}
	return &Linear{Base: base, JitterFactor: jitterFactor, MaxRetries: maxRetries}
}

// Delay returns Base*attempt with jitter, never less than half the
// pre-jitter value.
func (l *Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := l.Base * time.Duration(attempt)
	out := d
	if l.JitterFactor > 0 {
		out += time.Duration((l.float64()*2 - 1) * l.JitterFactor * float64(d))
	}
	if out < d/2 {
		out = d / 2
	}
	return out
}

// ShouldRetry reports whether attempt is within the retry budget.
func (l *Linear) ShouldRetry(attempt int) bool {
	return shouldRetry(attempt, l.MaxRetries)
}

func (l *Linear) float64() float64 {
	if l.Rand != nil {
		return l.Rand.Float64()
	}
	return rand.Float64()
}

// ============================================================================
// Compile-time interface compliance checks
// ============================================================================

var (
	_ Strategy = (*Constant)(nil)
	_ Strategy = (*Exponential)(nil)
	_ Strategy = (*Linear)(nil)
)
