package backoff

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialLadder(t *testing.T) {
	s := NewExponential(100*time.Millisecond, 500*time.Millisecond, 0, Unlimited)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for i, expected := range want {
		assert.Equal(t, expected, s.Delay(i+1), "attempt %d", i+1)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	s := NewExponential(100*time.Millisecond, time.Second, 0.5, Unlimited)
	s.Rand = rand.New(rand.NewSource(42))

	for attempt := 1; attempt <= 4; attempt++ {
		base := NewExponential(100*time.Millisecond, time.Second, 0, Unlimited).Delay(attempt)
		for i := 0; i < 50; i++ {
			d := s.Delay(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+base/2)
		}
	}
}

func TestConstantDelay(t *testing.T) {
	s := NewConstant(time.Second, Unlimited)
	for attempt := 1; attempt <= 10; attempt++ {
		assert.Equal(t, time.Second, s.Delay(attempt))
	}
}

func TestLinearDelayBounds(t *testing.T) {
	s := NewLinear(100*time.Millisecond, 0.5, Unlimited)
	s.Rand = rand.New(rand.NewSource(7))

	// Attempt 3: base delay 300ms, jitter within ±150ms, floor 150ms.
	for i := 0; i < 100; i++ {
		d := s.Delay(3)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 450*time.Millisecond)
	}
}

func TestLinearNoJitter(t *testing.T) {
	s := NewLinear(100*time.Millisecond, 0, Unlimited)
	assert.Equal(t, 100*time.Millisecond, s.Delay(1))
	assert.Equal(t, 300*time.Millisecond, s.Delay(3))
}

func TestShouldRetryBudget(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		attempt  int
		want     bool
	}{
		{"constant within budget", NewConstant(time.Second, 3), 3, true},
		{"constant over budget", NewConstant(time.Second, 3), 4, false},
		{"constant unlimited", NewConstant(time.Second, Unlimited), 10000, true},
		{"exponential within budget", NewExponential(time.Second, time.Minute, 0, 5), 5, true},
		{"exponential over budget", NewExponential(time.Second, time.Minute, 0, 5), 6, false},
		{"linear unlimited", NewLinear(time.Second, 0, Unlimited), 999, true},
		{"linear over budget", NewLinear(time.Second, 0, 1), 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.strategy.ShouldRetry(tt.attempt))
		})
	}
}

func TestConstructorNormalization(t *testing.T) {
	c := NewConstant(0, Unlimited)
	assert.Equal(t, time.Second, c.Interval)

	e := NewExponential(2*time.Second, time.Second, 0, Unlimited)
	assert.Equal(t, 2*time.Second, e.Max, "max below initial is raised to it")

	l := NewLinear(-1, 0, Unlimited)
	assert.Equal(t, time.Second, l.Base)
}

func TestDelayClampsAttemptFloor(t *testing.T) {
	e := NewExponential(100*time.Millisecond, time.Second, 0, Unlimited)
	assert.Equal(t, e.Delay(1), e.Delay(0))
	assert.Equal(t, e.Delay(1), e.Delay(-5))
}
