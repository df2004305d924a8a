package retry

import (
	"context"
	"math/rand"
	"time"
)

const (
	DefaultInitial    = 1 * time.Second
	DefaultMax        = 60 * time.Second
	DefaultMultiplier = 2.0
	jitterFraction    = 0.25
)

// Backoff implements truncated exponential backoff with ±25% jitter.
// A Backoff is not safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// New returns a Backoff starting at initial and capped at max.
// Non-positive values select the defaults.
func New(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if max <= 0 {
		max = DefaultMax
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the current wait and advances the internal state.
func (b *Backoff) Next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * jitterFraction * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * DefaultMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the backoff to its initial wait.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
