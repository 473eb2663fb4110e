package dispatcher

import (
	"math/rand"
	"time"
)

// BackoffPolicy is the exponential-with-jitter schedule the dispatcher
// uses both for pool-saturation retries and retriable-status retries
// (spec.md §4.4 "min 32 ms, cap 4 s, jitter ±10%").
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff matches the endpoint reconnect schedule of spec.md §4.4,
// reused here for request-level retries.
var DefaultBackoff = BackoffPolicy{Base: 32 * time.Millisecond, Max: 4 * time.Second, Jitter: 0.1}

// Delay returns the backoff duration for the given retry attempt (0-based).
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoff.Max
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		d = max
	}
	jitter := b.Jitter
	if jitter <= 0 {
		jitter = DefaultBackoff.Jitter
	}
	spread := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(d) + offset)
	if result < 0 {
		result = 0
	}
	return result
}
