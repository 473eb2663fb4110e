package pool

import (
	"sync"
	"time"
)

// circuitState mirrors the standard open/half-open/closed breaker shape,
// generalized here from the teacher's per-connection reconnect/backoff
// idiom to a per-node decision shared by every endpoint a pool might open.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker stops a pool from hammering a node that has just refused
// N consecutive connection attempts, then lets exactly one probe through
// once the cooldown elapses (spec.md SPEC_FULL.md "Circuit behavior").
type circuitBreaker struct {
	mu              sync.Mutex
	state           circuitState
	consecutiveFail int
	openedAt        time.Time

	failThreshold int
	cooldown      time.Duration
	probeInFlight bool
}

func newCircuitBreaker(failThreshold int, cooldown time.Duration) *circuitBreaker {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	return &circuitBreaker{failThreshold: failThreshold, cooldown: cooldown}
}

// Allow reports whether a new connection attempt may proceed. A half-open
// circuit allows exactly one probe attempt at a time.
func (c *circuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(c.openedAt) < c.cooldown {
			return false
		}
		c.state = circuitHalfOpen
		c.probeInFlight = true
		return true
	case circuitHalfOpen:
		return false
	default:
		return true
	}
}

// IsOpen reports whether the circuit is currently refusing new attempts.
func (c *circuitBreaker) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == circuitOpen
}

// RecordSuccess closes the circuit and resets the failure count.
func (c *circuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = circuitClosed
	c.consecutiveFail = 0
	c.probeInFlight = false
}

// RecordFailure counts a connection failure, opening the circuit once the
// threshold is reached. A failed probe in the half-open state reopens the
// circuit immediately and restarts the cooldown.
func (c *circuitBreaker) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == circuitHalfOpen {
		c.state = circuitOpen
		c.openedAt = time.Now()
		c.probeInFlight = false
		return
	}
	c.consecutiveFail++
	if c.consecutiveFail >= c.failThreshold {
		c.state = circuitOpen
		c.openedAt = time.Now()
	}
}
