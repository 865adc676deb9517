package daemon

import (
	"sync"
	"time"
)

// Breaker defaults: three failed syncs in a row pause syncing for 30s.
const (
	DefaultCircuitBreakerThreshold = 3
	DefaultCircuitBreakerCooldown  = 30 * time.Second
)

// CircuitState is where the breaker stands.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // syncs run on every tick
	CircuitOpen                         // syncs are skipped until the cooldown ends
	CircuitHalfOpen                     // one probe sync may run
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker stops the daemon from hammering a remote that keeps failing.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	now      func() time.Time
	failures int
	open     bool
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to the defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCircuitBreakerCooldown
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// state derives the current state; an open breaker turns half-open once its
// cooldown has run out. Callers hold mu.
func (cb *CircuitBreaker) state() CircuitState {
	switch {
	case !cb.open:
		return CircuitClosed
	case cb.now().Sub(cb.openedAt) >= cb.cooldown:
		return CircuitHalfOpen
	}
	return CircuitOpen
}

// Allow reports whether the next sync should run.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state() != CircuitOpen
}

// RecordSuccess closes the breaker and forgets past failures.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
}

// RecordFailure counts a failed sync and reports whether it is the one that
// opened the breaker. A failed probe reopens it for another cooldown without
// reporting again.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch cb.state() {
	case CircuitOpen:
		return false
	case CircuitHalfOpen:
		cb.openedAt = cb.now()
		return false
	}
	if cb.failures < cb.threshold {
		return false
	}
	cb.open = true
	cb.openedAt = cb.now()
	return true
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state()
}

// RetryIn is how long an open breaker keeps skipping syncs; zero otherwise.
func (cb *CircuitBreaker) RetryIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state() != CircuitOpen {
		return 0
	}
	return cb.cooldown - cb.now().Sub(cb.openedAt)
}

// FailureCount returns the consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Cooldown returns how long the breaker stays open.
func (cb *CircuitBreaker) Cooldown() time.Duration {
	return cb.cooldown
}
