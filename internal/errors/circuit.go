package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because its breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker's position in its open/half-open/closed cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast once a dependency (the orchestrator wraps its
// embedder call with one, see embedderBreaker) has failed maxFailures times
// in a row, then probes it again after resetTimeout instead of hammering it.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.RWMutex
	state       State
	failures    int
	lastFailure time.Time
}

type CircuitBreakerOption func(*CircuitBreaker)

func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// NewCircuitBreaker builds a breaker with defaults of 5 failures and a
// 30-second reset timeout, overridable via options.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// State reports the breaker's state, resolving an expired Open into
// HalfOpen without mutating it (that transition only commits once a probe
// call actually runs, in attempt).
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a call would currently be let through, without
// making one.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState() != StateOpen
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// attempt runs fn through the breaker's state machine. rejected is true when
// the breaker itself refused the call (the circuit was open, or a half-open
// probe just failed and reopened it) — callers use that to decide whether a
// fallback applies. A closed-state failure is not rejected: fn ran and its
// own error is returned as-is, since a caller in steady state wants the real
// failure rather than a generic circuit-open error.
func attempt[T any](cb *CircuitBreaker, fn func() (T, error)) (result T, err error, rejected bool) {
	cb.mu.Lock()
	state := cb.currentState()

	switch state {
	case StateOpen:
		cb.mu.Unlock()
		return result, ErrCircuitOpen, true

	case StateHalfOpen:
		cb.state = StateHalfOpen
		cb.mu.Unlock()

		result, err = fn()
		if err != nil {
			cb.mu.Lock()
			cb.state = StateOpen
			cb.lastFailure = time.Now()
			cb.mu.Unlock()
			return result, err, true
		}
		cb.RecordSuccess()
		return result, nil, false

	default: // StateClosed
		cb.mu.Unlock()
		result, err = fn()
		if err != nil {
			cb.RecordFailure()
			return result, err, false
		}
		cb.RecordSuccess()
		return result, nil, false
	}
}

// Execute runs fn through the breaker, returning ErrCircuitOpen without
// calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err, _ := attempt(cb, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// ExecuteWithResult runs fn through the breaker and falls back when the
// breaker itself rejects the call, rather than on every error from fn.
func (cb *CircuitBreaker) ExecuteWithResult(fn func() (string, error), fallback func() (string, error)) (string, error) {
	result, err, rejected := attempt(cb, fn)
	if rejected {
		return fallback()
	}
	return result, err
}

// Try is the generic form of ExecuteWithResult for callers whose result type
// isn't a string.
func Try[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	result, err, rejected := attempt(cb, fn)
	if rejected {
		return fallback()
	}
	return result, err
}
