package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
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

// StateChangeListener receives circuit breaker state change notifications.
type StateChangeListener interface {
	OnStateChange(from, to State, reason string)
}

// CircuitBreaker implements a three-state breaker guarding one protected
// operation class. All state updates are serialized under a single mutex so
// concurrent callers observe a consistent failure count and state.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	probeInFlight   bool
	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	name             string
	now              func() time.Time

	listeners []StateChangeListener
}

// BreakerOption configures the circuit breaker.
type BreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(threshold int) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = threshold
	}
}

// WithSuccessThreshold sets how many consecutive successes close a
// half-open breaker.
func WithSuccessThreshold(threshold int) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithRecoveryTimeout sets how long an open breaker rejects calls before
// allowing a probe.
func WithRecoveryTimeout(timeout time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.recoveryTimeout = timeout
	}
}

// WithBreakerName sets the breaker name for identification.
func WithBreakerName(name string) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(options ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		recoveryTimeout:  30 * time.Second,
		name:             "default",
		now:              time.Now,
	}
	for _, opt := range options {
		opt(cb)
	}
	return cb
}

// Allow is the gate checked before every attempt. It returns nil when an
// attempt may proceed and a *CircuitOpenError when the breaker rejects the
// call. While open and past the recovery timeout it transitions to
// half-open and admits exactly one probing attempt; concurrent callers are
// rejected until the probe settles.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		nextRetry := cb.lastFailureTime.Add(cb.recoveryTimeout)
		if cb.now().Before(nextRetry) {
			return cb.openError(nextRetry)
		}
		old := cb.state
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.probeInFlight = true
		cb.notifyStateChange(old, cb.state, "recovery timeout elapsed")
		return nil

	case StateHalfOpen:
		if cb.probeInFlight {
			return cb.openError(cb.now().Add(cb.recoveryTimeout))
		}
		cb.probeInFlight = true
		return nil

	default:
		return ErrUnknownState
	}
}

// rejectIfOpen returns the open-circuit rejection when the breaker is open
// and still inside its recovery window. Unlike Allow it never transitions
// state and never admits a probe.
func (cb *CircuitBreaker) rejectIfOpen() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	nextRetry := cb.lastFailureTime.Add(cb.recoveryTimeout)
	if cb.now().Before(nextRetry) {
		return cb.openError(nextRetry)
	}
	return nil
}

// RecordSuccess records a successful attempt. Every success resets the
// failure count; in half-open state, reaching the success threshold closes
// the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++
	cb.failures = 0
	cb.probeInFlight = false

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			old := cb.state
			cb.state = StateClosed
			cb.successes = 0
			cb.notifyStateChange(old, cb.state,
				fmt.Sprintf("success threshold reached (%d)", cb.successThreshold))
		}
	}
}

// RecordFailure records a failed attempt. In closed state, reaching the
// failure threshold opens the breaker; in half-open state a single failure
// reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.failures++
	cb.lastFailureTime = cb.now()
	cb.probeInFlight = false

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			old := cb.state
			cb.state = StateOpen
			cb.notifyStateChange(old, cb.state,
				fmt.Sprintf("failure threshold reached (%d/%d)", cb.failures, cb.failureThreshold))
		}
	case StateHalfOpen:
		old := cb.state
		cb.state = StateOpen
		cb.successes = 0
		cb.notifyStateChange(old, cb.state, "probe failed")
	}
}

// Execute runs fn under breaker protection: gate, call, record.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// The admitted probe slot must not leak when the caller already
		// gave up; this is not an operation failure.
		cb.releaseProbe()
		return err
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	old := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probeInFlight = false
	if old != StateClosed {
		cb.notifyStateChange(old, StateClosed, "manual reset")
	}
}

// AddListener adds a state change listener.
func (cb *CircuitBreaker) AddListener(listener StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// notifyStateChange notifies listeners without holding the lock during
// callbacks.
func (cb *CircuitBreaker) notifyStateChange(from, to State, reason string) {
	listeners := make([]StateChangeListener, len(cb.listeners))
	copy(listeners, cb.listeners)
	for _, listener := range listeners {
		go listener.OnStateChange(from, to, reason)
	}
}

func (cb *CircuitBreaker) openError(nextRetry time.Time) *CircuitOpenError {
	return &CircuitOpenError{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		FailureThreshold: cb.failureThreshold,
		LastFailure:      cb.lastFailureTime,
		NextRetry:        nextRetry,
	}
}

// Metrics returns a point-in-time snapshot of breaker counters.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerMetrics{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFailureTime,
		Timestamp:       time.Now(),
	}
}

// BreakerMetrics is a snapshot of circuit breaker counters.
type BreakerMetrics struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	TotalRequests   int64     `json:"totalRequests"`
	TotalFailures   int64     `json:"totalFailures"`
	TotalSuccesses  int64     `json:"totalSuccesses"`
	CurrentFailures int       `json:"currentFailures"`
	LastFailureTime time.Time `json:"lastFailureTime"`
	Timestamp       time.Time `json:"timestamp"`
}
