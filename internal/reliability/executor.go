package reliability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Operation is one unit of work protected by the resilience layer.
type Operation func(ctx context.Context) error

// AttemptError records one failed attempt.
type AttemptError struct {
	Err       error
	Timestamp time.Time
}

// AttemptRecord tracks the attempts of one resilient operation. It is
// mutable while the operation runs and becomes immutable once finalized.
type AttemptRecord struct {
	mu         sync.Mutex
	attempts   int
	errors     []AttemptError
	totalWait  time.Duration
	startedAt  time.Time
	finishedAt time.Time
	finalized  bool
}

func newAttemptRecord() *AttemptRecord {
	return &AttemptRecord{startedAt: time.Now()}
}

func (r *AttemptRecord) addAttempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.attempts++
	}
}

func (r *AttemptRecord) addError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.errors = append(r.errors, AttemptError{Err: err, Timestamp: time.Now()})
	}
}

func (r *AttemptRecord) addWait(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.totalWait += d
	}
}

func (r *AttemptRecord) finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		r.finalized = true
		r.finishedAt = time.Now()
	}
}

// Attempts returns how many attempts were made.
func (r *AttemptRecord) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Errors returns a copy of the per-attempt errors.
func (r *AttemptRecord) Errors() []AttemptError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AttemptError, len(r.errors))
	copy(out, r.errors)
	return out
}

// TotalWait returns the cumulative time spent waiting between attempts.
func (r *AttemptRecord) TotalWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalWait
}

// Finalized reports whether the operation has terminated.
func (r *AttemptRecord) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Duration returns the wall time of the whole operation.
func (r *AttemptRecord) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt.IsZero() {
		return time.Since(r.startedAt)
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Executor runs operations under a retry policy and an optional circuit
// breaker. One executor guards one protected operation class.
type Executor struct {
	policy  Policy
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithBreaker attaches a circuit breaker to the executor.
func WithBreaker(breaker *CircuitBreaker) ExecutorOption {
	return func(x *Executor) {
		x.breaker = breaker
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(x *Executor) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// NewExecutor creates an executor with the given policy.
func NewExecutor(policy Policy, options ...ExecutorOption) *Executor {
	x := &Executor{
		policy: policy,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(x)
	}
	return x
}

// Breaker returns the attached circuit breaker, if any.
func (x *Executor) Breaker() *CircuitBreaker {
	return x.breaker
}

// Policy returns the executor's retry policy.
func (x *Executor) Policy() Policy {
	return x.policy
}

// Execute runs op until it succeeds, retries are exhausted, the breaker
// rejects, or the context is cancelled. The returned record is finalized
// when Execute returns.
func (x *Executor) Execute(ctx context.Context, op Operation) (*AttemptRecord, error) {
	record := newAttemptRecord()
	defer record.finalize()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return record, err
		}

		// Breaker gate before every attempt: open means fail fast, no
		// attempt made, no delay computed.
		if x.breaker != nil {
			if err := x.breaker.Allow(); err != nil {
				return record, err
			}
		}

		record.addAttempt()
		err := op(ctx)
		if err == nil {
			if x.breaker != nil {
				x.breaker.RecordSuccess()
			}
			return record, nil
		}

		lastErr = err
		record.addError(err)
		if x.breaker != nil {
			x.breaker.RecordFailure()
		}

		if !x.policy.ShouldRetry(err, attempt) {
			return record, &RetryExhaustedError{Attempts: attempt, LastErr: lastErr}
		}

		// A failure that opened the circuit rejects right away; no delay
		// is computed or slept.
		if x.breaker != nil {
			if openErr := x.breaker.rejectIfOpen(); openErr != nil {
				return record, openErr
			}
		}

		delay := x.policy.NextDelay(attempt)
		x.logger.Debug("retrying operation",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		waited, err := sleep(ctx, delay)
		record.addWait(waited)
		if err != nil {
			return record, err
		}
	}
}

// ExecuteFunc runs a value-returning operation under the executor's
// policy. On failure the zero value is returned alongside the record and
// error.
func ExecuteFunc[T any](ctx context.Context, x *Executor, op func(ctx context.Context) (T, error)) (T, *AttemptRecord, error) {
	var result T
	record, err := x.Execute(ctx, func(opCtx context.Context) error {
		v, opErr := op(opCtx)
		if opErr != nil {
			return opErr
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, record, err
	}
	return result, record, nil
}

// sleep waits for d or until the context is cancelled, returning how long
// it actually waited. The timer never blocks unrelated operations.
func sleep(ctx context.Context, d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, nil
	}
	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return time.Since(start), nil
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	}
}
