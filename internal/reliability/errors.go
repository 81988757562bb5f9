package reliability

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownState guards against an impossible breaker state.
	ErrUnknownState = errors.New("circuit breaker: unknown state")
)

// CircuitOpenError is returned by the breaker gate when a call is rejected
// without making an attempt.
type CircuitOpenError struct {
	Name             string
	State            State
	Failures         int
	FailureThreshold int
	LastFailure      time.Time
	NextRetry        time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker %s half-open: probe in flight", e.Name)
	}
	retryIn := time.Until(e.NextRetry).Round(time.Millisecond)
	return fmt.Sprintf("circuit breaker %s open: call rejected (failures=%d/%d, retry in %v)",
		e.Name, e.Failures, e.FailureThreshold, retryIn)
}

// RetryExhaustedError wraps the final underlying error once no further
// attempts are allowed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempt(s): %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}
