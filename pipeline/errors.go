package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEntryNotFound is returned when an id does not match any entry.
	ErrEntryNotFound = errors.New("pipeline: interceptor not found")
	// ErrNilHandler is returned when a registration carries no handler.
	ErrNilHandler = errors.New("pipeline: handler must not be nil")
	// ErrHandlerPhaseMismatch is returned when a registration's handler does
	// not match its entry phase.
	ErrHandlerPhaseMismatch = errors.New("pipeline: handler does not match entry phase")
)

// DuplicateInterceptorError is returned when a name collision occurs within
// a phase and duplicates are disallowed.
type DuplicateInterceptorError struct {
	Name  string
	Phase Phase
}

func (e *DuplicateInterceptorError) Error() string {
	return fmt.Sprintf("pipeline: interceptor %q already registered in %s phase", e.Name, e.Phase)
}

// InterceptorTimeoutError is recorded when a single interceptor call exceeds
// its per-call budget. The underlying work may still be running; its result
// is discarded.
type InterceptorTimeoutError struct {
	Name    string
	Phase   Phase
	Timeout time.Duration
}

func (e *InterceptorTimeoutError) Error() string {
	return fmt.Sprintf("pipeline: interceptor %q (%s phase) timed out after %v", e.Name, e.Phase, e.Timeout)
}

// CriticalInterceptorError aborts a chain run. It wraps the failing entry's
// name and phase so failure sources stay attributable.
type CriticalInterceptorError struct {
	Name  string
	Phase Phase
	Err   error
}

func (e *CriticalInterceptorError) Error() string {
	return fmt.Sprintf("pipeline: critical interceptor %q failed in %s phase: %v", e.Name, e.Phase, e.Err)
}

func (e *CriticalInterceptorError) Unwrap() error {
	return e.Err
}
