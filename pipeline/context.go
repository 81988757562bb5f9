package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionContext carries per-invocation state through one pipeline run.
// It is created at the start of an invocation, threaded through every
// interceptor call in that invocation, and discarded at the end. It is never
// shared across concurrent invocations, but a timed-out handler may still be
// running in the background, so all access is mutex-guarded.
type ExecutionContext struct {
	mu            sync.RWMutex
	correlationID string
	startedAt     time.Time
	attempt       int
	metadata      map[string]interface{}
	shortCircuit  bool
	cachedResult  interface{}
}

// NewExecutionContext creates a context with a fresh correlation id.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		correlationID: uuid.NewString(),
		startedAt:     time.Now(),
		attempt:       1,
		metadata:      make(map[string]interface{}),
	}
}

// CorrelationID returns the invocation correlation id.
func (ec *ExecutionContext) CorrelationID() string {
	return ec.correlationID
}

// StartedAt returns when the invocation began.
func (ec *ExecutionContext) StartedAt() time.Time {
	return ec.startedAt
}

// Attempt returns the current attempt number, starting at 1.
func (ec *ExecutionContext) Attempt() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.attempt
}

// NextAttempt increments the attempt counter and clears per-attempt flags so
// a retried operation runs the full chain again.
func (ec *ExecutionContext) NextAttempt() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.attempt++
	ec.shortCircuit = false
	ec.cachedResult = nil
	return ec.attempt
}

// Set stores a metadata value.
func (ec *ExecutionContext) Set(key string, value interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.metadata[key] = value
}

// Get retrieves a metadata value.
func (ec *ExecutionContext) Get(key string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.metadata[key]
	return v, ok
}

// GetString retrieves a string metadata value.
func (ec *ExecutionContext) GetString(key string) (string, bool) {
	v, ok := ec.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Delete removes a metadata value.
func (ec *ExecutionContext) Delete(key string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	delete(ec.metadata, key)
}

// ShortCircuit marks the invocation so the current chain stops after the
// step that set it.
func (ec *ExecutionContext) ShortCircuit() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.shortCircuit = true
}

// ShortCircuited reports whether the chain should stop.
func (ec *ExecutionContext) ShortCircuited() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.shortCircuit
}

// SetCachedResult stores a result produced by a short-circuiting entry,
// typically a cached response.
func (ec *ExecutionContext) SetCachedResult(result interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.cachedResult = result
}

// CachedResult returns the short-circuit result, if any.
func (ec *ExecutionContext) CachedResult() (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.cachedResult, ec.cachedResult != nil
}
