// Package health aggregates component health checks. Checks run
// concurrently under the caller's context; a cancelled context marks every
// unfinished check unhealthy instead of blocking.
package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse orders statuses by severity and returns the more severe one.
func worse(a, b Status) Status {
	if a == StatusUnhealthy || b == StatusUnhealthy {
		return StatusUnhealthy
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// CheckResult is the outcome of one health check.
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
}

// OverallHealth aggregates every check. The overall status is the worst
// individual status.
type OverallHealth struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks.
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// CheckerFunc is a bare check function; NewCheckerFunc pairs it with a
// name to satisfy Checker.
type CheckerFunc func(ctx context.Context) CheckResult

type namedChecker struct {
	name string
	fn   CheckerFunc
}

// NewCheckerFunc adapts a function to the Checker interface.
func NewCheckerFunc(name string, fn CheckerFunc) Checker {
	return &namedChecker{name: name, fn: fn}
}

func (c *namedChecker) Name() string { return c.name }

func (c *namedChecker) Check(ctx context.Context) CheckResult {
	result := c.fn(ctx)
	if result.Name == "" {
		result.Name = c.name
	}
	return result
}

// Registry manages health checks.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]interface{}
}

// NewRegistry creates an empty health check registry.
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		metadata: make(map[string]interface{}),
	}
}

// Register adds a health checker, replacing any checker with the same
// name.
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// Unregister removes a health checker.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}

// SetMetadata sets global metadata reported with every aggregate result.
func (r *Registry) SetMetadata(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = value
}

// Check runs every registered checker concurrently and aggregates the
// results. When ctx expires first, checks that have not reported are
// recorded as unhealthy and the aggregate is unhealthy.
func (r *Registry) Check(ctx context.Context) OverallHealth {
	start := time.Now()
	checkers, metadata := r.snapshot()

	type outcome struct {
		name   string
		result CheckResult
	}
	results := make(chan outcome, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker Checker) {
			results <- outcome{name: name, result: checker.Check(ctx)}
		}(name, checker)
	}

	checks := make(map[string]CheckResult, len(checkers))
	status := StatusHealthy
	for range checkers {
		select {
		case out := <-results:
			checks[out.name] = out.result
			status = worse(status, out.result.Status)
		case <-ctx.Done():
			for name := range checkers {
				if _, reported := checks[name]; reported {
					continue
				}
				checks[name] = CheckResult{
					Name:      name,
					Status:    StatusUnhealthy,
					Message:   "check did not finish",
					Duration:  time.Since(start),
					Timestamp: time.Now(),
					Error:     ctx.Err().Error(),
				}
			}
			return r.aggregate(StatusUnhealthy, start, checks, metadata)
		}
	}
	return r.aggregate(status, start, checks, metadata)
}

func (r *Registry) aggregate(status Status, start time.Time, checks map[string]CheckResult, metadata map[string]interface{}) OverallHealth {
	return OverallHealth{
		Status:    status,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

func (r *Registry) snapshot() (map[string]Checker, map[string]interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	checkers := make(map[string]Checker, len(r.checkers))
	for name, checker := range r.checkers {
		checkers[name] = checker
	}
	metadata := make(map[string]interface{}, len(r.metadata))
	for key, value := range r.metadata {
		metadata[key] = value
	}
	return checkers, metadata
}
