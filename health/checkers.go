package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/apivet/apivet-go/internal/reliability"
	"github.com/apivet/apivet-go/plugin"
)

// PluginChecker reports the aggregate health of every registered plugin.
type PluginChecker struct {
	manager *plugin.Manager
}

// NewPluginChecker creates a checker backed by the plugin manager.
func NewPluginChecker(manager *plugin.Manager) *PluginChecker {
	return &PluginChecker{manager: manager}
}

func (c *PluginChecker) Name() string {
	return "plugins"
}

func (c *PluginChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	statuses := c.manager.CheckAllHealth(ctx)
	unhealthy := 0
	for name, hs := range statuses {
		result.Details[name] = hs.State.String()
		if hs.State == plugin.HealthUnhealthy {
			unhealthy++
		}
	}
	result.Details["total"] = len(statuses)
	result.Details["unhealthy"] = unhealthy

	switch {
	case len(statuses) == 0:
		result.Status = StatusHealthy
		result.Message = "No plugins registered"
	case unhealthy == 0:
		result.Status = StatusHealthy
		result.Message = "All plugins healthy"
	case unhealthy < len(statuses):
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d of %d plugins unhealthy", unhealthy, len(statuses))
	default:
		result.Status = StatusUnhealthy
		result.Message = "All plugins unhealthy"
	}

	result.Duration = time.Since(start)
	return result
}

// BreakerChecker reports the state of a circuit breaker. An open circuit
// is unhealthy, a half-open one degraded.
type BreakerChecker struct {
	name    string
	breaker *reliability.CircuitBreaker
}

// NewBreakerChecker creates a checker for the given breaker.
func NewBreakerChecker(name string, breaker *reliability.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

func (c *BreakerChecker) Name() string {
	return c.name
}

func (c *BreakerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	metrics := c.breaker.Metrics()
	result.Details["state"] = metrics.State.String()
	result.Details["total_requests"] = metrics.TotalRequests
	result.Details["total_failures"] = metrics.TotalFailures
	result.Details["current_failures"] = metrics.CurrentFailures

	switch metrics.State {
	case reliability.StateOpen:
		result.Status = StatusUnhealthy
		result.Message = "Circuit is open"
	case reliability.StateHalfOpen:
		result.Status = StatusDegraded
		result.Message = "Circuit is probing recovery"
	default:
		result.Status = StatusHealthy
		result.Message = "Circuit is closed"
	}

	result.Duration = time.Since(start)
	return result
}

// RuntimeChecker flags abnormal goroutine counts.
type RuntimeChecker struct {
	warningThreshold  int
	criticalThreshold int
}

// NewRuntimeChecker creates a runtime checker with goroutine thresholds.
func NewRuntimeChecker(warningThreshold, criticalThreshold int) *RuntimeChecker {
	return &RuntimeChecker{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}
}

func (c *RuntimeChecker) Name() string {
	return "runtime"
}

func (c *RuntimeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goroutines := runtime.NumGoroutine()
	result.Details["goroutines"] = goroutines
	result.Details["memory_used_mb"] = float64(m.Sys) / 1024 / 1024
	result.Details["gc_runs"] = m.NumGC

	switch {
	case goroutines > c.criticalThreshold:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Too many goroutines: %d", goroutines)
	case goroutines > c.warningThreshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "Runtime is normal"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components.
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, map[string]interface{}, error)
}

// NewComponentChecker creates a checker for custom components.
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, map[string]interface{}, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	status, message, details, err := c.checker(ctx)

	result.Status = status
	result.Message = message
	if details != nil {
		result.Details = details
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}
