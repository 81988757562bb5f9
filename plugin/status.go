package plugin

import "time"

// Status is the lifecycle state of a registered plugin.
type Status int

const (
	StatusLoading Status = iota
	StatusLoaded
	StatusActive
	StatusInactive
	StatusError
	StatusUnloaded
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusError:
		return "error"
	case StatusUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// canTransition encodes the lifecycle state machine. ERROR is reachable
// from any non-terminal state; UNLOADED is terminal.
func (s Status) canTransition(to Status) bool {
	if s == StatusUnloaded {
		return false
	}
	if to == StatusError {
		return true
	}
	switch s {
	case StatusLoading:
		return to == StatusLoaded
	case StatusLoaded:
		return to == StatusActive
	case StatusActive:
		return to == StatusInactive || to == StatusUnloaded
	case StatusInactive:
		return to == StatusActive || to == StatusUnloaded
	case StatusError:
		return to == StatusUnloaded
	default:
		return false
	}
}

// HealthState classifies a plugin health check outcome.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthHealthy
	HealthUnhealthy
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HealthStatus is the recorded outcome of one health check.
type HealthStatus struct {
	State     HealthState   `json:"state"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`
}

// Stats counts lifecycle events for one plugin.
type Stats struct {
	Activations   int64 `json:"activations"`
	Deactivations int64 `json:"deactivations"`
	HookFailures  int64 `json:"hookFailures"`
	HealthChecks  int64 `json:"healthChecks"`
}

// Info is a snapshot of one plugin's registry entry.
type Info struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Status       Status       `json:"status"`
	Health       HealthStatus `json:"health"`
	LoadTime     time.Time    `json:"loadTime"`
	Interceptors int          `json:"interceptors"`
	Stats        Stats        `json:"stats"`
}
