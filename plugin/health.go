package plugin

import (
	"context"
	"fmt"
	"time"
)

// CheckHealth probes one plugin. Plugins implementing HealthChecker run
// their probe under the health check timeout; everything else is healthy
// exactly when ACTIVE. The outcome is recorded on the plugin's registry
// entry and returned; probe failures surface in the status, not as an
// error.
func (m *Manager) CheckHealth(ctx context.Context, name string) (HealthStatus, error) {
	e, status, err := m.lookup(name)
	if err != nil {
		return HealthStatus{}, err
	}

	start := time.Now()
	var probeErr error
	if hc, ok := e.plugin.(HealthChecker); ok {
		probeErr = m.runHookWithTimeout(ctx, name, "health-check", m.healthTimeout, hc.HealthCheck)
	} else if status != StatusActive {
		probeErr = fmt.Errorf("plugin is %s", status)
	}

	hs := HealthStatus{
		State:     HealthHealthy,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if probeErr != nil {
		hs.State = HealthUnhealthy
		hs.Message = probeErr.Error()
	}

	m.mu.Lock()
	e.health = hs
	e.stats.HealthChecks++
	m.mu.Unlock()

	if probeErr != nil {
		m.logger.Warn("plugin health check failed", "plugin", name, "error", probeErr)
	}
	return hs, nil
}

// CheckAllHealth probes every registered plugin and returns the outcomes
// keyed by plugin name.
func (m *Manager) CheckAllHealth(ctx context.Context) map[string]HealthStatus {
	m.mu.RLock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]HealthStatus, len(names))
	for _, name := range names {
		hs, err := m.CheckHealth(ctx, name)
		if err != nil {
			// Unregistered between snapshot and probe.
			continue
		}
		out[name] = hs
	}
	return out
}

// StartHealthChecks launches the periodic health check loop. It is an
// error to start it twice.
func (m *Manager) StartHealthChecks(ctx context.Context) error {
	m.schedulerMu.Lock()
	defer m.schedulerMu.Unlock()

	if m.running {
		return fmt.Errorf("plugin: health checks already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.healthLoop(loopCtx, m.done)

	m.logger.Info("plugin health checks started", "interval", m.healthInterval)
	return nil
}

// StopHealthChecks stops the loop and waits for it to exit.
func (m *Manager) StopHealthChecks() error {
	m.schedulerMu.Lock()
	defer m.schedulerMu.Unlock()

	if !m.running {
		return fmt.Errorf("plugin: health checks not running")
	}

	m.cancel()
	<-m.done
	m.running = false

	m.logger.Info("plugin health checks stopped")
	return nil
}

func (m *Manager) healthLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAllHealth(ctx)
		}
	}
}
