package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/apivet/apivet-go/pipeline"
)

const (
	defaultHookTimeout    = 10 * time.Second
	defaultHealthTimeout  = 2 * time.Second
	defaultHealthInterval = 30 * time.Second
)

// entry is one plugin's registry record.
type entry struct {
	plugin       Plugin
	context      *Context
	status       Status
	health       HealthStatus
	loadTime     time.Time
	interceptors int
	stats        Stats

	// transitioning serializes lifecycle operations per plugin: the FSM
	// check and the eventual status write bracket a hook invocation that
	// runs outside the manager lock.
	transitioning bool
}

// Manager owns the plugin registry and delegates interceptor installation
// to the pipeline registry. Lifecycle hooks are invoked without holding the
// registry lock so a slow hook never blocks health checks or lookups.
type Manager struct {
	mu       sync.RWMutex
	plugins  map[string]*entry
	registry *pipeline.Registry
	logger   *slog.Logger
	services Services

	hookTimeout    time.Duration
	healthTimeout  time.Duration
	healthInterval time.Duration

	schedulerMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithServices sets the service bundle handed to plugins.
func WithServices(services Services) ManagerOption {
	return func(m *Manager) {
		m.services = services
	}
}

// WithHookTimeout sets the lifecycle hook budget.
func WithHookTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.hookTimeout = timeout
		}
	}
}

// WithHealthCheckTimeout sets the health check hook budget.
func WithHealthCheckTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.healthTimeout = timeout
		}
	}
}

// WithHealthCheckInterval sets the periodic health check cadence.
func WithHealthCheckInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.healthInterval = interval
		}
	}
}

// NewManager creates a manager installing interceptors into the given
// pipeline registry.
func NewManager(registry *pipeline.Registry, options ...ManagerOption) *Manager {
	m := &Manager{
		plugins:        make(map[string]*entry),
		registry:       registry,
		logger:         slog.Default(),
		hookTimeout:    defaultHookTimeout,
		healthTimeout:  defaultHealthTimeout,
		healthInterval: defaultHealthInterval,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Register validates and loads a plugin: dependency check, Initialize and
// Configure hooks, interceptor installation (disabled), then LOADED. A
// plugin that declares itself enabled is activated immediately.
func (m *Manager) Register(ctx context.Context, p Plugin) error {
	if p.Name() == "" {
		return ErrNameRequired
	}
	if p.Version() == "" {
		return ErrVersionRequired
	}

	m.mu.Lock()
	if _, exists := m.plugins[p.Name()]; exists {
		m.mu.Unlock()
		return &DuplicatePluginError{Name: p.Name()}
	}
	var missing []string
	for _, dep := range p.Dependencies() {
		if _, ok := m.plugins[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		m.mu.Unlock()
		return &MissingDependencyError{Plugin: p.Name(), Missing: missing}
	}
	e := &entry{
		plugin:   p,
		context:  newContext(p.Name(), m.logger, m.services),
		status:   StatusLoading,
		loadTime: time.Now(),
	}
	m.plugins[p.Name()] = e
	m.mu.Unlock()

	if err := m.runHook(ctx, p.Name(), "initialize", func(hctx context.Context) error {
		return p.Initialize(hctx, e.context)
	}); err != nil {
		m.fail(e, err)
		return err
	}
	if err := m.runHook(ctx, p.Name(), "configure", p.Configure); err != nil {
		m.fail(e, err)
		return err
	}

	installed := 0
	for _, reg := range p.Interceptors() {
		// One group per plugin so activation flips them as a unit.
		reg.Entry.Group = p.Name()
		reg.Entry.Enabled = false
		if _, err := m.registry.Apply(reg); err != nil {
			m.registry.UnregisterByGroup(p.Name())
			m.fail(e, err)
			return fmt.Errorf("plugin %q: registering interceptor %q: %w", p.Name(), reg.Entry.Name, err)
		}
		installed++
	}

	m.mu.Lock()
	e.interceptors = installed
	e.status = StatusLoaded
	m.mu.Unlock()

	m.logger.Info("plugin loaded",
		"plugin", p.Name(),
		"version", p.Version(),
		"interceptors", installed,
	)

	if p.Enabled() {
		return m.Activate(ctx, p.Name())
	}
	return nil
}

// Activate runs the Activate hook and then enables all of the plugin's
// interceptors. A hook failure moves the plugin to ERROR and leaves the
// interceptors in their prior enabled state.
func (m *Manager) Activate(ctx context.Context, name string) error {
	e, err := m.begin(name, StatusActive)
	if err != nil || e == nil {
		return err
	}

	if err := m.runHook(ctx, name, "activate", e.plugin.Activate); err != nil {
		m.fail(e, err)
		return err
	}

	m.registry.SetGroupEnabled(name, true)
	m.mu.Lock()
	e.status = StatusActive
	e.stats.Activations++
	e.transitioning = false
	m.mu.Unlock()

	m.logger.Info("plugin activated", "plugin", name)
	return nil
}

// Deactivate runs the Deactivate hook and then disables all of the
// plugin's interceptors.
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	e, err := m.begin(name, StatusInactive)
	if err != nil || e == nil {
		return err
	}

	if err := m.runHook(ctx, name, "deactivate", e.plugin.Deactivate); err != nil {
		m.fail(e, err)
		return err
	}

	m.registry.SetGroupEnabled(name, false)
	m.mu.Lock()
	e.status = StatusInactive
	e.stats.Deactivations++
	e.transitioning = false
	m.mu.Unlock()

	m.logger.Info("plugin deactivated", "plugin", name)
	return nil
}

// begin claims a lifecycle transition for a plugin. It returns (nil, nil)
// when the plugin already is in the target state, so callers treat that as
// a no-op.
func (m *Manager) begin(name string, to Status) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if e.status == to {
		return nil, nil
	}
	if e.transitioning {
		return nil, fmt.Errorf("%w: %s", ErrTransitionInProgress, name)
	}
	if !e.status.canTransition(to) {
		return nil, &InvalidTransitionError{Plugin: name, From: e.status, To: to}
	}
	e.transitioning = true
	return e, nil
}

// Unregister tears a plugin down: deactivation if active, interceptor
// removal, Cleanup and Destroy hooks, then UNLOADED and dropped from the
// registry. Hook failures during teardown are logged and do not stop the
// removal.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if e.transitioning {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTransitionInProgress, name)
	}
	e.transitioning = true
	status := e.status
	m.mu.Unlock()

	if status == StatusActive {
		if err := m.runHook(ctx, name, "deactivate", e.plugin.Deactivate); err != nil {
			m.logger.Warn("deactivate hook failed during unregister", "plugin", name, "error", err)
			m.countHookFailure(e)
		}
		m.registry.SetGroupEnabled(name, false)
	}

	m.registry.UnregisterByGroup(name)

	if err := m.runHook(ctx, name, "cleanup", e.plugin.Cleanup); err != nil {
		m.logger.Warn("cleanup hook failed", "plugin", name, "error", err)
		m.countHookFailure(e)
	}
	if err := m.runHook(ctx, name, "destroy", e.plugin.Destroy); err != nil {
		m.logger.Warn("destroy hook failed", "plugin", name, "error", err)
		m.countHookFailure(e)
	}

	m.mu.Lock()
	e.status = StatusUnloaded
	delete(m.plugins, name)
	m.mu.Unlock()

	m.logger.Info("plugin unloaded", "plugin", name)
	return nil
}

// Status returns the lifecycle status of a plugin.
func (m *Manager) Status(name string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.plugins[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return e.status, nil
}

// Get returns a registered plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.plugins[name]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// List returns a snapshot of every registered plugin, sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.plugins))
	for name, e := range m.plugins {
		out = append(out, Info{
			Name:         name,
			Version:      e.plugin.Version(),
			Status:       e.status,
			Health:       e.health,
			LoadTime:     e.loadTime,
			Interceptors: e.interceptors,
			Stats:        e.stats,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

func (m *Manager) lookup(name string) (*entry, Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.plugins[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return e, e.status, nil
}

func (m *Manager) fail(e *entry, err error) {
	m.mu.Lock()
	e.status = StatusError
	e.stats.HookFailures++
	e.transitioning = false
	m.mu.Unlock()
	m.logger.Error("plugin moved to error state",
		"plugin", e.plugin.Name(),
		"error", err,
	)
}

func (m *Manager) countHookFailure(e *entry) {
	m.mu.Lock()
	e.stats.HookFailures++
	m.mu.Unlock()
}

// runHook races a lifecycle hook against the hook timeout. On timeout the
// hook's eventual result is discarded.
func (m *Manager) runHook(ctx context.Context, pluginName, hookName string, fn func(context.Context) error) error {
	return m.runHookWithTimeout(ctx, pluginName, hookName, m.hookTimeout, fn)
}

func (m *Manager) runHookWithTimeout(ctx context.Context, pluginName, hookName string, timeout time.Duration, fn func(context.Context) error) error {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(hctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &HookError{Plugin: pluginName, Hook: hookName, Err: err}
		}
		return nil
	case <-hctx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return &HookTimeoutError{Plugin: pluginName, Hook: hookName, Timeout: timeout}
	}
}
