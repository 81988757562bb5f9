package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apivet/apivet-go/contracts"
	"github.com/apivet/apivet-go/pipeline"
)

// testPlugin records hook invocations and lets individual hooks be
// overridden or made to fail.
type testPlugin struct {
	Base

	mu    sync.Mutex
	calls []string

	initializeErr error
	configureErr  error
	activateErr   error
	deactivateErr error
	cleanupErr    error

	activateDelay time.Duration

	registrations []pipeline.Registration
}

func newTestPlugin(name string) *testPlugin {
	return &testPlugin{Base: Base{PluginName: name, PluginVersion: "1.0.0"}}
}

func (p *testPlugin) record(hook string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, hook)
}

func (p *testPlugin) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *testPlugin) Interceptors() []pipeline.Registration {
	return p.registrations
}

func (p *testPlugin) Initialize(ctx context.Context, pctx *Context) error {
	p.record("initialize")
	return p.initializeErr
}

func (p *testPlugin) Configure(ctx context.Context) error {
	p.record("configure")
	return p.configureErr
}

func (p *testPlugin) Activate(ctx context.Context) error {
	p.record("activate")
	if p.activateDelay > 0 {
		// Deliberately ignores ctx so timeout behavior is observable.
		time.Sleep(p.activateDelay)
	}
	return p.activateErr
}

func (p *testPlugin) Deactivate(ctx context.Context) error {
	p.record("deactivate")
	return p.deactivateErr
}

func (p *testPlugin) Cleanup(ctx context.Context) error {
	p.record("cleanup")
	return p.cleanupErr
}

func (p *testPlugin) Destroy(ctx context.Context) error {
	p.record("destroy")
	return nil
}

func passthroughRegistration(name string) pipeline.Registration {
	return pipeline.Registration{
		Entry: pipeline.Entry{Name: name, Phase: pipeline.PhaseRequest},
		Request: func(ctx context.Context, ec *pipeline.ExecutionContext, req *contracts.Request) (*contracts.Request, error) {
			return req, nil
		},
	}
}

func enabledEntries(r *pipeline.Registry, phase pipeline.Phase) int {
	n := 0
	for _, e := range r.Entries(phase) {
		if e.Enabled {
			n++
		}
	}
	return n
}

func TestManagerRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("loads plugin and installs interceptors disabled", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}

		require.NoError(t, m.Register(ctx, p))

		status, err := m.Status("auth")
		require.NoError(t, err)
		assert.Equal(t, StatusLoaded, status)
		assert.Equal(t, []string{"initialize", "configure"}, p.callLog())

		assert.Equal(t, 1, registry.Count())
		assert.Equal(t, 0, enabledEntries(registry, pipeline.PhaseRequest))
	})

	t.Run("forces interceptor group to plugin name", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		reg := passthroughRegistration("auth-header")
		reg.Entry.Group = "something-else"
		p.registrations = []pipeline.Registration{reg}

		require.NoError(t, m.Register(ctx, p))

		entries := registry.Entries(pipeline.PhaseRequest)
		require.Len(t, entries, 1)
		assert.Equal(t, "auth", entries[0].Group)
	})

	t.Run("requires name and version", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())

		err := m.Register(ctx, &testPlugin{Base: Base{PluginVersion: "1.0.0"}})
		assert.ErrorIs(t, err, ErrNameRequired)

		err = m.Register(ctx, &testPlugin{Base: Base{PluginName: "auth"}})
		assert.ErrorIs(t, err, ErrVersionRequired)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())

		require.NoError(t, m.Register(ctx, newTestPlugin("auth")))

		err := m.Register(ctx, newTestPlugin("auth"))
		var dupErr *DuplicatePluginError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "auth", dupErr.Name)
	})

	t.Run("reports every missing dependency", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())
		require.NoError(t, m.Register(ctx, newTestPlugin("logging")))

		p := newTestPlugin("report")
		p.Deps = []string{"auth", "logging", "metrics"}

		err := m.Register(ctx, p)
		var missErr *MissingDependencyError
		require.ErrorAs(t, err, &missErr)
		assert.Equal(t, "report", missErr.Plugin)
		assert.Equal(t, []string{"auth", "metrics"}, missErr.Missing)

		// Never added, so its hooks never ran.
		assert.Empty(t, p.callLog())
		_, statusErr := m.Status("report")
		assert.ErrorIs(t, statusErr, ErrPluginNotFound)
	})

	t.Run("satisfied dependencies load", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())
		require.NoError(t, m.Register(ctx, newTestPlugin("auth")))

		p := newTestPlugin("report")
		p.Deps = []string{"auth"}
		assert.NoError(t, m.Register(ctx, p))
	})

	t.Run("initialize failure moves plugin to error", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())

		p := newTestPlugin("broken")
		p.initializeErr = errors.New("boom")

		err := m.Register(ctx, p)
		var hookErr *HookError
		require.ErrorAs(t, err, &hookErr)
		assert.Equal(t, "initialize", hookErr.Hook)

		status, statusErr := m.Status("broken")
		require.NoError(t, statusErr)
		assert.Equal(t, StatusError, status)
	})

	t.Run("enabled plugin activates immediately", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.AutoActivate = true
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}

		require.NoError(t, m.Register(ctx, p))

		status, err := m.Status("auth")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, status)
		assert.Equal(t, 1, enabledEntries(registry, pipeline.PhaseRequest))
	})
}

func TestManagerActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("runs hook then enables interceptors", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}
		require.NoError(t, m.Register(ctx, p))

		require.NoError(t, m.Activate(ctx, "auth"))

		status, _ := m.Status("auth")
		assert.Equal(t, StatusActive, status)
		assert.Equal(t, 1, enabledEntries(registry, pipeline.PhaseRequest))
		assert.Equal(t, []string{"initialize", "configure", "activate"}, p.callLog())
	})

	t.Run("activating an active plugin is a no-op", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())
		p := newTestPlugin("auth")
		require.NoError(t, m.Register(ctx, p))
		require.NoError(t, m.Activate(ctx, "auth"))

		require.NoError(t, m.Activate(ctx, "auth"))
		assert.Equal(t, []string{"initialize", "configure", "activate"}, p.callLog())
	})

	t.Run("hook failure leaves interceptors disabled", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.activateErr = errors.New("no credentials")
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}
		require.NoError(t, m.Register(ctx, p))

		err := m.Activate(ctx, "auth")
		var hookErr *HookError
		require.ErrorAs(t, err, &hookErr)

		status, _ := m.Status("auth")
		assert.Equal(t, StatusError, status)
		assert.Equal(t, 0, enabledEntries(registry, pipeline.PhaseRequest))
	})

	t.Run("slow hook times out and plugin stays out of active", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry(), WithHookTimeout(20*time.Millisecond))

		p := newTestPlugin("slow")
		p.activateDelay = 200 * time.Millisecond
		require.NoError(t, m.Register(ctx, p))

		err := m.Activate(ctx, "slow")
		var toErr *HookTimeoutError
		require.ErrorAs(t, err, &toErr)
		assert.Equal(t, "activate", toErr.Hook)

		status, _ := m.Status("slow")
		assert.Equal(t, StatusError, status)
	})

	t.Run("error state cannot activate", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())

		p := newTestPlugin("auth")
		p.activateErr = errors.New("boom")
		require.NoError(t, m.Register(ctx, p))
		require.Error(t, m.Activate(ctx, "auth"))

		p.activateErr = nil
		err := m.Activate(ctx, "auth")
		var transErr *InvalidTransitionError
		require.ErrorAs(t, err, &transErr)
		assert.Equal(t, StatusError, transErr.From)
	})

	t.Run("unknown plugin", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())
		assert.ErrorIs(t, m.Activate(ctx, "ghost"), ErrPluginNotFound)
	})

	t.Run("concurrent activation runs the hook once", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())

		p := newTestPlugin("slow")
		p.activateDelay = 100 * time.Millisecond
		require.NoError(t, m.Register(ctx, p))

		done := make(chan error, 1)
		go func() { done <- m.Activate(ctx, "slow") }()

		// Wait until the first activation is inside its hook.
		require.Eventually(t, func() bool {
			return len(p.callLog()) >= 3
		}, time.Second, time.Millisecond)

		assert.ErrorIs(t, m.Activate(ctx, "slow"), ErrTransitionInProgress)

		require.NoError(t, <-done)
		status, _ := m.Status("slow")
		assert.Equal(t, StatusActive, status)

		hookRuns := 0
		for _, call := range p.callLog() {
			if call == "activate" {
				hookRuns++
			}
		}
		assert.Equal(t, 1, hookRuns)
	})
}

func TestManagerDeactivate(t *testing.T) {
	ctx := context.Background()

	t.Run("runs hook then disables interceptors", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}
		require.NoError(t, m.Register(ctx, p))
		require.NoError(t, m.Activate(ctx, "auth"))

		require.NoError(t, m.Deactivate(ctx, "auth"))

		status, _ := m.Status("auth")
		assert.Equal(t, StatusInactive, status)
		assert.Equal(t, 0, enabledEntries(registry, pipeline.PhaseRequest))
	})

	t.Run("reactivation after deactivation", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}
		require.NoError(t, m.Register(ctx, p))
		require.NoError(t, m.Activate(ctx, "auth"))
		require.NoError(t, m.Deactivate(ctx, "auth"))

		require.NoError(t, m.Activate(ctx, "auth"))
		assert.Equal(t, 1, enabledEntries(registry, pipeline.PhaseRequest))
	})

	t.Run("loaded plugin cannot deactivate", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())
		require.NoError(t, m.Register(ctx, newTestPlugin("auth")))

		err := m.Deactivate(ctx, "auth")
		var transErr *InvalidTransitionError
		require.ErrorAs(t, err, &transErr)
	})
}

func TestManagerUnregister(t *testing.T) {
	ctx := context.Background()

	t.Run("active plugin is deactivated then torn down in order", func(t *testing.T) {
		registry := pipeline.NewRegistry()
		m := NewManager(registry)

		p := newTestPlugin("auth")
		p.registrations = []pipeline.Registration{passthroughRegistration("auth-header")}
		require.NoError(t, m.Register(ctx, p))
		require.NoError(t, m.Activate(ctx, "auth"))

		require.NoError(t, m.Unregister(ctx, "auth"))

		assert.Equal(t, []string{"initialize", "configure", "activate", "deactivate", "cleanup", "destroy"}, p.callLog())
		assert.Equal(t, 0, registry.Count())

		_, err := m.Status("auth")
		assert.ErrorIs(t, err, ErrPluginNotFound)
	})

	t.Run("teardown hook failures do not stop removal", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())

		p := newTestPlugin("auth")
		p.cleanupErr = errors.New("leak")
		require.NoError(t, m.Register(ctx, p))

		require.NoError(t, m.Unregister(ctx, "auth"))
		assert.Equal(t, 0, m.Count())
		assert.Contains(t, p.callLog(), "destroy")
	})

	t.Run("name is reusable after unregister", func(t *testing.T) {
		m := NewManager(pipeline.NewRegistry())
		require.NoError(t, m.Register(ctx, newTestPlugin("auth")))
		require.NoError(t, m.Unregister(ctx, "auth"))

		assert.NoError(t, m.Register(ctx, newTestPlugin("auth")))
	})
}

func TestManagerList(t *testing.T) {
	ctx := context.Background()

	m := NewManager(pipeline.NewRegistry())
	require.NoError(t, m.Register(ctx, newTestPlugin("metrics")))
	require.NoError(t, m.Register(ctx, newTestPlugin("auth")))
	require.NoError(t, m.Activate(ctx, "auth"))

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "auth", infos[0].Name)
	assert.Equal(t, StatusActive, infos[0].Status)
	assert.Equal(t, int64(1), infos[0].Stats.Activations)
	assert.Equal(t, "metrics", infos[1].Name)
	assert.Equal(t, StatusLoaded, infos[1].Status)

	p, ok := m.Get("auth")
	require.True(t, ok)
	assert.Equal(t, "auth", p.Name())
	assert.Equal(t, 2, m.Count())
}
