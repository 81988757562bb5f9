package plugin

import (
	"context"

	"github.com/apivet/apivet-go/pipeline"
)

// Plugin is a unit of interceptors with lifecycle hooks. Implementations
// usually embed Base and override the hooks they care about.
type Plugin interface {
	// Name identifies the plugin; it must be unique across the manager.
	Name() string
	// Version is required metadata.
	Version() string
	// Dependencies lists plugin names that must already be registered.
	Dependencies() []string
	// Enabled reports whether the plugin should activate right after
	// loading.
	Enabled() bool
	// Interceptors returns the registrations the manager installs into
	// the pipeline on load. The manager forces the group to the plugin
	// name and starts every entry disabled.
	Interceptors() []pipeline.Registration

	// Initialize is called once at registration, before Configure.
	Initialize(ctx context.Context, pctx *Context) error
	// Configure is called after Initialize, still during registration.
	Configure(ctx context.Context) error
	// Activate is called before the plugin's interceptors are enabled.
	Activate(ctx context.Context) error
	// Deactivate is called before the plugin's interceptors are disabled.
	Deactivate(ctx context.Context) error
	// Cleanup is called during unregistration, after the interceptors are
	// removed.
	Cleanup(ctx context.Context) error
	// Destroy is the final hook before the plugin is dropped from the
	// registry.
	Destroy(ctx context.Context) error
}

// HealthChecker is an optional interface for plugins with their own health
// probe. Without it, a plugin is considered healthy iff it is ACTIVE.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Base provides no-op lifecycle hooks and static metadata. Embed it and
// override what the plugin needs.
type Base struct {
	PluginName    string
	PluginVersion string
	Deps          []string
	AutoActivate  bool
}

// Name implements Plugin.
func (b *Base) Name() string { return b.PluginName }

// Version implements Plugin.
func (b *Base) Version() string { return b.PluginVersion }

// Dependencies implements Plugin.
func (b *Base) Dependencies() []string { return b.Deps }

// Enabled implements Plugin.
func (b *Base) Enabled() bool { return b.AutoActivate }

// Interceptors implements Plugin.
func (b *Base) Interceptors() []pipeline.Registration { return nil }

// Initialize implements Plugin.
func (b *Base) Initialize(ctx context.Context, pctx *Context) error { return nil }

// Configure implements Plugin.
func (b *Base) Configure(ctx context.Context) error { return nil }

// Activate implements Plugin.
func (b *Base) Activate(ctx context.Context) error { return nil }

// Deactivate implements Plugin.
func (b *Base) Deactivate(ctx context.Context) error { return nil }

// Cleanup implements Plugin.
func (b *Base) Cleanup(ctx context.Context) error { return nil }

// Destroy implements Plugin.
func (b *Base) Destroy(ctx context.Context) error { return nil }
