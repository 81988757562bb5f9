// Package plugin provides lifecycle management for pipeline plugins.
//
// A plugin bundles a set of interceptors with lifecycle hooks. The manager
// owns a state machine per plugin:
//
//	LOADING -> LOADED -> ACTIVE <-> INACTIVE
//	any state -> ERROR
//	ACTIVE/INACTIVE/ERROR -> UNLOADED (terminal)
//
// A plugin's interceptors are registered in the pipeline registry while the
// plugin is at least LOADED and enabled only while it is ACTIVE; activation
// and deactivation flip all of a plugin's interceptors as a unit. Every
// lifecycle hook runs under a timeout race: whichever settles first, the
// hook or the timeout, wins.
//
// Health checks run on demand and on a periodic schedule owned by the
// manager; check failures are captured as an unhealthy status and never
// propagate to callers.
package plugin
