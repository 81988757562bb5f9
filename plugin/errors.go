package plugin

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrPluginNotFound is returned when a name matches no registered
	// plugin.
	ErrPluginNotFound = errors.New("plugin: not found")
	// ErrNameRequired is returned when a plugin declares no name.
	ErrNameRequired = errors.New("plugin: name is required")
	// ErrVersionRequired is returned when a plugin declares no version.
	ErrVersionRequired = errors.New("plugin: version is required")
	// ErrTransitionInProgress is returned when a lifecycle operation is
	// requested while another one is still running for the same plugin.
	ErrTransitionInProgress = errors.New("plugin: lifecycle transition in progress")
)

// DuplicatePluginError is returned when a plugin name is already taken.
type DuplicatePluginError struct {
	Name string
}

func (e *DuplicatePluginError) Error() string {
	return fmt.Sprintf("plugin: %q already registered", e.Name)
}

// MissingDependencyError lists every unmet dependency of a plugin, not
// just the first one found.
type MissingDependencyError struct {
	Plugin  string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("plugin: %q has unmet dependencies: %s",
		e.Plugin, strings.Join(e.Missing, ", "))
}

// HookTimeoutError is returned when a lifecycle hook loses its timeout
// race.
type HookTimeoutError struct {
	Plugin  string
	Hook    string
	Timeout time.Duration
}

func (e *HookTimeoutError) Error() string {
	return fmt.Sprintf("plugin: %q %s hook timed out after %v", e.Plugin, e.Hook, e.Timeout)
}

// HookError attributes a hook failure to its plugin and hook name.
type HookError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin: %q %s hook failed: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError is returned for a lifecycle operation that the
// state machine forbids.
type InvalidTransitionError struct {
	Plugin string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("plugin: %q cannot transition %s -> %s", e.Plugin, e.From, e.To)
}
