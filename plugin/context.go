package plugin

import (
	"log/slog"
	"sync"
)

// VariableStore is the shared variable service handed to plugins.
type VariableStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Delete(key string)
}

// MemoryVariableStore is a mutex-guarded in-memory VariableStore.
type MemoryVariableStore struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewMemoryVariableStore creates an empty store.
func NewMemoryVariableStore() *MemoryVariableStore {
	return &MemoryVariableStore{values: make(map[string]interface{})}
}

// Get implements VariableStore.
func (s *MemoryVariableStore) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set implements VariableStore.
func (s *MemoryVariableStore) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete implements VariableStore.
func (s *MemoryVariableStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Services is the bundle of shared capabilities the manager hands to every
// plugin. It is passed explicitly at registration, never held as ambient
// state.
type Services struct {
	Variables VariableStore
	Config    map[string]interface{}
}

// Context is the plugin-scoped view of the manager's services, built once
// per plugin at registration time.
type Context struct {
	logger    *slog.Logger
	variables VariableStore
	config    map[string]interface{}
}

func newContext(pluginName string, logger *slog.Logger, services Services) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	vars := services.Variables
	if vars == nil {
		vars = NewMemoryVariableStore()
	}
	return &Context{
		logger:    logger.With("plugin", pluginName),
		variables: vars,
		config:    services.Config,
	}
}

// Logger returns the plugin-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Variables returns the shared variable store.
func (c *Context) Variables() VariableStore {
	return c.variables
}

// ConfigValue returns a configuration value by key.
func (c *Context) ConfigValue(key string) (interface{}, bool) {
	v, ok := c.config[key]
	return v, ok
}
