package pipeline

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// registered pairs an entry with its handler and registration sequence.
// The sequence is what makes the priority sort stable across re-sorts.
type registered struct {
	entry   Entry
	handler handler
	seq     uint64
}

// Registry holds the ordered interceptor collections for every phase. It
// supports concurrent reads (chain execution) and occasional writes
// (registration, enable/disable) under a single RWMutex; chain runs iterate
// over a snapshot, so a toggle mid-run never affects an execution already
// past that entry.
type Registry struct {
	mu              sync.RWMutex
	phases          map[Phase][]*registered
	stats           *Stats
	allowDuplicates bool
	logger          *slog.Logger
	seq             uint64
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAllowDuplicates permits multiple entries with the same name within a
// phase.
func WithAllowDuplicates(allow bool) RegistryOption {
	return func(r *Registry) {
		r.allowDuplicates = allow
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		phases: map[Phase][]*registered{
			PhaseRequest:  {},
			PhaseResponse: {},
			PhaseError:    {},
		},
		stats:  newStats(),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// RegisterRequest registers a request-phase interceptor and returns its id.
func (r *Registry) RegisterRequest(entry Entry, h RequestHandler) (string, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	entry.Phase = PhaseRequest
	return r.register(entry, handler{request: h})
}

// RegisterResponse registers a response-phase interceptor and returns its id.
func (r *Registry) RegisterResponse(entry Entry, h ResponseHandler) (string, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	entry.Phase = PhaseResponse
	return r.register(entry, handler{response: h})
}

// RegisterError registers an error-phase interceptor and returns its id.
func (r *Registry) RegisterError(entry Entry, h ErrorHandler) (string, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	entry.Phase = PhaseError
	return r.register(entry, handler{err: h})
}

// Apply registers a Registration, dispatching on its entry phase.
func (r *Registry) Apply(reg Registration) (string, error) {
	switch reg.Entry.Phase {
	case PhaseRequest:
		if reg.Request == nil {
			return "", ErrHandlerPhaseMismatch
		}
		return r.RegisterRequest(reg.Entry, reg.Request)
	case PhaseResponse:
		if reg.Response == nil {
			return "", ErrHandlerPhaseMismatch
		}
		return r.RegisterResponse(reg.Entry, reg.Response)
	case PhaseError:
		if reg.Error == nil {
			return "", ErrHandlerPhaseMismatch
		}
		return r.RegisterError(reg.Entry, reg.Error)
	default:
		return "", ErrHandlerPhaseMismatch
	}
}

func (r *Registry) register(entry Entry, h handler) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.allowDuplicates {
		for _, existing := range r.phases[entry.Phase] {
			if existing.entry.Name == entry.Name {
				return "", &DuplicateInterceptorError{Name: entry.Name, Phase: entry.Phase}
			}
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	r.seq++
	r.phases[entry.Phase] = append(r.phases[entry.Phase], &registered{
		entry:   entry,
		handler: h,
		seq:     r.seq,
	})
	r.resort(entry.Phase)
	r.stats.init(entry.ID, entry.Name, entry.Phase)

	r.logger.Debug("interceptor registered",
		"name", entry.Name,
		"phase", entry.Phase.String(),
		"priority", entry.Priority,
		"id", entry.ID,
	)
	return entry.ID, nil
}

// resort orders a phase by priority descending. The sort is stable, so
// entries with equal priority keep their registration order.
func (r *Registry) resort(phase Phase) {
	sort.SliceStable(r.phases[phase], func(i, j int) bool {
		return r.phases[phase][i].entry.Priority > r.phases[phase][j].entry.Priority
	})
}

// Unregister removes the entry with the given id and its statistics.
func (r *Registry) Unregister(id string) bool {
	return r.removeMatching(func(e *Entry) bool { return e.ID == id }) > 0
}

// UnregisterByName removes all entries with the given name across phases
// and returns the count removed.
func (r *Registry) UnregisterByName(name string) int {
	return r.removeMatching(func(e *Entry) bool { return e.Name == name })
}

// UnregisterByGroup removes all entries in the given group across phases
// and returns the count removed.
func (r *Registry) UnregisterByGroup(group string) int {
	return r.removeMatching(func(e *Entry) bool { return e.Group == group })
}

func (r *Registry) removeMatching(match func(*Entry) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for phase, entries := range r.phases {
		kept := entries[:0]
		for _, reg := range entries {
			if match(&reg.entry) {
				r.stats.remove(reg.entry.ID)
				removed++
				continue
			}
			kept = append(kept, reg)
		}
		r.phases[phase] = kept
	}
	return removed
}

// SetEnabled toggles an entry. The change is pure metadata mutation: chain
// executions already holding a snapshot are unaffected, all subsequent runs
// observe the new state.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entries := range r.phases {
		for _, reg := range entries {
			if reg.entry.ID == id {
				reg.entry.Enabled = enabled
				return true
			}
		}
	}
	return false
}

// Enable enables the entry with the given id.
func (r *Registry) Enable(id string) bool {
	return r.SetEnabled(id, true)
}

// Disable disables the entry with the given id.
func (r *Registry) Disable(id string) bool {
	return r.SetEnabled(id, false)
}

// SetGroupEnabled toggles every entry in a group and returns the count
// affected. Plugins use one group per plugin to flip their interceptors as
// a unit.
func (r *Registry) SetGroupEnabled(group string, enabled bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	affected := 0
	for _, entries := range r.phases {
		for _, reg := range entries {
			if reg.entry.Group == group {
				reg.entry.Enabled = enabled
				affected++
			}
		}
	}
	return affected
}

// Entries returns a copy of the entries for a phase in execution order.
func (r *Registry) Entries(phase Phase) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.phases[phase]))
	for _, reg := range r.phases[phase] {
		out = append(out, reg.entry)
	}
	return out
}

// Count returns the total number of registered entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, entries := range r.phases {
		n += len(entries)
	}
	return n
}

// snapshot returns the enabled entries of a phase in execution order. The
// returned slice is a copy; the registered values it points at are never
// mutated structurally after registration apart from the Enabled flag, which
// is read once here.
func (r *Registry) snapshot(phase Phase) []*registered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*registered, 0, len(r.phases[phase]))
	for _, reg := range r.phases[phase] {
		if reg.entry.Enabled {
			out = append(out, reg)
		}
	}
	return out
}

// Stats returns the statistics tracker.
func (r *Registry) Stats() *Stats {
	return r.stats
}
