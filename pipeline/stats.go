package pipeline

import (
	"sync"
	"time"
)

// EntryStats is a point-in-time snapshot of one interceptor's statistics.
type EntryStats struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Phase           Phase         `json:"phase"`
	Executions      int64         `json:"executions"`
	Failures        int64         `json:"failures"`
	Timeouts        int64         `json:"timeouts"`
	Skips           int64         `json:"skips"`
	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`
	LastExecuted    time.Time     `json:"lastExecuted"`
	LastError       string        `json:"lastError,omitempty"`
}

// Summary aggregates statistics across all registered interceptors.
type Summary struct {
	Entries         int           `json:"entries"`
	TotalExecutions int64         `json:"totalExecutions"`
	TotalFailures   int64         `json:"totalFailures"`
	TotalTimeouts   int64         `json:"totalTimeouts"`
	TotalSkips      int64         `json:"totalSkips"`
	TotalDuration   time.Duration `json:"totalDuration"`
	ByPhase         map[string]int64 `json:"byPhase"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Stats tracks per-entry execution statistics. Records are created at
// registration and removed only on unregister; nothing is evicted
// implicitly.
type Stats struct {
	mu      sync.RWMutex
	entries map[string]*entryRecord
}

type entryRecord struct {
	name          string
	phase         Phase
	executions    int64
	failures      int64
	timeouts      int64
	skips         int64
	totalDuration time.Duration
	lastExecuted  time.Time
	lastError     string
}

func newStats() *Stats {
	return &Stats{entries: make(map[string]*entryRecord)}
}

func (s *Stats) init(id, name string, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entryRecord{name: name, phase: phase}
}

func (s *Stats) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *Stats) recordSuccess(id string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.entries[id]; ok {
		rec.executions++
		rec.totalDuration += duration
		rec.lastExecuted = time.Now()
	}
}

func (s *Stats) recordFailure(id string, duration time.Duration, err error, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.entries[id]; ok {
		rec.executions++
		rec.failures++
		if timedOut {
			rec.timeouts++
		}
		rec.totalDuration += duration
		rec.lastExecuted = time.Now()
		if err != nil {
			rec.lastError = err.Error()
		}
	}
}

func (s *Stats) recordSkip(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.entries[id]; ok {
		rec.skips++
	}
}

// Entry returns the statistics snapshot for one interceptor id.
func (s *Stats) Entry(id string) (EntryStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[id]
	if !ok {
		return EntryStats{}, false
	}
	return rec.snapshot(id), true
}

// All returns snapshots for every tracked interceptor.
func (s *Stats) All() []EntryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EntryStats, 0, len(s.entries))
	for id, rec := range s.entries {
		out = append(out, rec.snapshot(id))
	}
	return out
}

// Summary returns aggregate counts across all interceptors.
func (s *Stats) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{
		Entries:   len(s.entries),
		ByPhase:   make(map[string]int64),
		Timestamp: time.Now(),
	}
	for _, rec := range s.entries {
		summary.TotalExecutions += rec.executions
		summary.TotalFailures += rec.failures
		summary.TotalTimeouts += rec.timeouts
		summary.TotalSkips += rec.skips
		summary.TotalDuration += rec.totalDuration
		summary.ByPhase[rec.phase.String()] += rec.executions
	}
	return summary
}

func (rec *entryRecord) snapshot(id string) EntryStats {
	stats := EntryStats{
		ID:            id,
		Name:          rec.name,
		Phase:         rec.phase,
		Executions:    rec.executions,
		Failures:      rec.failures,
		Timeouts:      rec.timeouts,
		Skips:         rec.skips,
		TotalDuration: rec.totalDuration,
		LastExecuted:  rec.lastExecuted,
		LastError:     rec.lastError,
	}
	if rec.executions > 0 {
		stats.AverageDuration = rec.totalDuration / time.Duration(rec.executions)
	}
	return stats
}
