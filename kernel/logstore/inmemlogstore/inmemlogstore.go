// Package inmemlogstore provides an in-memory logstore.Store for tests and local
// development: cycle records and log entries are held in maps keyed by plan
// ID, with no durability across process restarts.
package inmemlogstore

import (
	"context"
	"sync"

	"github.com/taskplan/kernel/logstore"
	"github.com/taskplan/kernel/plan"
)

// Store implements logstore.Store in memory. All operations are
// thread-safe via sync.RWMutex; slices are defensively copied on read and
// write so callers can't mutate stored state through an aliased slice.
type Store struct {
	mu     sync.RWMutex
	cycles map[string][]logstore.CycleRecord
	logs   map[string][]plan.LogEntry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		cycles: make(map[string][]logstore.CycleRecord),
		logs:   make(map[string][]plan.LogEntry),
	}
}

func (s *Store) AppendCycle(_ context.Context, planID string, rec logstore.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.External = append([]plan.ExternalEvent(nil), rec.External...)
	s.cycles[planID] = append(s.cycles[planID], rec)
	return nil
}

func (s *Store) AppendLog(_ context.Context, planID string, entry plan.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Args = append([]any(nil), entry.Args...)
	s.logs[planID] = append(s.logs[planID], entry)
	return nil
}

func (s *Store) LoadCycles(_ context.Context, planID string) ([]logstore.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]logstore.CycleRecord, len(s.cycles[planID]))
	for i, rec := range s.cycles[planID] {
		rec.External = append([]plan.ExternalEvent(nil), rec.External...)
		out[i] = rec
	}
	return out, nil
}

func (s *Store) LoadLog(_ context.Context, planID string) ([]plan.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plan.LogEntry, len(s.logs[planID]))
	for i, e := range s.logs[planID] {
		e.Args = append([]any(nil), e.Args...)
		out[i] = e
	}
	return out, nil
}

// Reset clears all stored state. Test-only, not part of logstore.Store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = make(map[string][]logstore.CycleRecord)
	s.logs = make(map[string][]plan.LogEntry)
}

var _ logstore.Store = (*Store)(nil)
