package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

// RunStore provides an in-memory run ledger for development/testing.
type RunStore struct {
	mu    sync.RWMutex
	order []string
	runs  map[string]crawler.RunRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]crawler.RunRecord)}
}

// RecordRun stores one execution. Run IDs are unique.
func (s *RunStore) RecordRun(_ context.Context, record crawler.RunRecord) error {
	if record.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[record.ID]; exists {
		return errors.New("run already recorded")
	}
	s.runs[record.ID] = record
	s.order = append(s.order, record.ID)
	return nil
}

// Run returns the record with id.
func (s *RunStore) Run(id string) (crawler.RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// Runs returns every record in insertion order.
func (s *RunStore) Runs() []crawler.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.RunRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id])
	}
	return out
}
