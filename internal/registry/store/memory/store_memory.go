// Package memory provides the in-memory registry slot. It favors clarity
// over performance and is the store of choice for tests and single-process
// deployments.
package memory

import (
	"context"
	"sync"

	"regcast/internal/filter"
	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
	"regcast/pkg/platform/sentinel"
)

// Store keeps identity records in a mutex-guarded map. Expired records are
// retained until the coordinator's eviction scan deletes them, so TTL
// handling stays uniform across backends.
type Store struct {
	mu      sync.RWMutex
	records map[string]models.Identity
}

var _ ports.RegistryStore = (*Store)(nil)

func New() *Store {
	return &Store{records: make(map[string]models.Identity)}
}

func (s *Store) Put(_ context.Context, rec models.Identity, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists && !replace {
		return sentinel.ErrDuplicate
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Get(_ context.Context, id string) (models.Identity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

// List supports native filtering: when a hint carries a filter, records
// that cannot match are not returned. The coordinator re-applies the
// filter regardless, so this is purely a result-size optimization.
func (s *Store) List(_ context.Context, hint *ports.ListHint) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Identity, 0, len(s.records))
	for _, rec := range s.records {
		if hint != nil && hint.Filter != nil && !filter.Match(hint.Filter, rec.Metadata) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
