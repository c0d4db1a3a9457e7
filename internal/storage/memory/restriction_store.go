package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// RestrictionStore keeps restriction records in memory.
type RestrictionStore struct {
	mu      sync.Mutex
	records map[catalog.Identifier]catalog.RestrictionRecord
}

// NewRestrictionStore creates an empty store.
func NewRestrictionStore() *RestrictionStore {
	return &RestrictionStore{records: make(map[catalog.Identifier]catalog.RestrictionRecord)}
}

// Known implements catalog.RestrictionStore.
func (s *RestrictionStore) Known(_ context.Context, ids []catalog.Identifier) (map[catalog.Identifier]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[catalog.Identifier]bool)
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// Upsert implements catalog.RestrictionStore.
func (s *RestrictionStore) Upsert(_ context.Context, rec catalog.RestrictionUpsert) (catalog.RestrictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.Identifier]
	if !ok {
		existing = catalog.RestrictionRecord{
			Identifier:      rec.Identifier,
			DetectionMethod: rec.DetectionMethod,
			FirstDetectedAt: rec.DetectedAt,
		}
	}
	existing.LastAttemptAt = rec.DetectedAt
	existing.AttemptCount++
	existing.ErrorDetails = rec.ErrorDetails
	s.records[rec.Identifier] = existing
	return existing, nil
}

// Get implements catalog.RestrictionStore.
func (s *RestrictionStore) Get(_ context.Context, id catalog.Identifier) (catalog.RestrictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return catalog.RestrictionRecord{}, catalog.ErrRestrictionNotFound
	}
	return rec, nil
}
