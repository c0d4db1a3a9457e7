package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// ItemStore keeps catalog item documents in memory.
type ItemStore struct {
	mu    sync.Mutex
	items map[catalog.Identifier]catalog.Item
}

// NewItemStore creates a store seeded with items.
func NewItemStore(items ...catalog.Item) *ItemStore {
	s := &ItemStore{items: make(map[catalog.Identifier]catalog.Item, len(items))}
	for _, it := range items {
		s.items[it.Identifier] = it
	}
	return s
}

// MarkRestricted implements catalog.ItemStore.
func (s *ItemStore) MarkRestricted(_ context.Context, r catalog.ItemRestriction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[r.Identifier]
	if !ok {
		item = catalog.Item{Identifier: r.Identifier, Placeholder: true}
	}
	item.RegionRestricted = true
	item.RestrictionBy = r.DetectionMethod
	item.RestrictedAt = r.DetectedAt
	item.RestrictionRunID = r.RunID
	s.items[r.Identifier] = item
	return !ok, nil
}

// Get returns the item document, if present.
func (s *ItemStore) Get(id catalog.Identifier) (catalog.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	return it, ok
}
