// Package evidence provides the in-process store of the user's achievement
// records and the ingestion path that keeps it, and its embeddings, current.
package evidence

import (
	"sort"
	"sync"
	"time"

	"github.com/jonathan/career-copilot/internal/types"
)

// Store holds the evidence items with single-writer/multiple-reader semantics.
// Readers get an immutable snapshot slice; ingestion swaps the whole slice
// under the write lock, so a reader never observes a partial write.
type Store struct {
	mu    sync.RWMutex
	items []types.EvidenceItem
	byID  map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// Snapshot returns the current items, ordered by ingestion time ascending.
// The returned slice and its items must not be mutated.
func (s *Store) Snapshot() []types.EvidenceItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Get returns the item with the given id, if present.
func (s *Store) Get(id string) (types.EvidenceItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return types.EvidenceItem{}, false
	}
	return s.items[idx], true
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Replace atomically swaps the store contents. Items are re-sorted by
// ingestion time (then id, for a stable order) so snapshot order is
// deterministic.
func (s *Store) Replace(items []types.EvidenceItem) {
	sorted := make([]types.EvidenceItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].IngestedAt.Equal(sorted[j].IngestedAt) {
			return sorted[i].IngestedAt.Before(sorted[j].IngestedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	byID := make(map[string]int, len(sorted))
	for i, item := range sorted {
		byID[item.ID] = i
	}

	s.mu.Lock()
	s.items = sorted
	s.byID = byID
	s.mu.Unlock()
}

// now is stubbed in tests.
var now = time.Now
