package store

import (
	"context"
	"slices"
	"sync"
)

// DefaultMemoryEntries is the default capacity of the memory cache.
const DefaultMemoryEntries = 1024

type inMemory struct {
	mu         sync.RWMutex
	maxEntries int
	storage    map[string][]float64
	// keys in insertion order, for eviction
	order []string
}

// NewMemoryScoreCache returns a process local cache holding up to maxEntries keys.
// When full, the oldest key is evicted.
func NewMemoryScoreCache(maxEntries int) ScoreCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	return &inMemory{
		maxEntries: maxEntries,
	}
}

func (m *inMemory) Get(_ context.Context, key string) ([]float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil, false, nil
	}
	scores, ok := m.storage[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(scores), true, nil
}

func (m *inMemory) Put(_ context.Context, key string, scores []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]float64)
	}
	if _, ok := m.storage[key]; !ok {
		if len(m.order) >= m.maxEntries {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.storage, oldest)
		}
		m.order = append(m.order, key)
	}
	m.storage[key] = slices.Clone(scores)
	return nil
}

func (m *inMemory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage = nil
	m.order = nil
	return nil
}
