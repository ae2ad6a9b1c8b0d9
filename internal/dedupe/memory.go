package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultSize = 4096

// MemoryDedupe keeps the most recent ids in a bounded LRU. Entries also
// expire after ttl when ttl > 0.
type MemoryDedupe struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryDedupe(size int, ttl time.Duration) *MemoryDedupe {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl < 0 {
		ttl = 0
	}
	return &MemoryDedupe{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (m *MemoryDedupe) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cache.Get(id); ok {
		return true, nil
	}
	m.cache.Add(id, struct{}{})
	return false, nil
}

// Len returns the number of tracked ids.
func (m *MemoryDedupe) Len() int {
	return m.cache.Len()
}
