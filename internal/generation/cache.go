package generation

import (
	"context"
	"sync"
)

// Cache stores completed results keyed by a hash of the raw prompt.
// Entries persist for the lifetime of the cache; there is no eviction.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Put(ctx context.Context, key string, res Result)
}

// MemoryCache is the in-process cache. The worker is the only writer,
// but callers probe it concurrently, so reads take the lock too.
type MemoryCache struct {
	mutex   sync.RWMutex
	entries map[string]Result
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Result),
	}
}

// Get returns the cached result for key, if any.
func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	res, ok := c.entries[key]
	return res, ok
}

// Put stores a result under key, replacing any previous entry.
func (c *MemoryCache) Put(_ context.Context, key string, res Result) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = res
}

// Len reports how many results are cached.
func (c *MemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
