package app

import (
	"sync"

	"jspack/internal/engine/resolver"
)

// buildCache collects the resolutions of one build on top of the shared
// cache. Nothing reaches the shared cache until commit, so an aborted build
// leaves it untouched.
type buildCache struct {
	shared resolver.Cache

	mu    sync.Mutex
	local map[resolver.CacheKey]resolver.CacheEntry
	order []resolver.CacheKey
}

func newBuildCache(shared resolver.Cache) *buildCache {
	return &buildCache{shared: shared, local: make(map[resolver.CacheKey]resolver.CacheEntry)}
}

func (c *buildCache) Get(key resolver.CacheKey) (resolver.CacheEntry, bool) {
	c.mu.Lock()
	e, ok := c.local[key]
	c.mu.Unlock()
	if ok {
		return e, true
	}
	return c.shared.Get(key)
}

func (c *buildCache) Set(key resolver.CacheKey, entry resolver.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.local[key]; !ok {
		c.order = append(c.order, key)
	}
	c.local[key] = entry
}

func (c *buildCache) Invalidate(path string) int {
	return c.shared.Invalidate(path)
}

func (c *buildCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shared.Len() + len(c.local)
}

func (c *buildCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = make(map[resolver.CacheKey]resolver.CacheEntry)
	c.order = nil
}

// commit copies the build's resolutions into the shared cache in the order
// they were made.
func (c *buildCache) commit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.order {
		c.shared.Set(key, c.local[key])
	}
	return len(c.order)
}
