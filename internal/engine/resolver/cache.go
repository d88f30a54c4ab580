package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheKey identifies a resolution: importer directory, specifier and the
// canonical condition set.
type CacheKey struct {
	Dir        string
	Specifier  string
	Conditions string
}

// CacheEntry is a cached result plus the files it was derived from, so a
// change to any of them can drop it.
type CacheEntry struct {
	Result Result
	Deps   []string
}

// Cache is the capability the resolver needs from a resolve-result cache.
type Cache interface {
	Get(key CacheKey) (CacheEntry, bool)
	Set(key CacheKey, entry CacheEntry)
	// Invalidate drops every entry that a change to path could affect and
	// returns how many were removed.
	Invalidate(path string) int
	Len() int
	Purge()
}

// NullCache never stores anything.
type NullCache struct{}

func (NullCache) Get(CacheKey) (CacheEntry, bool) { return CacheEntry{}, false }
func (NullCache) Set(CacheKey, CacheEntry)        {}
func (NullCache) Invalidate(string) int           { return 0 }
func (NullCache) Len() int                        { return 0 }
func (NullCache) Purge()                          {}

// LRUCache is a bounded Cache backed by hashicorp/golang-lru.
type LRUCache struct {
	inner *lru.Cache[CacheKey, CacheEntry]
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 4096
	}
	inner, err := lru.New[CacheKey, CacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(key CacheKey) (CacheEntry, bool) { return c.inner.Get(key) }

func (c *LRUCache) Set(key CacheKey, entry CacheEntry) { c.inner.Add(key, entry) }

func (c *LRUCache) Len() int { return c.inner.Len() }

func (c *LRUCache) Purge() { c.inner.Purge() }

// Keys returns a snapshot of the cached keys, oldest first.
func (c *LRUCache) Keys() []CacheKey { return c.inner.Keys() }

// Peek reads an entry without updating recency.
func (c *LRUCache) Peek(key CacheKey) (CacheEntry, bool) { return c.inner.Peek(key) }

func (c *LRUCache) Invalidate(path string) int {
	removed := 0
	for _, key := range c.inner.Keys() {
		entry, ok := c.inner.Peek(key)
		if !ok {
			continue
		}
		if affectedBy(key, entry, path) {
			c.inner.Remove(key)
			removed++
		}
	}
	return removed
}

// affectedBy decides conservatively whether a change at path may alter the
// cached entry. Failed lookups are always dropped since any new file might
// satisfy them.
func affectedBy(key CacheKey, entry CacheEntry, path string) bool {
	dir := filepath.Dir(path)
	switch r := entry.Result.(type) {
	case Resolved:
		if r.Path == path || (!r.IsExternal() && filepath.Dir(r.Path) == dir) {
			return true
		}
	case NotFound, Ambiguous:
		return true
	}
	if key.Dir == dir || strings.HasPrefix(key.Dir, path+string(filepath.Separator)) {
		return true
	}
	for _, dep := range entry.Deps {
		if dep == path || strings.HasPrefix(dep, path+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func conditionKey(conds []string) string {
	sorted := append([]string(nil), conds...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
