package resolver

import (
	"log/slog"
	"sync"

	"jspack/internal/core/errors"
	"jspack/internal/shared/observability"
)

// ManifestCache holds parsed package.json files keyed by absolute path. Each
// entry carries the stamp it was read at; a stamp mismatch re-reads the file.
// It outlives single builds and is shared by every resolver of a daemon.
type ManifestCache struct {
	fs      FS
	mu      sync.RWMutex
	entries map[string]*manifestEntry
}

type manifestEntry struct {
	stamp Stamp
	pkg   *PackageJSON
	err   error
}

func NewManifestCache(fsys FS) *ManifestCache {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &ManifestCache{fs: fsys, entries: make(map[string]*manifestEntry)}
}

// Load returns the manifest at path, or (nil, nil) when no file exists. The
// returned value is shared and must not be modified.
func (c *ManifestCache) Load(path string) (*PackageJSON, error) {
	stamp, ok := StatStamp(c.fs, path)
	if !ok {
		c.mu.Lock()
		delete(c.entries, path)
		c.mu.Unlock()
		return nil, nil
	}

	c.mu.RLock()
	entry, found := c.entries[path]
	c.mu.RUnlock()
	if found && entry.stamp.Equal(stamp) {
		return entry.pkg, entry.err
	}

	reason := "cold"
	if found {
		reason = "stamp"
		slog.Debug("package.json changed on disk, reloading",
			"code", errors.CodeCacheInconsistency, "path", path)
	}
	observability.ManifestReloads.WithLabelValues(reason).Inc()

	next := &manifestEntry{stamp: stamp}
	data, err := c.fs.ReadFile(path)
	if err != nil {
		next.err = errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read package.json"), errors.CtxPath, path)
	} else {
		next.pkg, next.err = ParsePackageJSON(path, data)
		if next.pkg != nil {
			next.pkg.Stamp = stamp
		}
	}

	c.mu.Lock()
	c.entries[path] = next
	c.mu.Unlock()
	return next.pkg, next.err
}

// Invalidate drops the entry for path and reports whether one existed.
func (c *ManifestCache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	delete(c.entries, path)
	return ok
}

func (c *ManifestCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
