package cachestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"jspack/internal/engine/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, projectKey string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache", "cache.db"), projectKey, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type fixture struct {
	dir    string
	target string
	key    resolver.CacheKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	target := filepath.Join(src, "util.js")
	require.NoError(t, os.WriteFile(target, []byte("export const x = 1;\n"), 0o644))
	return fixture{
		dir:    dir,
		target: target,
		key:    resolver.CacheKey{Dir: dir, Specifier: "./src/util", Conditions: "browser,import"},
	}
}

func (f fixture) entry(t *testing.T) Entry {
	t.Helper()
	e, ok := NewEntry(resolver.OSFS{}, f.key, resolver.CacheEntry{
		Result: resolver.Resolved{Path: f.target, Kind: resolver.KindRelative},
		Deps:   []string{f.target},
	})
	require.True(t, ok)
	return e
}

func TestOpenValidatesPath(t *testing.T) {
	_, err := Open(" ", "", 0)
	require.Error(t, err)

	_, err = Open(t.TempDir(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestNewEntrySkipsFailures(t *testing.T) {
	_, ok := NewEntry(resolver.OSFS{}, resolver.CacheKey{Dir: "/x", Specifier: "y"}, resolver.CacheEntry{
		Result: resolver.NotFound{Reason: "missing"},
	})
	assert.False(t, ok)
}

func TestNewEntryStampsExternalKeyDirOnly(t *testing.T) {
	dir := t.TempDir()
	e, ok := NewEntry(resolver.OSFS{}, resolver.CacheKey{Dir: dir, Specifier: "react"}, resolver.CacheEntry{
		Result: resolver.Resolved{Path: "react", Kind: resolver.KindExternal},
	})
	require.True(t, ok)
	assert.Len(t, e.Stamps, 1)
	assert.True(t, e.Stamps[dir].Dir)
}

func TestSaveAndLoadEntries(t *testing.T) {
	store := openTestStore(t, "demo")
	f := newFixture(t)

	require.NoError(t, store.SaveEntries([]Entry{f.entry(t)}))
	// Saving again upserts rather than duplicating.
	require.NoError(t, store.SaveEntries([]Entry{f.entry(t)}))

	entries, stale, err := store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Equal(t, 0, stale)
	require.Len(t, entries, 1)
	assert.Equal(t, f.key, entries[0].Key)
	assert.Equal(t, f.target, entries[0].Result.Path)
	assert.Equal(t, resolver.KindRelative, entries[0].Result.Kind)
	assert.Equal(t, []string{f.target}, entries[0].Deps)

	ce := entries[0].CacheEntry()
	assert.Equal(t, resolver.Resolved{Path: f.target, Kind: resolver.KindRelative}, ce.Result)
}

func TestLoadEntriesDropsStale(t *testing.T) {
	store := openTestStore(t, "demo")
	f := newFixture(t)
	require.NoError(t, store.SaveEntries([]Entry{f.entry(t)}))

	require.NoError(t, os.WriteFile(f.target, []byte("export const x = 12345;\n"), 0o644))

	entries, stale, err := store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, stale)

	// The stale row was deleted.
	entries, stale, err = store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, stale)
}

func TestLoadEntriesDropsRemovedTarget(t *testing.T) {
	store := openTestStore(t, "demo")
	f := newFixture(t)
	require.NoError(t, store.SaveEntries([]Entry{f.entry(t)}))
	require.NoError(t, os.Remove(f.target))

	entries, stale, err := store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, stale)
}

func TestEntriesAreScopedByProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	a, err := Open(path, "a", time.Second)
	require.NoError(t, err)
	f := newFixture(t)
	require.NoError(t, a.SaveEntries([]Entry{f.entry(t)}))
	require.NoError(t, a.Close())

	b, err := Open(path, "b", time.Second)
	require.NoError(t, err)
	defer b.Close()
	entries, _, err := b.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClear(t *testing.T) {
	store := openTestStore(t, "")
	f := newFixture(t)
	require.NoError(t, store.SaveEntries([]Entry{f.entry(t)}))
	require.NoError(t, store.Clear())

	entries, _, err := store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordAndListBuilds(t *testing.T) {
	store := openTestStore(t, "demo")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordBuild(BuildRecord{
		BuildID: "b1", Entry: "src/index.ts", Timestamp: base,
		Duration: 1500 * time.Millisecond, Modules: 3, CodeBytes: 120, Status: "ok",
	}))
	require.NoError(t, store.RecordBuild(BuildRecord{
		BuildID: "b2", Entry: "src/index.ts", Timestamp: base.Add(time.Minute),
		Status: "failed", Error: "unresolved import", Warnings: 1,
	}))

	builds, err := store.RecentBuilds(10)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "b2", builds[0].BuildID)
	assert.Equal(t, "failed", builds[0].Status)
	assert.Equal(t, "unresolved import", builds[0].Error)
	assert.Equal(t, "b1", builds[1].BuildID)
	assert.Equal(t, 1500*time.Millisecond, builds[1].Duration)
	assert.Equal(t, 3, builds[1].Modules)
	assert.True(t, base.Equal(builds[1].Timestamp))

	builds, err = store.RecentBuilds(1)
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestWriterFlushAndClose(t *testing.T) {
	store := openTestStore(t, "demo")
	f := newFixture(t)

	w := NewWriter(store, WriterConfig{BatchSize: 10, FlushInterval: time.Hour})
	w.Submit(f.entry(t))
	require.NoError(t, w.Flush())

	entries, _, err := store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	other := f
	other.key.Specifier = "./src/util.js"
	w.Submit(other.entry(t))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.NoError(t, w.Flush())

	entries, _, err = store.LoadEntries(resolver.OSFS{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestIsCorruptError(t *testing.T) {
	assert.False(t, IsCorruptError(nil))
	assert.True(t, IsCorruptError(os.ErrInvalid))
	assert.False(t, IsCorruptError(os.ErrNotExist))
}
