package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"jspack/internal/core/errors"
	"jspack/internal/engine/resolver"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

var scenario = map[string]string{
	"index.js": "import { a } from './lib.js';\nconsole.log(a);\n",
	"lib.js":   "export const a = 1;\nexport const b = 2;\n",
}

func nodeOptions() BundleOptions {
	return BundleOptions{Platform: "node"}
}

func TestBundleWrappedKeepsBothModules(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64, Workers: 2})

	res, err := b.Bundle(context.Background(), "index.js", root, nodeOptions())
	require.NoError(t, err)

	assert.Len(t, res.Modules, 2)
	assert.Equal(t, filepath.Join(root, "lib.js"), res.Modules[0])
	assert.Equal(t, filepath.Join(root, "index.js"), res.Modules[1])
	assert.NotContains(t, string(res.Code), "const b")
	assert.Contains(t, string(res.Code), "const a = 1;")
	assert.Positive(t, res.Stats.Eliminated)
	_, err = uuid.Parse(res.BuildID)
	assert.NoError(t, err)
	assert.Nil(t, res.Map)
}

func TestBundleScopeHoisted(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	opts := nodeOptions()
	opts.ScopeHoist = true
	opts.Sourcemap = true
	res, err := b.Bundle(context.Background(), "index.js", root, opts)
	require.NoError(t, err)
	assert.Equal(t, "const a = 1;\nconsole.log(a);\n", string(res.Code))
	assert.NotEmpty(t, res.Map)
}

func TestBundleRejectsBadOptions(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{})

	opts := nodeOptions()
	opts.Format = "amd"
	_, err := b.Bundle(context.Background(), "index.js", root, opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	opts = nodeOptions()
	opts.UnresolvedPolicy = "ignore"
	_, err = b.Bundle(context.Background(), "index.js", root, opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	_, err = b.Bundle(context.Background(), " ", root, nodeOptions())
	require.Error(t, err)
}

func TestFailedBuildLeavesCacheUntouched(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.js": "import { a } from './missing.js';\nconsole.log(a);\n",
	})
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	_, err := b.Bundle(context.Background(), "index.js", root, nodeOptions())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedImport))
	assert.Equal(t, 0, b.SharedCache(root, nodeOptions()).Len())
}

func TestUnresolvedExternalPolicy(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.js": "import { a } from './missing.js';\nconsole.log(a);\n",
	})
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	opts := nodeOptions()
	opts.UnresolvedPolicy = "external"
	res, err := b.Bundle(context.Background(), "index.js", root, opts)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, errors.CodeUnresolvedImport, res.Warnings[0].Code)
	assert.Contains(t, string(res.Code), "./missing.js")
}

func TestCanceledBuildLeavesCacheUntouched(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Bundle(ctx, "index.js", root, nodeOptions())
	require.Error(t, err)
	assert.Equal(t, 0, b.SharedCache(root, nodeOptions()).Len())
	assert.Nil(t, b.LastGraph("index.js", root))
}

func TestSuccessfulBuildCommitsResolutions(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	_, err := b.Bundle(context.Background(), "index.js", root, nodeOptions())
	require.NoError(t, err)
	assert.Positive(t, b.SharedCache(root, nodeOptions()).Len())
	assert.NotNil(t, b.LastGraph("index.js", root))

	// Different resolver options use a separate cache.
	other := nodeOptions()
	other.Conditions = []string{"development"}
	assert.Equal(t, 0, b.SharedCache(root, other).Len())
}

func TestInvalidateReturnsAffectedModules(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})
	_, err := b.Bundle(context.Background(), "index.js", root, nodeOptions())
	require.NoError(t, err)

	lib := filepath.Join(root, "lib.js")
	affected := b.Invalidate([]string{lib})
	assert.Equal(t, []string{filepath.Join(root, "index.js"), lib}, affected)
	assert.Equal(t, 0, b.SharedCache(root, nodeOptions()).Len())

	assert.Empty(t, b.Invalidate([]string{filepath.Join(root, "unrelated", "x.js")}))
}

func TestRebuildSeesEdits(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})
	opts := nodeOptions()
	opts.ScopeHoist = true

	_, err := b.Bundle(context.Background(), "index.js", root, opts)
	require.NoError(t, err)

	lib := filepath.Join(root, "lib.js")
	require.NoError(t, os.WriteFile(lib, []byte("export const a = 42;\n"), 0o644))
	b.Invalidate([]string{lib})

	res, err := b.Bundle(context.Background(), "index.js", root, opts)
	require.NoError(t, err)
	assert.Equal(t, "const a = 42;\nconsole.log(a);\n", string(res.Code))
}

func TestCommitSkippedAfterInvalidation(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	gen := b.generation()
	res, overlay := b.newResolver(root, nodeOptions())
	result := res.Resolve(resolver.Context{Dir: root, Specifier: "./lib.js"})
	require.IsType(t, resolver.Resolved{}, result)

	b.Invalidate([]string{filepath.Join(root, "lib.js")})
	b.commit(overlay, gen, "", nil)
	assert.Equal(t, 0, b.SharedCache(root, nodeOptions()).Len())

	b.commit(overlay, b.generation(), "", nil)
	assert.Equal(t, 1, b.SharedCache(root, nodeOptions()).Len())
}

func TestResolveAndTrace(t *testing.T) {
	root := writeTree(t, scenario)
	b := NewBundler(BundlerConfig{CacheEntries: 64})

	result, tr := b.Resolve(root, "./lib", root, nodeOptions(), false)
	assert.Nil(t, tr)
	assert.Equal(t, resolver.Resolved{Path: filepath.Join(root, "lib.js"), Kind: resolver.KindRelative}, result)
	assert.Equal(t, 1, b.SharedCache(root, nodeOptions()).Len())

	result, tr = b.Resolve(root, "./nope", root, nodeOptions(), true)
	require.NotNil(t, tr)
	assert.IsType(t, resolver.NotFound{}, result)
	assert.NotEmpty(t, tr.Steps)
}

func TestWarmAndSnapshot(t *testing.T) {
	b := NewBundler(BundlerConfig{CacheEntries: 8})
	key := resolver.CacheKey{Dir: "/p", Specifier: "./a", Conditions: "import,node"}
	entry := resolver.CacheEntry{Result: resolver.Resolved{Path: "/p/a.js", Kind: resolver.KindRelative}}

	n := b.Warm("/p", nodeOptions(), map[resolver.CacheKey]resolver.CacheEntry{key: entry})
	assert.Equal(t, 1, n)
	snap := b.Snapshot("/p", nodeOptions())
	assert.Equal(t, entry, snap[key])

	disabled := NewBundler(BundlerConfig{})
	assert.Equal(t, 0, disabled.Warm("/p", nodeOptions(), map[resolver.CacheKey]resolver.CacheEntry{key: entry}))
	assert.Nil(t, disabled.Snapshot("/p", nodeOptions()))
}

func TestFingerprint(t *testing.T) {
	a := BundleOptions{Platform: "node", Aliases: map[string]string{"@a": "./a", "@b": "./b"}}
	b := BundleOptions{Platform: "node", Aliases: map[string]string{"@b": "./b", "@a": "./a"}}
	assert.Equal(t, Fingerprint("/p", a), Fingerprint("/p", b))
	assert.Len(t, Fingerprint("/p", a), 16)

	b.Minify = true
	assert.Equal(t, Fingerprint("/p", a), Fingerprint("/p", b))
	b.Platform = "browser"
	assert.NotEqual(t, Fingerprint("/p", a), Fingerprint("/p", b))
	assert.NotEqual(t, Fingerprint("/p", a), Fingerprint("/q", a))
}

func TestBuildCacheOverlay(t *testing.T) {
	shared := resolver.NullCache{}
	c := newBuildCache(shared)
	key := resolver.CacheKey{Dir: "/p", Specifier: "x"}
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, resolver.CacheEntry{Result: resolver.NotFound{Reason: "r"}})
	c.Set(key, resolver.CacheEntry{Result: resolver.NotFound{Reason: "r2"}})
	e, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, resolver.NotFound{Reason: "r2"}, e.Result)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.commit())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
