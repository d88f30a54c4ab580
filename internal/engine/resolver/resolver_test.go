package resolver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"jspack/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under root; keys are slash-separated relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func fixtureProject(t *testing.T) string {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"package.json":     `{"name": "app", "imports": {"#util": "./src/util.ts", "#dep": "cond-pkg"}}`,
		"src/index.ts":     "",
		"src/util.ts":      "",
		"src/lib/index.js": "",
		"src/both.ts":      "",
		"src/both.js":      "",
		"src/emitted.ts":   "",
		"node_modules/cond-pkg/package.json": `{
  "name": "cond-pkg",
  "exports": {
    ".": {"browser": "./browser.js", "import": "./esm.js", "require": "./cjs.js", "default": "./fallback.js"},
    "./feature/*": "./features/*.js",
    "./feature/internal/*": null,
    "./list": ["./missing.js", "./list.js"]
  }
}`,
		"node_modules/cond-pkg/browser.js":      "",
		"node_modules/cond-pkg/esm.js":          "",
		"node_modules/cond-pkg/cjs.js":          "",
		"node_modules/cond-pkg/fallback.js":     "",
		"node_modules/cond-pkg/features/a.js":   "",
		"node_modules/cond-pkg/list.js":         "",
		"node_modules/legacy/package.json":      `{"name": "legacy", "main": "lib/main"}`,
		"node_modules/legacy/lib/main.js":       "",
		"node_modules/legacy/util.js":           "",
		"node_modules/bare-pkg/index.js":        "",
		"node_modules/@scope/pkg/package.json":  `{"name": "@scope/pkg", "module": "./esm/index.mjs", "main": "./cjs/index.js"}`,
		"node_modules/@scope/pkg/esm/index.mjs": "",
		"node_modules/@scope/pkg/cjs/index.js":  "",
	})
	return root
}

func TestResolveTable(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	r := New(nil, nil, nil, Options{Platform: "node", WorkspaceRoot: root})

	tests := []struct {
		name      string
		specifier string
		kind      ImportKind
		wantPath  string
		wantKind  Kind
		wantCode  errors.ErrorCode
	}{
		{"relative with extension probing", "./util", ImportESM, "src/util.ts", KindRelative, ""},
		{"directory index", "./lib", ImportESM, "src/lib/index.js", KindDirectory, ""},
		{"ts source for js specifier", "./emitted.js", ImportESM, "src/emitted.ts", KindRelative, ""},
		{"exports import condition", "cond-pkg", ImportESM, "node_modules/cond-pkg/esm.js", KindExportsMap, ""},
		{"exports require condition", "cond-pkg", ImportRequire, "node_modules/cond-pkg/cjs.js", KindExportsMap, ""},
		{"exports pattern", "cond-pkg/feature/a", ImportESM, "node_modules/cond-pkg/features/a.js", KindExportsMap, ""},
		{"exports array first valid", "cond-pkg/list", ImportESM, "node_modules/cond-pkg/missing.js", "", errors.CodeUnresolvedImport},
		{"exports fail closed", "cond-pkg/esm.js", ImportESM, "", "", errors.CodeExportsNotDeclared},
		{"exports null blocks", "cond-pkg/feature/internal/x", ImportESM, "", "", errors.CodeExportsNotDeclared},
		{"main field with extension", "legacy", ImportESM, "node_modules/legacy/lib/main.js", KindMainField, ""},
		{"deep import without exports", "legacy/util", ImportESM, "node_modules/legacy/util.js", KindRelative, ""},
		{"index fallback", "bare-pkg", ImportESM, "node_modules/bare-pkg/index.js", KindIndexFallback, ""},
		{"module field preferred", "@scope/pkg", ImportESM, "node_modules/@scope/pkg/esm/index.mjs", KindMainField, ""},
		{"imports map", "#util", ImportESM, "src/util.ts", KindImportsMap, ""},
		{"imports map bare target", "#dep", ImportESM, "node_modules/cond-pkg/esm.js", KindExportsMap, ""},
		{"undeclared hash", "#nope", ImportESM, "", "", errors.CodeExportsNotDeclared},
		{"missing package", "left-pad", ImportESM, "", "", errors.CodeUnresolvedImport},
		{"missing relative", "./nope", ImportESM, "", "", errors.CodeUnresolvedImport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(Context{Importer: importer, Specifier: tt.specifier, Kind: tt.kind})
			if tt.wantCode != "" {
				nf, ok := res.(NotFound)
				require.True(t, ok, "expected NotFound, got %s", res)
				assert.Equal(t, tt.wantCode, nf.Code)
				return
			}
			got, ok := res.(Resolved)
			require.True(t, ok, "expected Resolved, got %s", res)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.wantPath)), got.Path)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestResolveAbsoluteSpecifier(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	r := New(nil, nil, nil, Options{Platform: "node"})

	res := r.Resolve(Context{Importer: importer, Specifier: filepath.ToSlash(filepath.Join(root, "src", "util"))})
	assert.Equal(t, Resolved{Path: filepath.Join(root, "src", "util.ts"), Kind: KindAbsolute}, res)

	res = r.Resolve(Context{Importer: importer, Specifier: filepath.ToSlash(filepath.Join(root, "src", "lib"))})
	assert.Equal(t, Resolved{Path: filepath.Join(root, "src", "lib", "index.js"), Kind: KindDirectory}, res)
}

func TestResolveBrowserPlatform(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	r := New(nil, nil, nil, Options{Platform: "browser"})

	res := r.Resolve(Context{Importer: importer, Specifier: "cond-pkg"})
	assert.Equal(t, filepath.Join(root, "node_modules", "cond-pkg", "browser.js"), ResultPath(res))

	res = r.Resolve(Context{Importer: importer, Specifier: "node:fs"})
	nf, ok := res.(NotFound)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnresolvedImport, nf.Code)
}

func TestResolveBuiltinsAndExternals(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	r := New(nil, nil, nil, Options{Platform: "node", External: []string{"react"}})

	for _, spec := range []string{"fs", "node:path", "react", "react/jsx-runtime", "https://cdn.example/x.js"} {
		res := r.Resolve(Context{Importer: importer, Specifier: spec})
		got, ok := res.(Resolved)
		require.True(t, ok, spec)
		assert.True(t, got.IsExternal(), spec)
		assert.Equal(t, spec, got.Path)
	}
}

func TestResolveAlias(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	r := New(nil, nil, nil, Options{
		Platform:      "node",
		WorkspaceRoot: root,
		Aliases:       map[string]string{"@app": "./src", "compat": "cond-pkg"},
	})

	assert.Equal(t, filepath.Join(root, "src", "util.ts"), ResultPath(r.Resolve(Context{Importer: importer, Specifier: "@app/util"})))
	assert.Equal(t, filepath.Join(root, "node_modules", "cond-pkg", "esm.js"), ResultPath(r.Resolve(Context{Importer: importer, Specifier: "compat"})))
}

func TestResolveSelfReference(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"package.json": `{"name": "self", "exports": {"./tools": "./src/tools.js"}}`,
		"src/main.js":  "",
		"src/tools.js": "",
	})
	r := New(nil, nil, nil, Options{Platform: "node"})
	res := r.Resolve(Context{Importer: filepath.Join(root, "src", "main.js"), Specifier: "self/tools"})
	assert.Equal(t, filepath.Join(root, "src", "tools.js"), ResultPath(res))
}

func TestResolveWorkspaces(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"package.json":                `{"name": "mono", "workspaces": ["packages/*", "apps/*"]}`,
		"packages/ui/package.json":    `{"name": "@mono/ui", "exports": "./index.js"}`,
		"packages/ui/index.js":        "",
		"packages/dup-a/package.json": `{"name": "dup"}`,
		"packages/dup-a/index.js":     "",
		"apps/dup-b/package.json":     `{"name": "dup"}`,
		"apps/dup-b/index.js":         "",
		"apps/web/src/main.js":        "",
	})
	r := New(nil, nil, nil, Options{Platform: "node", WorkspaceRoot: root})
	importer := filepath.Join(root, "apps", "web", "src", "main.js")

	res := r.Resolve(Context{Importer: importer, Specifier: "@mono/ui"})
	assert.Equal(t, filepath.Join(root, "packages", "ui", "index.js"), ResultPath(res))

	res = r.Resolve(Context{Importer: importer, Specifier: "dup"})
	amb, ok := res.(Ambiguous)
	require.True(t, ok, "expected Ambiguous, got %s", res)
	assert.Equal(t, []string{
		filepath.Join(root, "apps", "dup-b"),
		filepath.Join(root, "packages", "dup-a"),
	}, amb.Candidates)
}

func TestResolveCacheHitMatchesColdResolution(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	cache, err := NewLRUCache(64)
	require.NoError(t, err)
	warm := New(nil, nil, cache, Options{Platform: "node"})
	cold := New(nil, nil, nil, Options{Platform: "node"})

	for _, spec := range []string{"./util", "cond-pkg", "legacy", "./nope"} {
		ctx := Context{Importer: importer, Specifier: spec}
		first := warm.Resolve(ctx)
		second := warm.Resolve(ctx)
		assert.Equal(t, first, second, spec)
		assert.Equal(t, cold.Resolve(ctx), second, spec)
	}
	assert.Equal(t, 4, cache.Len())
}

func TestResolveInvalidateAfterManifestChange(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	cache, err := NewLRUCache(64)
	require.NoError(t, err)
	r := New(nil, nil, cache, Options{Platform: "node"})

	ctx := Context{Importer: importer, Specifier: "legacy"}
	assert.Equal(t, filepath.Join(root, "node_modules", "legacy", "lib", "main.js"), ResultPath(r.Resolve(ctx)))

	manifest := filepath.Join(root, "node_modules", "legacy", "package.json")
	writeTree(t, root, map[string]string{
		"node_modules/legacy/package.json": `{"name": "legacy", "exports": "./util.js"}`,
	})
	// Force a distinct stamp even on coarse mtime filesystems.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(manifest, future, future))

	assert.Greater(t, r.Invalidate(manifest), 0)
	assert.Equal(t, filepath.Join(root, "node_modules", "legacy", "util.js"), ResultPath(r.Resolve(ctx)))
}

func TestResolveInvalidateNewFileSatisfiesFailedLookup(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	cache, err := NewLRUCache(64)
	require.NoError(t, err)
	r := New(nil, nil, cache, Options{Platform: "node"})

	ctx := Context{Importer: importer, Specifier: "./later"}
	_, isNotFound := r.Resolve(ctx).(NotFound)
	require.True(t, isNotFound)

	writeTree(t, root, map[string]string{"src/later.js": ""})
	r.Invalidate(filepath.Join(root, "src", "later.js"))
	assert.Equal(t, filepath.Join(root, "src", "later.js"), ResultPath(r.Resolve(ctx)))
}

func TestTraceRecordsStepsAndWarnings(t *testing.T) {
	root := fixtureProject(t)
	importer := filepath.Join(root, "src", "index.ts")
	r := New(nil, nil, nil, Options{Platform: "node"})

	tr := r.Trace(Context{Importer: importer, Specifier: "./both"})
	require.NotNil(t, tr.Result)
	assert.Equal(t, filepath.Join(root, "src", "both.ts"), ResultPath(tr.Result))
	require.NotEmpty(t, tr.Warnings)
	assert.Equal(t, errors.CodeAmbiguousExtension, tr.Warnings[0].Code)

	tr = r.Trace(Context{Importer: importer, Specifier: "legacy"})
	var names []string
	for _, s := range tr.Steps {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, StepFindPackageDir)
	assert.Contains(t, names, StepMainField)
	require.NotEmpty(t, tr.Warnings)
	assert.Equal(t, errors.CodeDeprecatedMainOnly, tr.Warnings[0].Code)
}

func TestResolveFollowsSymlinks(t *testing.T) {
	root := tempRoot(t)
	writeTree(t, root, map[string]string{
		"store/real-pkg/package.json": `{"name": "linked", "main": "main.js"}`,
		"store/real-pkg/main.js":      "",
		"src/a.js":                    "",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	if err := os.Symlink(filepath.Join(root, "store", "real-pkg"), filepath.Join(root, "node_modules", "linked")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	importer := filepath.Join(root, "src", "a.js")

	r := New(nil, nil, nil, Options{Platform: "node"})
	assert.Equal(t, filepath.Join(root, "store", "real-pkg", "main.js"), ResultPath(r.Resolve(Context{Importer: importer, Specifier: "linked"})))

	r = New(nil, nil, nil, Options{Platform: "node", PreserveSymlinks: true})
	assert.Equal(t, filepath.Join(root, "node_modules", "linked", "main.js"), ResultPath(r.Resolve(Context{Importer: importer, Specifier: "linked"})))
}
