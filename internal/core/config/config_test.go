package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jspack/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[resolve]
conditions = ["development"]
extensions = ["ts", ".js"]

[resolve.aliases]
"@app" = "./src"

[bundle]
entry = ["src/index.ts"]
out_file = "dist/app.js"
format = "IIFE"
global_name = "app"
sourcemap = true
scope_hoist = false
platform = "node"
external = ["react"]

[watch]
debounce = "250ms"
rebuild_rate = 2.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, []string{"development"}, cfg.Resolve.Conditions)
	assert.Equal(t, []string{".ts", ".js"}, cfg.Resolve.Extensions)
	assert.Equal(t, "./src", cfg.Resolve.Aliases["@app"])
	assert.Equal(t, []string{"src/index.ts"}, cfg.Bundle.Entry)
	assert.Equal(t, "iife", cfg.Bundle.Format)
	assert.Equal(t, "app", cfg.Bundle.GlobalName)
	assert.True(t, cfg.Bundle.Sourcemap)
	assert.False(t, cfg.Bundle.ScopeHoistEnabled())
	assert.Equal(t, "node", cfg.Bundle.Platform)
	assert.Equal(t, "error", cfg.Bundle.Unresolved)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 2.5, cfg.Watch.RebuildRate)
	assert.Equal(t, 4096, cfg.Cache.ResolveEntries)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "esm", cfg.Bundle.Format)
	assert.Equal(t, "browser", cfg.Bundle.Platform)
	assert.True(t, cfg.Bundle.ScopeHoistEnabled())
	assert.Equal(t, ".jspack", cfg.Paths.CacheDir)
	assert.Equal(t, "cache.db", cfg.Cache.Path)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{"."}, cfg.Watch.Paths)
	assert.Contains(t, cfg.Exclude.Dirs, "node_modules")
	require.NoError(t, Validate(cfg))
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "esm", cfg.Bundle.Format)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[bundle]\nminfy = true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
	assert.Contains(t, err.Error(), "bundle.minfy")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"format", func(c *Config) { c.Bundle.Format = "amd" }, "bundle.format must be one of"},
		{"platform", func(c *Config) { c.Bundle.Platform = "deno" }, "bundle.platform must be one of"},
		{"unresolved", func(c *Config) { c.Bundle.Unresolved = "ignore" }, "bundle.unresolved must be one of"},
		{"global name syntax", func(c *Config) { c.Bundle.Format = "iife"; c.Bundle.GlobalName = "my-lib" }, "not a valid identifier"},
		{"global name format", func(c *Config) { c.Bundle.GlobalName = "lib" }, "requires bundle.format=iife"},
		{"import condition", func(c *Config) { c.Resolve.Conditions = []string{"import"} }, `must not list "import"`},
		{"exclude glob", func(c *Config) { c.Exclude.Files = []string{"[a"} }, "invalid exclude pattern"},
		{"tracing", func(c *Config) { c.Observability.EnableTracing = true }, "requires observability.otlp_endpoint"},
		{"version", func(c *Config) { c.Version = 3 }, "unsupported config version 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JSPACK_BUNDLE_MINIFY", "true")
	t.Setenv("JSPACK_BUNDLE_SCOPE_HOIST", "false")
	t.Setenv("JSPACK_BUNDLE_EXTERNAL", "react, react-dom")
	t.Setenv("JSPACK_CACHE_RESOLVE_ENTRIES", "not-a-number")
	t.Setenv("JSPACK_WATCH_DEBOUNCE", "2s")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	assert.True(t, cfg.Bundle.Minify)
	assert.False(t, cfg.Bundle.ScopeHoistEnabled())
	assert.Equal(t, []string{"react", "react-dom"}, cfg.Bundle.External)
	assert.Equal(t, 4096, cfg.Cache.ResolveEntries)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JSPACK_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("JSPACK_TEST_DOTENV") })
	require.NoError(t, LoadDotEnv(dir))
	assert.Equal(t, "loaded", os.Getenv("JSPACK_TEST_DOTENV"))
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte("{}"), 0o644))
	nested := filepath.Join(root, "src", "app")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg := Default()
	cfg.Bundle.OutFile = "dist/out.js"
	cfg.Watch.Paths = []string{"src"}

	resolved, err := ResolvePaths(cfg, nested)
	require.NoError(t, err)
	assert.Equal(t, root, resolved.ProjectRoot)
	assert.Equal(t, filepath.Join(root, ".jspack"), resolved.CacheDir)
	assert.Equal(t, filepath.Join(root, ".jspack", "cache.db"), resolved.CachePath)
	assert.Equal(t, filepath.Join(root, "dist", "out.js"), resolved.OutFile)
	assert.Equal(t, []string{filepath.Join(root, "src")}, resolved.WatchPaths)

	cfg.Paths.ProjectRoot = "/srv/project"
	resolved, err = ResolvePaths(cfg, nested)
	require.NoError(t, err)
	assert.Equal(t, "/srv/project", resolved.ProjectRoot)

	_, err = ResolvePaths(cfg, " ")
	require.Error(t, err)
}

func TestResolveRelative(t *testing.T) {
	assert.Equal(t, "/base", ResolveRelative("/base", ""))
	assert.Equal(t, "/abs/x", ResolveRelative("/base", "/abs/x"))
	assert.Equal(t, "/base/rel/x", ResolveRelative("/base", "rel/./x"))
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[bundle]\nminify = false\n")
	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[bundle]\nminify = true\n"), 0o644))
	select {
	case cfg := <-reloaded:
		assert.True(t, cfg.Bundle.Minify)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
