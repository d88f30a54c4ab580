package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"jspack/internal/core/errors"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML file, fills defaults, applies JSPACK_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read config"), errors.CtxPath, path)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "decode config"), errors.CtxPath, path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.AddContext(errors.Newf(errors.CodeValidationError, "unknown config keys: %s", strings.Join(keys, ", ")), errors.CtxPath, path)
	}
	return finish(&cfg)
}

// LoadOrDefault behaves like Load but falls back to the defaults when path
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		return finish(&Config{})
	}
	return Load(path)
}

// Default returns the configuration used when no file is present. Environment
// overrides are not applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	normalize(cfg)
	return cfg
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	ApplyEnvOverrides(cfg)
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		cfg.Paths.CacheDir = ".jspack"
	}

	if strings.TrimSpace(cfg.Bundle.Format) == "" {
		cfg.Bundle.Format = "esm"
	}
	if strings.TrimSpace(cfg.Bundle.Platform) == "" {
		cfg.Bundle.Platform = "browser"
	}
	if strings.TrimSpace(cfg.Bundle.Unresolved) == "" {
		cfg.Bundle.Unresolved = "error"
	}
	if cfg.Bundle.ScopeHoist == nil {
		enabled := true
		cfg.Bundle.ScopeHoist = &enabled
	}

	if cfg.Cache.ResolveEntries <= 0 {
		cfg.Cache.ResolveEntries = 4096
	}
	if strings.TrimSpace(cfg.Cache.Path) == "" {
		cfg.Cache.Path = "cache.db"
	}
	if cfg.Cache.BusyTimeout <= 0 {
		cfg.Cache.BusyTimeout = 5 * time.Second
	}
	if cfg.Cache.BatchSize <= 0 {
		cfg.Cache.BatchSize = 256
	}
	if cfg.Cache.FlushInterval <= 0 {
		cfg.Cache.FlushInterval = time.Second
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 100 * time.Millisecond
	}
	if cfg.Watch.RebuildRate <= 0 {
		cfg.Watch.RebuildRate = 4
	}
	if cfg.Watch.RebuildBurst <= 0 {
		cfg.Watch.RebuildBurst = 1
	}
	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = []string{"."}
	}
	if cfg.Exclude.Dirs == nil {
		cfg.Exclude.Dirs = []string{".git", ".jspack", "node_modules"}
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "jspack"
	}
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	cfg.Paths.CacheDir = strings.TrimSpace(cfg.Paths.CacheDir)
	cfg.Bundle.Format = strings.ToLower(strings.TrimSpace(cfg.Bundle.Format))
	cfg.Bundle.Platform = strings.ToLower(strings.TrimSpace(cfg.Bundle.Platform))
	cfg.Bundle.Unresolved = strings.ToLower(strings.TrimSpace(cfg.Bundle.Unresolved))
	cfg.Bundle.OutFile = strings.TrimSpace(cfg.Bundle.OutFile)
	cfg.Bundle.GlobalName = strings.TrimSpace(cfg.Bundle.GlobalName)
	cfg.Bundle.Entry = trimAll(cfg.Bundle.Entry)
	cfg.Bundle.External = trimAll(cfg.Bundle.External)
	cfg.Resolve.Conditions = trimAll(cfg.Resolve.Conditions)
	cfg.Resolve.MainFields = trimAll(cfg.Resolve.MainFields)
	for i, ext := range cfg.Resolve.Extensions {
		ext = strings.TrimSpace(ext)
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Resolve.Extensions[i] = ext
	}
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
