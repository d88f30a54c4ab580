package config

import (
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"jspack/internal/core/errors"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads dir/.env into the process environment. Variables already
// set win over the file. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "load .env"), errors.CtxPath, path)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: JSPACK_[SECTION]_[KEY] (e.g., JSPACK_BUNDLE_MINIFY).
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Paths.ProjectRoot, "JSPACK_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.CacheDir, "JSPACK_PATHS_CACHE_DIR")

	setEnvList(&cfg.Resolve.Conditions, "JSPACK_RESOLVE_CONDITIONS")
	setEnvList(&cfg.Resolve.Extensions, "JSPACK_RESOLVE_EXTENSIONS")
	setEnvBool(&cfg.Resolve.PreserveSymlinks, "JSPACK_RESOLVE_PRESERVE_SYMLINKS")

	setEnvList(&cfg.Bundle.Entry, "JSPACK_BUNDLE_ENTRY")
	setEnvString(&cfg.Bundle.OutFile, "JSPACK_BUNDLE_OUT_FILE")
	setEnvString(&cfg.Bundle.Format, "JSPACK_BUNDLE_FORMAT")
	setEnvString(&cfg.Bundle.GlobalName, "JSPACK_BUNDLE_GLOBAL_NAME")
	setEnvBool(&cfg.Bundle.Sourcemap, "JSPACK_BUNDLE_SOURCEMAP")
	setEnvBool(&cfg.Bundle.Minify, "JSPACK_BUNDLE_MINIFY")
	setEnvBoolPtr(&cfg.Bundle.ScopeHoist, "JSPACK_BUNDLE_SCOPE_HOIST")
	setEnvString(&cfg.Bundle.Unresolved, "JSPACK_BUNDLE_UNRESOLVED")
	setEnvString(&cfg.Bundle.Platform, "JSPACK_BUNDLE_PLATFORM")
	setEnvList(&cfg.Bundle.External, "JSPACK_BUNDLE_EXTERNAL")

	setEnvInt(&cfg.Cache.ResolveEntries, "JSPACK_CACHE_RESOLVE_ENTRIES")
	setEnvBool(&cfg.Cache.Persist, "JSPACK_CACHE_PERSIST")
	setEnvString(&cfg.Cache.Path, "JSPACK_CACHE_PATH")

	setEnvDuration(&cfg.Watch.Debounce, "JSPACK_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.RebuildRate, "JSPACK_WATCH_REBUILD_RATE")

	setEnvBool(&cfg.Observability.Enabled, "JSPACK_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "JSPACK_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "JSPACK_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "JSPACK_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "JSPACK_OBSERVABILITY_ENABLE_METRICS")

	setEnvInt(&cfg.Performance.Workers, "JSPACK_PERFORMANCE_WORKERS")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.Split(val, ",")
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.ToLower(val)); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
