package config

import (
	"fmt"
	"strings"

	"jspack/internal/core/errors"

	"github.com/gobwas/glob"
)

var (
	validFormats    = []string{"esm", "iife"}
	validPlatforms  = []string{"browser", "node", "neutral"}
	validUnresolved = []string{"error", "external"}
)

// Validate checks cross-field constraints and reports every problem found in
// a single validation error.
func Validate(cfg *Config) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if cfg.Version != 1 {
		add("unsupported config version %d; supported version is 1", cfg.Version)
	}
	if !oneOf(cfg.Bundle.Format, validFormats) {
		add("bundle.format must be one of: %s", strings.Join(validFormats, ", "))
	}
	if !oneOf(cfg.Bundle.Platform, validPlatforms) {
		add("bundle.platform must be one of: %s", strings.Join(validPlatforms, ", "))
	}
	if !oneOf(cfg.Bundle.Unresolved, validUnresolved) {
		add("bundle.unresolved must be one of: %s", strings.Join(validUnresolved, ", "))
	}
	if cfg.Bundle.GlobalName != "" && !isIdentifier(cfg.Bundle.GlobalName) {
		add("bundle.global_name %q is not a valid identifier", cfg.Bundle.GlobalName)
	}
	if cfg.Bundle.GlobalName != "" && cfg.Bundle.Format != "iife" {
		add("bundle.global_name requires bundle.format=iife")
	}

	for i, ext := range cfg.Resolve.Extensions {
		if ext == "" || ext == "." {
			add("resolve.extensions[%d] must not be empty", i)
		}
	}
	for from, to := range cfg.Resolve.Aliases {
		if strings.TrimSpace(from) == "" {
			add("resolve.aliases keys must not be empty")
		}
		if strings.TrimSpace(to) == "" {
			add("resolve.aliases.%s must not be empty", from)
		}
	}
	for _, cond := range cfg.Resolve.Conditions {
		if cond == "import" || cond == "require" {
			add("resolve.conditions must not list %q; it is selected per import", cond)
		}
	}

	if cfg.Cache.Persist && strings.TrimSpace(cfg.Cache.Path) == "" {
		add("cache.path must not be empty when cache.persist=true")
	}
	if cfg.Watch.Debounce < 0 {
		add("watch.debounce must not be negative")
	}
	for _, pattern := range append(append([]string(nil), cfg.Exclude.Dirs...), cfg.Exclude.Files...) {
		if _, err := glob.Compile(pattern); err != nil {
			add("invalid exclude pattern %q: %v", pattern, err)
		}
	}
	if cfg.Observability.Enabled && (cfg.Observability.Port <= 0 || cfg.Observability.Port > 65535) {
		add("observability.port must be between 1 and 65535, got %d", cfg.Observability.Port)
	}
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		add("observability.enable_tracing requires observability.otlp_endpoint")
	}
	if cfg.Performance.Workers < 0 {
		add("performance.workers must not be negative")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(errors.CodeValidationError, strings.Join(problems, "; "))
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
