package config

import (
	"os"
	"path/filepath"
	"strings"

	"jspack/internal/core/errors"
)

type ResolvedPaths struct {
	ProjectRoot string
	CacheDir    string
	CachePath   string
	OutFile     string
	WatchPaths  []string
}

// ResolvePaths makes every configured path absolute. Relative paths are taken
// from the project root, which itself defaults to the nearest directory above
// cwd holding a package.json, a jspack.toml or a .git directory.
func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, errors.New(errors.CodeValidationError, "cwd must not be empty")
	}

	projectRoot := cfg.Paths.ProjectRoot
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		root, err := DetectProjectRoot(cwd)
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = root
	}

	cacheDir := ResolveRelative(projectRoot, cfg.Paths.CacheDir)
	resolved := ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		CacheDir:    cacheDir,
		CachePath:   ResolveRelative(cacheDir, cfg.Cache.Path),
	}
	if cfg.Bundle.OutFile != "" {
		resolved.OutFile = ResolveRelative(projectRoot, cfg.Bundle.OutFile)
	}
	for _, p := range cfg.Watch.Paths {
		resolved.WatchPaths = append(resolved.WatchPaths, ResolveRelative(projectRoot, p))
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from start looking for a root marker and falls
// back to start itself.
func DetectProjectRoot(start string) (string, error) {
	markers := []string{DefaultFile, "package.json", ".git"}

	abs, err := filepath.Abs(start)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidationError, "resolve project root")
	}
	root := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		root = filepath.Dir(abs)
	}
	for dir := root; ; {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return filepath.Clean(dir), nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Clean(root), nil
}
