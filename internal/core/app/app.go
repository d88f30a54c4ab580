package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jspack/internal/core/config"
	"jspack/internal/core/errors"
	"jspack/internal/core/ports"
	"jspack/internal/data/cachestore"
	"jspack/internal/engine/resolver"

	"github.com/google/uuid"
)

// App runs the configured entries through a Bundler and owns the
// persistent cache.
type App struct {
	Config  *config.Config
	Paths   config.ResolvedPaths
	Bundler *Bundler
	// ConfigPath is reloaded by the watch daemon when it changes.
	ConfigPath string

	store  *cachestore.Store
	writer *cachestore.Writer

	cfgMu    sync.RWMutex
	updateMu sync.RWMutex
	onUpdate func(ports.WatchUpdate)

	lastMu   sync.RWMutex
	lastSeen ports.WatchUpdate
}

var (
	_ ports.BuildService = (*App)(nil)
	_ ports.WatchService = (*App)(nil)
)

// New resolves the configured paths against cwd and, when cache.persist is
// set, opens the persistent cache and warms the resolve cache from it.
func New(cfg *config.Config, cwd string) (*App, error) {
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config: cfg,
		Paths:  paths,
		Bundler: NewBundler(BundlerConfig{
			CacheEntries: cfg.Cache.ResolveEntries,
			Workers:      cfg.Performance.Workers,
		}),
	}
	if cfg.Cache.Persist {
		if err := a.openStore(); err != nil {
			slog.Warn("persistent cache unavailable, starting cold", "path", paths.CachePath, "error", err)
		}
	}
	return a, nil
}

func (a *App) openStore() error {
	cfg := a.currentConfig()
	key := Fingerprint(a.Paths.ProjectRoot, OptionsFromConfig(cfg))
	store, err := cachestore.Open(a.Paths.CachePath, key, cfg.Cache.BusyTimeout)
	if err != nil && cachestore.IsCorruptError(err) {
		slog.Warn("persistent cache is corrupt, recreating", "path", a.Paths.CachePath, "error", err)
		_ = os.Remove(a.Paths.CachePath)
		store, err = cachestore.Open(a.Paths.CachePath, key, cfg.Cache.BusyTimeout)
	}
	if err != nil {
		return err
	}
	a.store = store
	a.writer = cachestore.NewWriter(store, cachestore.WriterConfig{
		BatchSize:     cfg.Cache.BatchSize,
		FlushInterval: cfg.Cache.FlushInterval,
	})
	a.warm()
	return nil
}

func (a *App) warm() {
	entries, stale, err := a.store.LoadEntries(a.Bundler.FS())
	if err != nil {
		slog.Warn("failed to load persistent cache", "error", err)
		return
	}
	seed := make(map[resolver.CacheKey]resolver.CacheEntry, len(entries))
	for _, e := range entries {
		seed[e.Key] = e.CacheEntry()
	}
	n := a.Bundler.Warm(a.Paths.ProjectRoot, OptionsFromConfig(a.currentConfig()), seed)
	slog.Info("resolve cache warmed", "entries", n, "stale", stale, "path", a.store.Path())
}

// Store returns the persistent cache, or nil when persistence is off.
func (a *App) Store() *cachestore.Store { return a.store }

// Flush writes the committed resolutions of the configured options to the
// persistent cache.
func (a *App) Flush() error {
	if a.writer == nil {
		return nil
	}
	snapshot := a.Bundler.Snapshot(a.Paths.ProjectRoot, OptionsFromConfig(a.currentConfig()))
	fsys := a.Bundler.FS()
	for key, ce := range snapshot {
		if e, ok := cachestore.NewEntry(fsys, key, ce); ok {
			a.writer.Submit(e)
		}
	}
	return a.writer.Flush()
}

// Close flushes and closes the persistent cache.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	flushErr := a.Flush()
	closeErr := a.writer.Close()
	storeErr := a.store.Close()
	for _, err := range []error{flushErr, closeErr, storeErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) currentConfig() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.Config
}

// UpdateConfig swaps the configuration used by later builds. Paths keep
// pointing at the original project.
func (a *App) UpdateConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	a.Config = cfg
	a.cfgMu.Unlock()
	slog.Info("configuration updated", "entries", len(cfg.Bundle.Entry))
}

// BuildAll bundles every configured entry and writes the outputs. Entries
// are built in order; a failing entry does not stop the others.
func (a *App) BuildAll(ctx context.Context) ([]ports.BuildSummary, error) {
	cfg := a.currentConfig()
	if len(cfg.Bundle.Entry) == 0 {
		return nil, errors.New(errors.CodeValidationError, "no entry configured: set bundle.entry or pass entries on the command line")
	}
	summaries := make([]ports.BuildSummary, 0, len(cfg.Bundle.Entry))
	var firstErr error
	for _, entry := range cfg.Bundle.Entry {
		if err := ctx.Err(); err != nil {
			return summaries, errors.Wrap(err, errors.CodeCanceled, "build canceled")
		}
		summary := a.BuildEntry(ctx, cfg, entry)
		if summary.Err != nil && firstErr == nil {
			firstErr = summary.Err
		}
		summaries = append(summaries, summary)
	}
	return summaries, firstErr
}

// BuildEntry bundles one entry, writes its outputs and records the build.
func (a *App) BuildEntry(ctx context.Context, cfg *config.Config, entry string) ports.BuildSummary {
	opts := OptionsFromConfig(cfg)
	outFile := a.outFileFor(cfg, entry)
	if outFile != "" {
		opts.OutFile = filepath.Base(outFile)
	}
	summary := ports.BuildSummary{Entry: entry, OutFile: outFile}

	result, err := a.Bundler.Bundle(ctx, entry, a.Paths.ProjectRoot, opts)
	if err != nil {
		summary.Err = err
		a.record(summary)
		return summary
	}
	summary.BuildID = result.BuildID
	summary.Modules = len(result.Modules)
	summary.CodeBytes = len(result.Code)
	summary.MapBytes = len(result.Map)
	summary.CSSBytes = len(result.CSS)
	summary.Eliminated = result.Stats.Eliminated
	summary.Duration = result.Duration
	summary.Diagnostics = result.Warnings

	if outFile != "" {
		if _, err := WriteOutputs(outFile, result); err != nil {
			summary.Err = err
		}
	}
	a.record(summary)
	return summary
}

// outFileFor derives one output per entry: bundle.out_file as given for a
// single entry, or <dir of out_file>/<entry name>.js for several.
func (a *App) outFileFor(cfg *config.Config, entry string) string {
	if cfg.Bundle.OutFile == "" {
		return ""
	}
	out := config.ResolveRelative(a.Paths.ProjectRoot, cfg.Bundle.OutFile)
	if len(cfg.Bundle.Entry) <= 1 {
		return out
	}
	base := strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
	return filepath.Join(filepath.Dir(out), base+".js")
}

func (a *App) record(summary ports.BuildSummary) {
	if a.store == nil {
		return
	}
	rec := cachestore.BuildRecord{
		BuildID:   summary.BuildID,
		Entry:     summary.Entry,
		Timestamp: time.Now().UTC(),
		Duration:  summary.Duration,
		Modules:   summary.Modules,
		CodeBytes: summary.CodeBytes,
		CSSBytes:  summary.CSSBytes,
		Warnings:  len(summary.Diagnostics),
		Status:    "ok",
	}
	if summary.Err != nil {
		rec.Status = "failed"
		rec.Error = summary.Err.Error()
		if errors.IsCode(summary.Err, errors.CodeCanceled) {
			rec.Status = "canceled"
		}
	}
	if rec.BuildID == "" {
		rec.BuildID = uuid.NewString()
	}
	if err := a.store.RecordBuild(rec); err != nil {
		slog.Warn("failed to record build", "entry", summary.Entry, "error", err)
	}
}

func (a *App) Subscribe(handler func(ports.WatchUpdate)) {
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	a.onUpdate = handler
}

func (a *App) emitUpdate(update ports.WatchUpdate) {
	a.lastMu.Lock()
	a.lastSeen = update
	a.lastMu.Unlock()

	a.updateMu.RLock()
	handler := a.onUpdate
	a.updateMu.RUnlock()
	if handler != nil {
		handler(update)
	}
}

// LastUpdate returns the most recent watch update.
func (a *App) LastUpdate() ports.WatchUpdate {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	return a.lastSeen
}
