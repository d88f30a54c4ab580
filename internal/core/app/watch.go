package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"jspack/internal/core/config"
	"jspack/internal/core/ports"
	"jspack/internal/core/watcher"
	"jspack/internal/shared/observability"
	"jspack/internal/shared/util"

	"github.com/gobwas/glob"
)

// Run is the watch daemon. It builds every entry once, then rebuilds after
// each debounced batch of source changes. Rebuilds are throttled by
// watch.rebuild_rate; batches arriving while a rebuild waits are merged into
// it. A config reload restarts the file watcher and the limiter with the new
// settings. Run returns when ctx is done.
func (a *App) Run(ctx context.Context) error {
	cfg := a.currentConfig()
	changes := make(chan []string, 16)
	w, err := a.startWatcher(ctx, cfg, changes)
	if err != nil {
		return err
	}
	defer func() { w.Close() }()

	reloads := make(chan *config.Config, 1)
	if a.ConfigPath != "" {
		cw := config.NewWatcher(a.ConfigPath, func(next *config.Config) {
			select {
			case reloads <- next:
			default:
			}
		})
		if err := cw.Start(ctx); err != nil {
			slog.Warn("config file will not be reloaded", "path", a.ConfigPath, "error", err)
		} else {
			defer cw.Stop()
		}
	}

	limiter := newRebuildLimiter(cfg)
	slog.Info("watching for changes", "paths", a.Paths.WatchPaths, "entries", cfg.Bundle.Entry)
	a.rebuild(ctx, nil, nil, false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case next := <-reloads:
			a.UpdateConfig(next)
			if nw, err := a.startWatcher(ctx, next, changes); err != nil {
				slog.Warn("file watcher keeps its previous settings", "error", err)
			} else {
				w.Close()
				w = nw
			}
			limiter = newRebuildLimiter(next)
			a.rebuild(ctx, []string{a.ConfigPath}, nil, false)
		case paths := <-changes:
			paths = drainChanges(paths, changes)
			throttled := false
			if !limiter.Allow(1) {
				throttled = true
				observability.RebuildsThrottledTotal.Inc()
				slog.Debug("rebuild throttled", "changed", len(paths))
				if err := limiter.Wait(ctx, 1); err != nil {
					return nil
				}
				paths = drainChanges(paths, changes)
			}
			affected := a.Bundler.Invalidate(paths)
			a.rebuild(ctx, paths, affected, throttled)
		}
	}
}

// startWatcher watches the project with the debounce and excludes of cfg,
// sending each batch to changes.
func (a *App) startWatcher(ctx context.Context, cfg *config.Config, changes chan<- []string) (*watcher.Watcher, error) {
	w, err := watcher.NewWatcher(watcher.Options{
		Debounce:     cfg.Watch.Debounce,
		ExcludeDirs:  cfg.Exclude.Dirs,
		ExcludeFiles: append(a.outputNames(cfg), cfg.Exclude.Files...),
		Extensions:   a.Bundler.SupportedExtensions(),
		Filenames:    []string{"package.json"},
	}, func(paths []string) {
		select {
		case changes <- paths:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	if err := w.Watch(a.Paths.WatchPaths); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func newRebuildLimiter(cfg *config.Config) *util.Limiter {
	return util.NewLimiter(cfg.Watch.RebuildRate, max(cfg.Watch.RebuildBurst, 1))
}

// outputNames lists the base names of files a build writes, so the daemon
// does not react to its own output.
func (a *App) outputNames(cfg *config.Config) []string {
	var names []string
	for _, entry := range cfg.Bundle.Entry {
		out := a.outFileFor(cfg, entry)
		if out == "" {
			continue
		}
		names = append(names,
			glob.QuoteMeta(filepath.Base(out)),
			glob.QuoteMeta(filepath.Base(out)+".map"),
			glob.QuoteMeta(filepath.Base(cssPathFor(out))))
	}
	return names
}

func (a *App) rebuild(ctx context.Context, changed, affected []string, throttled bool) {
	if ctx.Err() != nil {
		return
	}
	if len(changed) > 0 {
		slog.Info("detected changes", "count", len(changed), "affected_modules", len(affected))
	}
	summaries, err := a.BuildAll(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		slog.Warn("rebuild finished with errors", "error", err)
	}
	a.emitUpdate(ports.WatchUpdate{
		Changed:   changed,
		Affected:  affected,
		Builds:    summaries,
		Throttled: throttled,
		Timestamp: time.Now().UTC(),
	})
}

// drainChanges merges every batch already queued into paths.
func drainChanges(paths []string, ch <-chan []string) []string {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	for {
		select {
		case more := <-ch:
			for _, p := range more {
				set[p] = true
			}
		default:
			out := make([]string, 0, len(set))
			for p := range set {
				out = append(out, p)
			}
			sort.Strings(out)
			return out
		}
	}
}
