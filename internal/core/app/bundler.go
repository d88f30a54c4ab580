// Package app wires the bundling pipeline to configuration, caches and the
// watch daemon.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"jspack/internal/core/errors"
	"jspack/internal/engine/emit"
	"jspack/internal/engine/graph"
	"jspack/internal/engine/hoist"
	"jspack/internal/engine/parser"
	"jspack/internal/engine/resolver"
	"jspack/internal/engine/shaker"
	"jspack/internal/shared/observability"
	"jspack/internal/shared/util"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// BundleOptions selects how one entry is bundled.
type BundleOptions struct {
	Minify     bool
	Sourcemap  bool
	ScopeHoist bool
	Conditions []string
	Extensions []string
	MainFields []string
	// UnresolvedPolicy is "error" (default) or "external".
	UnresolvedPolicy string
	Platform         string
	External         []string
	Aliases          map[string]string
	PreserveSymlinks bool
	Format           string
	GlobalName       string
	// OutFile names the bundle inside its source map.
	OutFile string
}

// BundleResult is the output of one successful build.
type BundleResult struct {
	BuildID  string
	Code     []byte
	Map      []byte
	CSS      []byte
	Modules  []string
	Warnings []errors.Diagnostic
	Stats    shaker.Stats
	Duration time.Duration
}

// Bundler runs builds against shared resolve and manifest caches. One
// Bundler serves many builds, concurrently or in sequence.
type Bundler struct {
	fsys      resolver.FS
	parser    *parser.Parser
	manifests *resolver.ManifestCache
	cacheSize int
	workers   int

	mu     sync.Mutex
	caches map[string]*resolver.LRUCache
	// gen advances on every invalidation; a build that started under an
	// older generation does not commit its resolutions.
	gen uint64
	// graphs holds the last committed graph per workspace and entry.
	graphs map[string]*graph.Graph
}

type BundlerConfig struct {
	FS resolver.FS
	// CacheEntries bounds each resolve cache. Zero disables resolve caching.
	CacheEntries int
	Workers      int
}

func NewBundler(cfg BundlerConfig) *Bundler {
	fsys := cfg.FS
	if fsys == nil {
		fsys = resolver.OSFS{}
	}
	return &Bundler{
		fsys:      fsys,
		parser:    parser.NewParser(parser.NewGrammarLoader(nil)),
		manifests: resolver.NewManifestCache(fsys),
		cacheSize: cfg.CacheEntries,
		workers:   cfg.Workers,
		caches:    make(map[string]*resolver.LRUCache),
		graphs:    make(map[string]*graph.Graph),
	}
}

// Fingerprint identifies the resolver-relevant part of opts for a workspace.
// Builds with equal fingerprints share one resolve cache.
func Fingerprint(workspaceRoot string, opts BundleOptions) string {
	aliases := make([]string, 0, len(opts.Aliases))
	for _, k := range util.SortedStringKeys(opts.Aliases) {
		aliases = append(aliases, k+"="+opts.Aliases[k])
	}
	parts := []string{
		filepath.Clean(workspaceRoot),
		opts.Platform,
		strings.Join(opts.Conditions, ","),
		strings.Join(opts.Extensions, ","),
		strings.Join(opts.MainFields, ","),
		strings.Join(opts.External, ","),
		strings.Join(aliases, ","),
	}
	if opts.PreserveSymlinks {
		parts = append(parts, "preserve-symlinks")
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "\x00")))
}

// SharedCache returns the resolve cache builds with this fingerprint use,
// creating it on first use. It returns nil when caching is disabled.
func (b *Bundler) SharedCache(workspaceRoot string, opts BundleOptions) *resolver.LRUCache {
	if b.cacheSize <= 0 {
		return nil
	}
	key := Fingerprint(workspaceRoot, opts)
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.caches[key]; ok {
		return c
	}
	c, err := resolver.NewLRUCache(b.cacheSize)
	if err != nil {
		slog.Warn("resolve cache disabled", "error", err)
		return nil
	}
	b.caches[key] = c
	return c
}

func resolverOptions(workspaceRoot string, opts BundleOptions) resolver.Options {
	return resolver.Options{
		Conditions:       opts.Conditions,
		Extensions:       opts.Extensions,
		MainFields:       opts.MainFields,
		Platform:         opts.Platform,
		Aliases:          opts.Aliases,
		External:         opts.External,
		WorkspaceRoot:    workspaceRoot,
		PreserveSymlinks: opts.PreserveSymlinks,
	}
}

// newResolver returns a resolver for one build plus the overlay holding its
// uncommitted resolutions.
func (b *Bundler) newResolver(workspaceRoot string, opts BundleOptions) (*resolver.Resolver, *buildCache) {
	var shared resolver.Cache = resolver.NullCache{}
	if c := b.SharedCache(workspaceRoot, opts); c != nil {
		shared = c
	}
	overlay := newBuildCache(shared)
	return resolver.New(b.fsys, b.manifests, overlay, resolverOptions(workspaceRoot, opts)), overlay
}

func (b *Bundler) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// BuildGraph builds and shakes the module graph of entry without emitting.
func (b *Bundler) BuildGraph(ctx context.Context, entry, workspaceRoot string, opts BundleOptions) (*graph.Graph, shaker.Stats, []errors.Diagnostic, error) {
	g, overlay, gen, err := b.buildGraph(ctx, entry, workspaceRoot, opts)
	if err != nil {
		return nil, shaker.Stats{}, nil, err
	}
	stats, warnings, err := shaker.Shake(ctx, g)
	if err != nil {
		return nil, shaker.Stats{}, nil, err
	}
	b.commit(overlay, gen, graphKey(workspaceRoot, entry), g)
	return g, stats, mergeDiagnostics(g.Diagnostics, warnings), nil
}

func (b *Bundler) buildGraph(ctx context.Context, entry, workspaceRoot string, opts BundleOptions) (*graph.Graph, *buildCache, uint64, error) {
	if strings.TrimSpace(entry) == "" {
		return nil, nil, 0, errors.New(errors.CodeValidationError, "entry must not be empty")
	}
	policy := graph.UnresolvedPolicy(opts.UnresolvedPolicy)
	switch policy {
	case "", graph.UnresolvedError, graph.UnresolvedExternal:
	default:
		return nil, nil, 0, errors.Newf(errors.CodeValidationError, "unknown unresolved policy %q", opts.UnresolvedPolicy)
	}
	gen := b.generation()
	res, overlay := b.newResolver(workspaceRoot, opts)
	g, err := graph.NewBuilder(b.fsys, res, b.parser, graph.Options{Workers: b.workers, Unresolved: policy}).
		Build(ctx, workspaceRoot, []string{entry})
	if err != nil {
		return nil, nil, 0, err
	}
	return g, overlay, gen, nil
}

// commit publishes a finished build's resolutions unless an invalidation
// happened while it ran.
func (b *Bundler) commit(overlay *buildCache, gen uint64, key string, g *graph.Graph) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		slog.Debug("discarding resolutions of a build overtaken by invalidation", "generation", gen)
		return
	}
	n := overlay.commit()
	if g != nil {
		b.graphs[key] = g
	}
	slog.Debug("resolve cache updated", "entries", n)
}

// Bundle builds entry, relative to workspaceRoot, into a single bundle.
// A cancelled or failed build leaves every cache as it found it.
func (b *Bundler) Bundle(ctx context.Context, entry, workspaceRoot string, opts BundleOptions) (*BundleResult, error) {
	buildID := uuid.NewString()
	start := time.Now()
	ctx, end := observability.StartPhase(ctx, "bundle",
		attribute.String("build_id", buildID),
		attribute.String("entry", entry))
	defer end()

	format := emit.Format(strings.ToLower(opts.Format))
	if format == "" {
		format = emit.FormatESM
	}
	if format != emit.FormatESM && format != emit.FormatIIFE {
		observability.BundlesTotal.WithLabelValues("failed").Inc()
		return nil, errors.Newf(errors.CodeValidationError, "unknown output format %q", opts.Format)
	}

	result, err := b.bundle(ctx, entry, workspaceRoot, opts, format)
	if err != nil {
		outcome := "failed"
		if ctx.Err() != nil || errors.IsCode(err, errors.CodeCanceled) {
			outcome = "canceled"
		}
		observability.BundlesTotal.WithLabelValues(outcome).Inc()
		slog.Warn("bundle failed", "build_id", buildID, "entry", entry, "error", err)
		return nil, err
	}
	result.BuildID = buildID
	result.Duration = time.Since(start)
	observability.BundlesTotal.WithLabelValues("ok").Inc()
	slog.Info("bundle complete",
		"build_id", buildID,
		"entry", entry,
		"modules", len(result.Modules),
		"bytes", len(result.Code),
		"warnings", len(result.Warnings),
		"duration", result.Duration)
	return result, nil
}

func (b *Bundler) bundle(ctx context.Context, entry, workspaceRoot string, opts BundleOptions, format emit.Format) (*BundleResult, error) {
	g, overlay, gen, err := b.buildGraph(ctx, entry, workspaceRoot, opts)
	if err != nil {
		return nil, err
	}
	stats, warnings, err := shaker.Shake(ctx, g)
	if err != nil {
		return nil, err
	}
	plan, err := hoist.Build(ctx, g, g.EmissionOrder(), hoist.Options{Flatten: opts.ScopeHoist})
	if err != nil {
		return nil, err
	}
	out, err := emit.Emit(ctx, g, plan, emit.Options{
		Format:     format,
		Minify:     opts.Minify,
		Sourcemap:  opts.Sourcemap,
		GlobalName: opts.GlobalName,
		Root:       workspaceRoot,
		OutFile:    opts.OutFile,
		Workers:    b.workers,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "build canceled")
	}
	b.commit(overlay, gen, graphKey(workspaceRoot, entry), g)

	return &BundleResult{
		Code:     out.Code,
		Map:      out.SourceMap,
		CSS:      out.CSS,
		Modules:  out.Modules,
		Warnings: mergeDiagnostics(g.Diagnostics, warnings),
		Stats:    stats,
	}, nil
}

func mergeDiagnostics(sets ...[]errors.Diagnostic) []errors.Diagnostic {
	var out []errors.Diagnostic
	for _, set := range sets {
		out = append(out, set...)
	}
	errors.SortDiagnostics(out)
	return out
}

// Resolve resolves one specifier the way a build would. With trace set the
// caches are bypassed and every step is recorded.
func (b *Bundler) Resolve(fromDir, specifier, workspaceRoot string, opts BundleOptions, trace bool) (resolver.Result, *resolver.Trace) {
	rc := resolver.Context{Dir: fromDir, Importer: filepath.Join(fromDir, "<resolve>"), Specifier: specifier}
	if trace {
		res := resolver.New(b.fsys, b.manifests, nil, resolverOptions(workspaceRoot, opts))
		tr := res.Trace(rc)
		return tr.Result, tr
	}
	gen := b.generation()
	res, overlay := b.newResolver(workspaceRoot, opts)
	result := res.Resolve(rc)
	b.commit(overlay, gen, "", nil)
	return result, nil
}

// Invalidate drops cached state derived from the changed paths and returns
// the modules of the last build that must be rebuilt: the changed files
// themselves and everything importing them.
func (b *Bundler) Invalidate(paths []string) []string {
	b.mu.Lock()
	b.gen++
	caches := make([]*resolver.LRUCache, 0, len(b.caches))
	for _, c := range b.caches {
		caches = append(caches, c)
	}
	graphs := make([]*graph.Graph, 0, len(b.graphs))
	for _, g := range b.graphs {
		graphs = append(graphs, g)
	}
	b.mu.Unlock()

	affected := make(map[string]bool)
	dropped := 0
	for _, path := range paths {
		path = filepath.Clean(path)
		for _, c := range caches {
			dropped += c.Invalidate(path)
		}
		if filepath.Base(path) == "package.json" {
			b.manifests.Invalidate(path)
		}
		for _, g := range graphs {
			for _, p := range g.AffectedBy(path) {
				affected[p] = true
			}
		}
	}
	if dropped > 0 {
		observability.ResolveCacheEvictions.Add(float64(dropped))
	}

	out := make([]string, 0, len(affected))
	for p := range affected {
		out = append(out, p)
	}
	sort.Strings(out)
	slog.Debug("caches invalidated", "paths", len(paths), "resolve_entries", dropped, "affected_modules", len(out))
	return out
}

// Warm seeds the resolve cache of a fingerprint, typically from the
// persistent store.
func (b *Bundler) Warm(workspaceRoot string, opts BundleOptions, entries map[resolver.CacheKey]resolver.CacheEntry) int {
	c := b.SharedCache(workspaceRoot, opts)
	if c == nil {
		return 0
	}
	for k, e := range entries {
		c.Set(k, e)
	}
	return len(entries)
}

// Snapshot returns the committed resolutions of a fingerprint.
func (b *Bundler) Snapshot(workspaceRoot string, opts BundleOptions) map[resolver.CacheKey]resolver.CacheEntry {
	c := b.SharedCache(workspaceRoot, opts)
	if c == nil {
		return nil
	}
	out := make(map[resolver.CacheKey]resolver.CacheEntry, c.Len())
	for _, k := range c.Keys() {
		if e, ok := c.Peek(k); ok {
			out[k] = e
		}
	}
	return out
}

func graphKey(workspaceRoot, entry string) string {
	return filepath.Clean(workspaceRoot) + "\x00" + entry
}

// LastGraph returns the graph of the most recent committed build of entry.
func (b *Bundler) LastGraph(entry, workspaceRoot string) *graph.Graph {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.graphs[graphKey(workspaceRoot, entry)]
}

func (b *Bundler) FS() resolver.FS { return b.fsys }

// SupportedExtensions lists the file extensions the parser loads.
func (b *Bundler) SupportedExtensions() []string { return b.parser.SupportedExtensions() }
