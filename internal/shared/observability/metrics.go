package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jspack_parsing_seconds",
		Help:    "Time spent parsing and scanning a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"loader"})

	ResolveCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_resolve_cache_hits_total",
		Help: "Resolve calls answered from the resolve cache.",
	})

	ResolveCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_resolve_cache_misses_total",
		Help: "Resolve calls computed from the filesystem.",
	})

	ResolveCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_resolve_cache_invalidations_total",
		Help: "Resolve cache entries dropped by invalidation.",
	})

	ManifestReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jspack_manifest_reloads_total",
		Help: "package.json reads, labelled by reason (cold, stamp).",
	}, []string{"reason"})

	GraphModules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jspack_graph_modules",
		Help: "Modules in the most recent module graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jspack_graph_edges",
		Help: "Resolved import edges in the most recent module graph.",
	})

	ModulesBuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_modules_built_total",
		Help: "Modules loaded and parsed across all builds.",
	})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jspack_phase_seconds",
		Help:    "Time spent in a bundling phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	BundlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jspack_bundles_total",
		Help: "Bundle invocations by outcome.",
	}, []string{"outcome"})

	EliminatedStatements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_eliminated_statements_total",
		Help: "Top-level statements removed by tree shaking.",
	})

	EmittedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jspack_emitted_bytes_total",
		Help: "Bytes written by the emitter, labelled by asset (js, css, map).",
	}, []string{"asset"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	RebuildsThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jspack_rebuilds_throttled_total",
		Help: "Rebuilds delayed by the rebuild rate limiter.",
	})
)
