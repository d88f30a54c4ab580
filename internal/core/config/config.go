package config

import "time"

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "jspack.toml"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Resolve       Resolve       `toml:"resolve"`
	Bundle        Bundle        `toml:"bundle"`
	Cache         Cache         `toml:"cache"`
	Watch         Watch         `toml:"watch"`
	Exclude       Exclude       `toml:"exclude"`
	Observability Observability `toml:"observability"`
	Performance   Performance   `toml:"performance"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	CacheDir    string `toml:"cache_dir"`
}

type Resolve struct {
	Conditions []string          `toml:"conditions"`
	Extensions []string          `toml:"extensions"`
	MainFields []string          `toml:"main_fields"`
	Aliases    map[string]string `toml:"aliases"`
	// PreserveSymlinks keeps symlinked paths instead of their real targets.
	PreserveSymlinks bool `toml:"preserve_symlinks"`
}

type Bundle struct {
	Entry      []string `toml:"entry"`
	OutFile    string   `toml:"out_file"`
	Format     string   `toml:"format"`
	GlobalName string   `toml:"global_name"`
	Sourcemap  bool     `toml:"sourcemap"`
	Minify     bool     `toml:"minify"`
	ScopeHoist *bool    `toml:"scope_hoist"`
	Unresolved string   `toml:"unresolved"`
	Platform   string   `toml:"platform"`
	External   []string `toml:"external"`
}

type Cache struct {
	ResolveEntries int  `toml:"resolve_entries"`
	Persist        bool `toml:"persist"`
	// Path is relative to paths.cache_dir unless absolute.
	Path          string        `toml:"path"`
	BusyTimeout   time.Duration `toml:"busy_timeout"`
	BatchSize     int           `toml:"batch_size"`
	FlushInterval time.Duration `toml:"flush_interval"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	// RebuildRate caps rebuilds per second; RebuildBurst allows short spikes.
	RebuildRate  float64  `toml:"rebuild_rate"`
	RebuildBurst int      `toml:"rebuild_burst"`
	Paths        []string `toml:"paths"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Port          int    `toml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
	ServiceName   string `toml:"service_name"`
}

type Performance struct {
	Workers int `toml:"workers"`
}

// ScopeHoistEnabled defaults to true when the key is absent.
func (b Bundle) ScopeHoistEnabled() bool {
	if b.ScopeHoist == nil {
		return true
	}
	return *b.ScopeHoist
}
