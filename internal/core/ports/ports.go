package ports

import (
	"context"
	"time"

	"jspack/internal/core/errors"
	"jspack/internal/data/cachestore"
)

// BuildHistory abstracts build record persistence for the history command.
type BuildHistory interface {
	RecordBuild(rec cachestore.BuildRecord) error
	RecentBuilds(limit int) ([]cachestore.BuildRecord, error)
}

// BuildSummary describes one finished build of one entry.
type BuildSummary struct {
	BuildID     string
	Entry       string
	OutFile     string
	Modules     int
	CodeBytes   int
	MapBytes    int
	CSSBytes    int
	Eliminated  int
	Duration    time.Duration
	Diagnostics []errors.Diagnostic
	Err         error
}

// WatchUpdate is what the daemon reports after each rebuild.
type WatchUpdate struct {
	Changed   []string
	Affected  []string
	Builds    []BuildSummary
	Throttled bool
	Timestamp time.Time
}

// Failed reports whether any build of the update failed.
func (u WatchUpdate) Failed() bool {
	for _, b := range u.Builds {
		if b.Err != nil {
			return true
		}
	}
	return false
}

// BuildService runs the configured entries once.
type BuildService interface {
	BuildAll(ctx context.Context) ([]BuildSummary, error)
}

// WatchService exposes the watch daemon lifecycle to driving adapters.
type WatchService interface {
	Run(ctx context.Context) error
	Subscribe(handler func(WatchUpdate))
}
