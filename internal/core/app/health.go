package app

import (
	"context"
	"fmt"
	"time"

	"jspack/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

// Check reports "degraded" when the last rebuild failed or persistence was
// requested but the store could not be opened.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
	if err := ctx.Err(); err != nil {
		status.Status = "down"
		status.Components["context"] = err.Error()
		return status
	}

	last := s.app.LastUpdate()
	switch {
	case last.Timestamp.IsZero():
		status.Components["builds"] = "pending"
	case last.Failed():
		status.Status = "degraded"
		status.Components["builds"] = fmt.Sprintf("failing (%d entries, last at %s)", len(last.Builds), last.Timestamp.Format(time.RFC3339))
	default:
		status.Components["builds"] = fmt.Sprintf("ok (%d entries, last at %s)", len(last.Builds), last.Timestamp.Format(time.RFC3339))
	}

	cfg := s.app.currentConfig()
	if c := s.app.Bundler.SharedCache(s.app.Paths.ProjectRoot, OptionsFromConfig(cfg)); c != nil {
		status.Components["resolve_cache"] = fmt.Sprintf("ok (%d entries)", c.Len())
	} else {
		status.Components["resolve_cache"] = "disabled"
	}

	switch {
	case s.app.store != nil:
		status.Components["cache_store"] = "ok"
	case cfg.Cache.Persist:
		status.Status = "degraded"
		status.Components["cache_store"] = "missing but enabled in config"
	}

	status.Components["heap_mb"] = fmt.Sprintf("%d", util.GetHeapAllocMB())
	return status
}
