package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jspack/internal/core/app"
	"jspack/internal/core/config"
	"jspack/internal/core/ports"
	"jspack/internal/shared/observability"
	"jspack/internal/ui/report"
	"jspack/internal/ui/watchui"

	"github.com/spf13/cobra"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		ui    bool
		flags bundleFlags
	)
	cmd := &cobra.Command{
		Use:   "watch [entries...]",
		Short: "Rebuild every entry when sources change",
		Long: `Build every entry, then watch the project and rebuild after each batch of
changes. Edits to the config file are picked up without a restart. With
observability enabled, /health and /metrics are served on observability.port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := root.newApp(func(cfg *config.Config) {
				if len(args) > 0 {
					cfg.Bundle.Entry = args
				}
				flags.apply(cmd, cfg)
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					slog.Warn("failed to close persistent cache", "error", err)
				}
			}()

			stop, err := startObservability(ctx, a)
			if err != nil {
				return err
			}
			defer stop()

			if ui {
				return watchui.Run(ctx, a, a.Paths.ProjectRoot)
			}
			return runPlainWatch(ctx, cmd, a)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&ui, "ui", false, "show an interactive terminal view; logs go to a file")
	return cmd
}

// runPlainWatch prints a build report after every rebuild.
func runPlainWatch(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	out := cmd.OutOrStdout()
	a.Subscribe(func(u ports.WatchUpdate) {
		if len(u.Changed) > 0 {
			fmt.Fprintf(out, "\n%s: %d changed, %d affected\n", u.Timestamp.Local().Format("15:04:05"), len(u.Changed), len(u.Affected))
		}
		fmt.Fprint(out, report.RenderBuilds(a.Paths.ProjectRoot, u.Builds))
		if err := a.Flush(); err != nil {
			slog.Warn("failed to flush persistent cache", "error", err)
		}
	})
	return a.Run(ctx)
}

// startObservability installs tracing and the health server as configured.
// The returned func releases both.
func startObservability(ctx context.Context, a *app.App) (func(), error) {
	obs := a.Config.Observability
	var stops []func(context.Context) error

	if obs.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			Endpoint:    obs.OTLPEndpoint,
			Insecure:    obs.OTLPInsecure,
			ServiceName: obs.ServiceName,
		})
		if err != nil {
			return nil, err
		}
		stops = append(stops, shutdown)
	}

	if obs.Enabled {
		srv := NewObservabilityServer(fmt.Sprintf(":%d", obs.Port), obs.EnableMetrics, app.NewHealthService(a))
		if err := srv.Start(ctx); err != nil {
			for _, stop := range stops {
				_ = stop(context.Background())
			}
			return nil, err
		}
		stops = append(stops, srv.Stop)
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](shutdownCtx); err != nil {
				slog.Warn("observability shutdown failed", "error", err)
			}
		}
	}, nil
}
