package cli

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"jspack/internal/core/app"
	"jspack/internal/core/config"
	"jspack/internal/core/errors"
	"jspack/internal/core/ports"
	"jspack/internal/data/cachestore"
	"jspack/internal/ui/report"

	"github.com/spf13/cobra"
)

// cacheLocation resolves the cache database path and the project key the
// configured options are stored under.
func (o *rootOptions) cacheLocation() (string, string, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", "", nil, err
	}
	cfg, _, err := loadConfig(o.configPath, cwd)
	if err != nil {
		return "", "", nil, err
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return "", "", nil, err
	}
	return paths.CachePath, app.Fingerprint(paths.ProjectRoot, app.OptionsFromConfig(cfg)), cfg, nil
}

// openHistory opens the persistent cache without warming a resolver. The
// store is nil when no cache file exists yet.
func (o *rootOptions) openHistory() (*cachestore.Store, string, error) {
	path, key, cfg, err := o.cacheLocation()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		return nil, path, nil
	}
	store, err := cachestore.Open(path, key, cfg.Cache.BusyTimeout)
	return store, path, err
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent builds recorded in the persistent cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var render func([]cachestore.BuildRecord) ([]byte, error)
			switch format {
			case "text":
				render = func(r []cachestore.BuildRecord) ([]byte, error) { return []byte(report.RenderHistory(r)), nil }
			case "tsv":
				render = report.RenderHistoryTSV
			case "json":
				render = report.RenderHistoryJSON
			default:
				return errors.Newf(errors.CodeValidationError, "unknown history format %q", format)
			}

			store, path, err := root.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "no build history at %s; set cache.persist = true\n", path)
				return nil
			}
			defer store.Close()

			var history ports.BuildHistory = store
			records, err := history.RecentBuilds(limit)
			if err != nil {
				return err
			}
			out, err := render(records)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of builds to show")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, tsv or json")
	return cmd
}

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent resolve cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached resolution of this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, path, err := root.openHistory()
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to clear at %s\n", path)
				return nil
			}
			defer store.Close()
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the location of the cache database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, _, err := root.cacheLocation()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}
