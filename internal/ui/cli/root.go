package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"jspack/internal/core/app"
	"jspack/internal/core/config"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion records build metadata injected through ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
	cleanup    func()
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{cleanup: func() {}}

	root := &cobra.Command{
		Use:           "jspack",
		Short:         "jspack bundles JavaScript and TypeScript modules",
		Long:          `jspack resolves an entry module's import graph, removes unused exports and writes a single bundle with an optional source map.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			uiMode := false
			if f := cmd.Flags().Lookup("ui"); f != nil && f.Value.String() == "true" {
				uiMode = true
			}
			opts.cleanup = configureLogging(cmd.ErrOrStderr(), uiMode, opts.verbose)

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := config.LoadDotEnv(cwd); err != nil {
				slog.Warn("failed to load .env", "error", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.cleanup()
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("jspack %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultFile, "path to the TOML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newBundleCmd(opts))
	root.AddCommand(newResolveCmd(opts))
	root.AddCommand(newGraphCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newCacheCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if stderrors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

// loadConfig reads the config at path. The default path may be absent, in
// which case defaults apply; an explicitly named file must exist. The
// returned path is empty when no file was read.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) && filepath.Base(path) == config.DefaultFile {
		cfg, err := config.LoadOrDefault(path)
		return cfg, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newApp loads the config, lets the command adjust it, validates the result
// and opens the application.
func (o *rootOptions) newApp(adjust func(*config.Config)) (*app.App, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, cfgPath, err := loadConfig(o.configPath, cwd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	a, err := app.New(cfg, cwd)
	if err != nil {
		return nil, err
	}
	a.ConfigPath = cfgPath
	return a, nil
}
