package cli

import (
	"fmt"

	"jspack/internal/core/app"
	"jspack/internal/core/config"
	"jspack/internal/core/errors"
	"jspack/internal/ui/report"

	"github.com/spf13/cobra"
)

type bundleFlags struct {
	out        string
	format     string
	globalName string
	platform   string
	unresolved string
	external   []string
	minify     bool
	sourcemap  bool
	noHoist    bool
}

// apply copies the flags the user set onto cfg.
func (f *bundleFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Bundle.OutFile = f.out
	}
	if flags.Changed("format") {
		cfg.Bundle.Format = f.format
	}
	if flags.Changed("global-name") {
		cfg.Bundle.GlobalName = f.globalName
	}
	if flags.Changed("platform") {
		cfg.Bundle.Platform = f.platform
	}
	if flags.Changed("unresolved") {
		cfg.Bundle.Unresolved = f.unresolved
	}
	if flags.Changed("external") {
		cfg.Bundle.External = append(cfg.Bundle.External, f.external...)
	}
	if flags.Changed("minify") {
		cfg.Bundle.Minify = f.minify
	}
	if flags.Changed("sourcemap") {
		cfg.Bundle.Sourcemap = f.sourcemap
	}
	if flags.Changed("no-hoist") {
		hoist := !f.noHoist
		cfg.Bundle.ScopeHoist = &hoist
	}
}

func (f *bundleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (defaults to bundle.out_file)")
	cmd.Flags().StringVar(&f.format, "format", "esm", "output format: esm or iife")
	cmd.Flags().StringVar(&f.globalName, "global-name", "", "global variable for iife bundles")
	cmd.Flags().StringVar(&f.platform, "platform", "browser", "target platform: browser or node")
	cmd.Flags().StringVar(&f.unresolved, "unresolved", "error", "unresolved import policy: error or external")
	cmd.Flags().StringSliceVar(&f.external, "external", nil, "packages to leave as runtime imports")
	cmd.Flags().BoolVar(&f.minify, "minify", false, "minify the output")
	cmd.Flags().BoolVar(&f.sourcemap, "sourcemap", false, "write a source map next to the bundle")
	cmd.Flags().BoolVar(&f.noHoist, "no-hoist", false, "wrap every module instead of scope hoisting")
}

func newBundleCmd(root *rootOptions) *cobra.Command {
	flags := &bundleFlags{}
	cmd := &cobra.Command{
		Use:   "bundle [entries...]",
		Short: "Build each entry into a bundle",
		Long: `Build each entry into a bundle. Entries default to bundle.entry from the
config file. With several entries every bundle is written next to out_file
and named after its entry. A single entry without an output file is printed
to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp(func(cfg *config.Config) {
				if len(args) > 0 {
					cfg.Bundle.Entry = args
				}
				flags.apply(cmd, cfg)
			})
			if err != nil {
				return err
			}

			if a.Paths.OutFile == "" && len(a.Config.Bundle.Entry) == 1 {
				defer a.Close()
				return bundleToStdout(cmd, a)
			}

			summaries, buildErr := a.BuildAll(cmd.Context())
			if err := a.Close(); err != nil && buildErr == nil {
				buildErr = err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderBuilds(a.Paths.ProjectRoot, summaries))
			if buildErr != nil && len(summaries) > 1 {
				return errors.Wrap(buildErr, errors.CodeOf(buildErr), "one or more entries failed")
			}
			return buildErr
		},
	}
	flags.register(cmd)
	return cmd
}

func bundleToStdout(cmd *cobra.Command, a *app.App) error {
	entry := a.Config.Bundle.Entry[0]
	res, err := a.Bundler.Bundle(cmd.Context(), entry, a.Paths.ProjectRoot, app.OptionsFromConfig(a.Config))
	if err != nil {
		return err
	}
	for _, d := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), report.RenderDiagnostic(a.Paths.ProjectRoot, d))
	}
	_, err = cmd.OutOrStdout().Write(res.Code)
	return err
}
