package cli

import (
	"fmt"
	"os"

	"jspack/internal/core/app"
	"jspack/internal/core/config"
	"jspack/internal/core/errors"
	"jspack/internal/engine/resolver"
	"jspack/internal/ui/report"

	"github.com/spf13/cobra"
)

func newResolveCmd(root *rootOptions) *cobra.Command {
	var (
		from     string
		trace    bool
		platform string
	)
	cmd := &cobra.Command{
		Use:   "resolve <specifier>",
		Short: "Resolve one import specifier",
		Long: `Resolve one import specifier the way a build would, using the resolve
settings from the config file. --trace prints every lookup step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp(func(cfg *config.Config) {
				if cmd.Flags().Changed("platform") {
					cfg.Bundle.Platform = platform
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			dir := from
			if dir == "" {
				if dir, err = os.Getwd(); err != nil {
					return err
				}
			}
			dir = config.ResolveRelative(a.Paths.ProjectRoot, dir)

			specifier := args[0]
			result, tr := a.Bundler.Resolve(dir, specifier, a.Paths.ProjectRoot, app.OptionsFromConfig(a.Config), trace)
			fmt.Fprint(cmd.OutOrStdout(), report.RenderResolution(specifier, result, tr))

			switch r := result.(type) {
			case resolver.NotFound:
				return errors.Newf(r.Code, "cannot resolve %q: %s", specifier, r.Reason)
			case resolver.Ambiguous:
				return errors.Newf(errors.CodeAmbiguousExtension, "%q is ambiguous", specifier)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "directory of the importing module (defaults to the working directory)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print every resolution step")
	cmd.Flags().StringVar(&platform, "platform", "browser", "target platform: browser or node")
	return cmd
}
