package cli

import (
	"fmt"

	"jspack/internal/core/app"
	"jspack/internal/core/config"
	"jspack/internal/core/errors"
	"jspack/internal/ui/report"

	"github.com/spf13/cobra"
)

func newGraphCmd(root *rootOptions) *cobra.Command {
	var (
		format   string
		platform string
	)
	cmd := &cobra.Command{
		Use:   "graph [entry]",
		Short: "Print the module graph of an entry",
		Long: `Build and tree-shake the module graph of an entry without emitting a
bundle, then list its modules and import cycles. --format dot writes Graphviz.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "dot" {
				return errors.Newf(errors.CodeValidationError, "unknown graph format %q", format)
			}
			a, err := root.newApp(func(cfg *config.Config) {
				if cmd.Flags().Changed("platform") {
					cfg.Bundle.Platform = platform
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			entry := ""
			if len(args) == 1 {
				entry = args[0]
			} else if len(a.Config.Bundle.Entry) > 0 {
				entry = a.Config.Bundle.Entry[0]
			}
			if entry == "" {
				return errors.New(errors.CodeValidationError, "no entry given and bundle.entry is empty")
			}

			g, _, diags, err := a.Bundler.BuildGraph(cmd.Context(), entry, a.Paths.ProjectRoot, app.OptionsFromConfig(a.Config))
			if err != nil {
				return err
			}
			if format == "dot" {
				fmt.Fprint(cmd.OutOrStdout(), report.RenderGraphDOT(a.Paths.ProjectRoot, g))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderGraph(a.Paths.ProjectRoot, g))
			for _, d := range diags {
				fmt.Fprintln(cmd.OutOrStdout(), report.RenderDiagnostic(a.Paths.ProjectRoot, d))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	cmd.Flags().StringVar(&platform, "platform", "browser", "target platform: browser or node")
	return cmd
}
