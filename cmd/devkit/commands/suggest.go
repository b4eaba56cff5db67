package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSuggestCommand(info buildInfo) *cobra.Command {
	var report bool

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest optimizations",
		Long: `Suggest optimizations from cache statistics, install history,
recorded durations and Rego policies.

Custom policies are loaded from optimizer.policy_dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "suggest", func(ctx context.Context, a *app) error {
				suggestions := a.optimizer.SuggestionsContext(ctx)

				if jsonOutput {
					out := map[string]interface{}{"suggestions": suggestions}
					if report {
						out["timings"] = a.timings.Summaries()
					}
					return printJSON(cmd, out)
				}

				w := cmd.OutOrStdout()
				if len(suggestions) == 0 {
					fmt.Fprintln(w, "No suggestions")
				} else {
					fmt.Fprintln(w, "Suggestions:")
					for _, s := range suggestions {
						fmt.Fprintf(w, "  - %s\n", s)
					}
				}

				if report {
					fmt.Fprintln(w)
					fmt.Fprint(w, a.timings.Report())
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&report, "report", false, "also print recorded timing summaries")

	return cmd
}
