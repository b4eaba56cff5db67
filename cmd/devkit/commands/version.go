package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return printJSON(cmd, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "devkit %s (commit: %s, built: %s)\n", info.Version, info.Commit, info.BuildDate)
			return nil
		},
	}
}
