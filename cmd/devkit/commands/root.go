package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// buildInfo is set by Execute and reported by the version command.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	info := buildInfo{Version: version, Commit: commit, BuildDate: buildDate}

	rootCmd := &cobra.Command{
		Use:   "devkit",
		Short: "devkit - workstation setup planner",
		Long: `devkit plans and tracks the installation of development tools.

Features:
  - Dependency-ordered install waves with cycle detection
  - Install results cached with a time-to-live
  - Parallel duration estimates
  - Suggestions from cache statistics, install history and Rego policies`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ~/.devkit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newPlanCommand(info))
	rootCmd.AddCommand(newCacheCommand(info))
	rootCmd.AddCommand(newCheckCommand(info))
	rootCmd.AddCommand(newMarkCommand(info))
	rootCmd.AddCommand(newSuggestCommand(info))
	rootCmd.AddCommand(newVersionCommand(info))

	return rootCmd
}
