package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devkit/devkit/pkg/optimizer"
)

type checkResult struct {
	Unit    string `json:"unit"`
	Version string `json:"version"`
	Install bool   `json:"install"`
	Key     string `json:"key"`
}

func newCheckCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "check UNIT VERSION",
		Short: "Report whether a unit needs installing",
		Long: `Report whether a unit needs installing.

A unit is up to date when the cache holds a successful, unexpired install
result for the exact version.`,
		Example: `  devkit check node 20.11`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "check", func(ctx context.Context, a *app) error {
				unit, version := args[0], args[1]
				res := checkResult{
					Unit:    unit,
					Version: version,
					Install: a.optimizer.ShouldInstallContext(ctx, unit, version),
					Key:     optimizer.InstallKey(unit, version),
				}

				if jsonOutput {
					return printJSON(cmd, res)
				}
				if res.Install {
					fmt.Fprintf(cmd.OutOrStdout(), "%s@%s: install needed\n", unit, version)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s@%s: up to date\n", unit, version)
				}
				return nil
			})
		},
	}
}

func newMarkCommand(info buildInfo) *cobra.Command {
	var (
		failed   bool
		ttl      time.Duration
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mark UNIT VERSION",
		Short: "Record the result of an install",
		Example: `  # Record a successful install that took 42 seconds
  devkit mark node 20.11 --duration 42s

  # Record a failure
  devkit mark rust 1.80 --failed`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "mark", func(ctx context.Context, a *app) error {
				unit, version := args[0], args[1]

				resultTTL := a.settings.Cache.DefaultTTL
				if cmd.Flags().Changed("ttl") {
					resultTTL = ttl
				}
				if err := a.optimizer.MarkResultTTL(ctx, unit, version, !failed, resultTTL); err != nil {
					return err
				}

				if duration > 0 {
					if err := saveTiming(ctx, a.cache, a.timings, installLabel(unit), duration); err != nil {
						return fmt.Errorf("failed to record duration: %w", err)
					}
				}

				if jsonOutput {
					return printJSON(cmd, map[string]interface{}{
						"unit":    unit,
						"version": version,
						"success": !failed,
					})
				}
				result := "success"
				if failed {
					result = "failure"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s@%s\n", result, unit, version)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "record a failed install")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "how long the result stays valid (default from config)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long the install took")

	return cmd
}
