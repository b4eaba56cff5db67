package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devkit/devkit/pkg/config"
	"github.com/devkit/devkit/pkg/engine"
	"github.com/devkit/devkit/pkg/telemetry"
)

func newPlanCommand(info buildInfo) *cobra.Command {
	var (
		manifestPath string
		maxParallel  int
		strict       bool
		costScript   string
		dotFile      string
		onlyNeeded   bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan installation waves for a manifest",
		Long: `Plan installation waves for the units in a manifest.

The plan:
  - Orders units into waves; every unit comes after its dependencies
  - Checks the cache for units already installed successfully
  - Estimates the total time with the configured parallelism

A dependency cycle fails the command and names the units on the cycle.`,
		Example: `  # Plan a YAML manifest
  devkit plan --manifest units.yaml

  # Fail on dependencies outside the manifest, allow 8 parallel installs
  devkit plan --manifest units.cue --strict --max-parallel 8

  # Only show units that still need installing, write the graph
  devkit plan --manifest units.yaml --only-needed --dot plan.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "plan", func(ctx context.Context, a *app) error {
				manifest, err := config.LoadManifest(ctx, manifestPath)
				if err != nil {
					return err
				}

				if costScript != "" {
					abs, err := filepath.Abs(costScript)
					if err != nil {
						return err
					}
					manifest.CostScript = abs
				}

				parallel := a.settings.Scheduler.MaxParallel
				if manifest.MaxParallel > 0 {
					parallel = manifest.MaxParallel
				}
				if cmd.Flags().Changed("max-parallel") {
					parallel = maxParallel
				}

				plan, err := buildPlan(ctx, a, manifest, parallel, strict || a.settings.Scheduler.Strict, dotFile)
				if err != nil {
					return err
				}

				if jsonOutput {
					return printJSON(cmd, plan)
				}
				printPlan(cmd.OutOrStdout(), plan, onlyNeeded)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "unit manifest (.yaml or .cue)")
	cmd.Flags().IntVarP(&maxParallel, "max-parallel", "p", engine.DefaultMaxParallel, "maximum concurrent installs")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on dependencies outside the manifest")
	cmd.Flags().StringVar(&costScript, "cost-script", "", "Starlark file defining cost(unit)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the dependency graph in DOT format")
	cmd.Flags().BoolVar(&onlyNeeded, "only-needed", false, "only show units that need installing")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func buildPlan(ctx context.Context, a *app, manifest *config.Manifest, parallel int, strict bool, dotFile string) (plan *engine.Plan, err error) {
	specs, err := manifest.Specs()
	if err != nil {
		return nil, err
	}

	ctx, span := a.telemetry.Tracer.StartPlanSpan(ctx, len(specs))
	defer func() { telemetry.EndSpan(span, err) }()

	cost, err := manifest.CostFunc(ctx, a.settings.Scheduler.DefaultCost, func(u engine.UnitSpec, err error) {
		a.logger.WithUnit(u.Name, u.Version).WithError(err).Warn("cost script failed, using default cost")
	})
	if err != nil {
		return nil, err
	}

	builder := engine.NewDAGBuilder(engine.WithStrictDependencies(strict))
	planner := engine.NewPlanner(
		engine.WithBuilder(builder),
		engine.WithDecider(a.optimizer),
		engine.WithCost(cost),
		engine.WithMaxParallel(parallel),
	)

	plan, err = planner.BuildPlan(ctx, specs)
	if err != nil {
		a.telemetry.Metrics.RecordPlanFailed(errorCode(err))
		return nil, err
	}
	a.telemetry.Metrics.RecordPlanBuilt(len(plan.Units), len(plan.Waves), plan.Estimate.Total)

	if dotFile != "" {
		graph, err := builder.BuildGraph(specs)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(dotFile, []byte(graph.ToDOT()), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write DOT graph: %w", err)
		}
	}

	a.logger.WithPlanID(plan.ID).WithFields(map[string]interface{}{
		"units":    len(plan.Units),
		"waves":    len(plan.Waves),
		"estimate": plan.Estimate.Total.String(),
	}).Info("plan built")

	return plan, nil
}

func printPlan(w io.Writer, plan *engine.Plan, onlyNeeded bool) {
	fmt.Fprintf(w, "Plan %s (%d units, %d waves, max parallel %d)\n\n",
		plan.ID, len(plan.Units), len(plan.Waves), plan.MaxParallel)

	for i, wave := range plan.Waves {
		names := make([]string, 0, len(wave))
		for _, name := range wave {
			if onlyNeeded && !plan.NeedsInstall(name) {
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			continue
		}
		fmt.Fprintf(w, "Wave %d: %s\n", i+1, strings.Join(names, ", "))
	}

	fmt.Fprintln(w)
	needed := 0
	for _, u := range plan.Units {
		d := plan.Decisions[u.Name]
		if d.Install {
			needed++
		} else if onlyNeeded {
			continue
		}

		action := "install"
		if !d.Install {
			action = "skip"
		}
		line := fmt.Sprintf("  %-8s %s", action, u)
		if d.Reason != "" {
			line += fmt.Sprintf(" (%s)", d.Reason)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d of %d units need installing\n", needed, len(plan.Units))
	if !onlyNeeded {
		fmt.Fprintf(w, "Estimated time (all units): %s\n", formatDuration(plan.Estimate.Total))
	}
	fmt.Fprintf(w, "Estimated time (needed):    %s\n", formatDuration(plan.NeededEstimate.Total))
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
