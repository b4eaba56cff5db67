package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devkit/devkit/pkg/telemetry"
)

func newCacheCommand(info buildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the install cache",
	}

	cmd.AddCommand(newCacheStatsCommand(info))
	cmd.AddCommand(newCacheClearCommand(info))
	cmd.AddCommand(newCacheGetCommand(info))
	cmd.AddCommand(newCacheInvalidateCommand(info))
	cmd.AddCommand(newCacheSweepCommand(info))

	return cmd
}

func newCacheStatsCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "cache stats", func(ctx context.Context, a *app) error {
				stats, err := a.cache.Stats(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, stats)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Location: %s\n", stats.Location)
				fmt.Fprintf(w, "Entries:  %d\n", stats.EntryCount)
				fmt.Fprintf(w, "Reserved: %d (install history, recorded timings)\n", stats.Reserved)
				fmt.Fprintf(w, "Size:     %.2f MB (%d bytes)\n", stats.SizeMB, stats.ApproximateSize)
				return nil
			})
		},
	}
}

func newCacheClearCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		Long: `Remove every cache entry.

This also removes the reserved entries: the per-unit install history used by
suggest and the durations recorded with mark --duration. The cleared count
includes them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "cache clear", func(ctx context.Context, a *app) (err error) {
				op := telemetry.StartOperation(ctx, "cache.clear")
				defer func() { op.End(err) }()

				n, err := a.cache.Clear(op.Ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, map[string]int{"cleared": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries\n", n)
				return nil
			})
		},
	}
}

// cachedEntry is the printable form of a cache entry.
type cachedEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func newCacheGetCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a cache entry",
		Example: `  devkit cache get install:node:20.11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "cache get", func(ctx context.Context, a *app) error {
				entry, ok := a.cache.Lookup(ctx, args[0])
				if !ok {
					return fmt.Errorf("no cache entry for %q", args[0])
				}
				return printJSON(cmd, cachedEntry{
					Key:       entry.Key,
					Value:     entry.Value,
					CreatedAt: entry.CreatedAt,
					ExpiresAt: entry.ExpiresAt,
				})
			})
		},
	}
}

func newCacheInvalidateCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate KEY",
		Short: "Remove one cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "cache invalidate", func(ctx context.Context, a *app) error {
				if err := a.cache.Invalidate(ctx, args[0]); err != nil {
					return err
				}
				if !jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", args[0])
				}
				return nil
			})
		},
	}
}

func newCacheSweepCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, info, "cache sweep", func(ctx context.Context, a *app) (err error) {
				op := telemetry.StartOperation(ctx, "cache.sweep")
				defer func() { op.End(err) }()

				n, err := a.cache.Sweep(op.Ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, map[string]int{"removed": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries\n", n)
				return nil
			})
		},
	}
}
