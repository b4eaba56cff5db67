package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/devkit/devkit/pkg/cache"
	"github.com/devkit/devkit/pkg/metrics"
)

const (
	// timingsKey holds install durations reported through mark --duration,
	// so timing summaries survive between invocations.
	timingsKey = "metrics:timings"

	maxTimingSamples = 500
	timingsTTL       = 30 * 24 * time.Hour
)

type timingSample struct {
	Label   string  `json:"label"`
	Seconds float64 `json:"seconds"`
}

// installLabel is the timing label for installs of unit.
func installLabel(unit string) string {
	return "install:" + unit
}

// loadTimings replays recorded durations into c.
func loadTimings(ctx context.Context, store *cache.Store, c *metrics.Collector) error {
	var samples []timingSample
	if !store.GetInto(ctx, timingsKey, &samples) {
		return nil
	}

	for _, s := range samples {
		if err := c.Record(s.Label, time.Duration(s.Seconds*float64(time.Second))); err != nil {
			return fmt.Errorf("invalid timing sample %q: %w", s.Label, err)
		}
	}
	return nil
}

// saveTiming records d under label in c and appends it to the persisted
// samples, keeping the newest maxTimingSamples.
func saveTiming(ctx context.Context, store *cache.Store, c *metrics.Collector, label string, d time.Duration) error {
	if err := c.Record(label, d); err != nil {
		return err
	}

	var samples []timingSample
	store.GetInto(ctx, timingsKey, &samples)

	samples = append(samples, timingSample{Label: label, Seconds: d.Seconds()})
	if len(samples) > maxTimingSamples {
		samples = samples[len(samples)-maxTimingSamples:]
	}

	return store.Set(ctx, timingsKey, samples, timingsTTL)
}
