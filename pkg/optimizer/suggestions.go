package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/devkit/devkit/pkg/cache"
)

// UnitHistory counts the most recent install attempts for one unit across
// versions. Attempts and Failures cover only the outcomes in Recent, so a
// unit that has been fixed stops being flagged once failures leave the window.
type UnitHistory struct {
	Unit     string `json:"unit"`
	Attempts int    `json:"attempts"`
	Failures int    `json:"failures"`

	// Recent holds the newest outcomes, oldest first; true is a success.
	Recent []bool `json:"recent,omitempty"`

	LastVersion string    `json:"last_version"`
	LastSuccess bool      `json:"last_success"`
	LastAttempt time.Time `json:"last_attempt"`
}

// FailureRate returns Failures / Attempts, or 0 without attempts.
func (h UnitHistory) FailureRate() float64 {
	if h.Attempts == 0 {
		return 0
	}
	return float64(h.Failures) / float64(h.Attempts)
}

// MetricSnapshot is a timing summary in seconds.
type MetricSnapshot struct {
	Count        int     `json:"count"`
	MinSeconds   float64 `json:"min_seconds"`
	MaxSeconds   float64 `json:"max_seconds"`
	AvgSeconds   float64 `json:"avg_seconds"`
	TotalSeconds float64 `json:"total_seconds"`
}

// Thresholds are the limits the built-in heuristics use.
type Thresholds struct {
	EntryCount  int     `json:"entry_count"`
	FailureRate float64 `json:"failure_rate"`
	SlowSeconds float64 `json:"slow_seconds"`
	MinAttempts int     `json:"min_attempts"`
	MissRatio   float64 `json:"miss_ratio"`
	MinLookups  int     `json:"min_lookups"`
}

// AdvisoryInput is the snapshot handed to an Advisor.
type AdvisoryInput struct {
	Cache      cache.Stats               `json:"cache"`
	Units      []UnitHistory             `json:"units"`
	Metrics    map[string]MetricSnapshot `json:"metrics"`
	Thresholds Thresholds                `json:"thresholds"`
}

// Advisor produces additional suggestions from a snapshot.
type Advisor interface {
	Advise(ctx context.Context, input AdvisoryInput) ([]string, error)
}

// Snapshot gathers the current cache stats, unit histories and timing
// summaries.
func (o *Optimizer) Snapshot(ctx context.Context) (AdvisoryInput, error) {
	stats, err := o.cache.Stats(ctx)
	if err != nil {
		return AdvisoryInput{}, err
	}

	input := AdvisoryInput{
		Cache:   stats,
		Units:   o.History(),
		Metrics: make(map[string]MetricSnapshot),
		Thresholds: Thresholds{
			EntryCount:  o.entryThreshold,
			FailureRate: o.failureRate,
			SlowSeconds: o.slowThreshold.Seconds(),
			MinAttempts: o.minAttempts,
			MissRatio:   o.missRatio,
			MinLookups:  o.minLookups,
		},
	}

	if o.timings != nil {
		for label, s := range o.timings.Summaries() {
			input.Metrics[label] = MetricSnapshot{
				Count:        s.Count,
				MinSeconds:   s.Min.Seconds(),
				MaxSeconds:   s.Max.Seconds(),
				AvgSeconds:   s.Avg.Seconds(),
				TotalSeconds: s.Total.Seconds(),
			}
		}
	}

	return input, nil
}

// Suggestions returns advisory hints. They never change what ShouldInstall
// decides.
func (o *Optimizer) Suggestions() []string {
	return o.SuggestionsContext(context.Background())
}

// SuggestionsContext is Suggestions with a context for the cache backend and
// advisor.
func (o *Optimizer) SuggestionsContext(ctx context.Context) []string {
	input, err := o.Snapshot(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("failed to gather cache stats for suggestions")
		return nil
	}

	suggestions := Builtin(input)

	if o.advisor != nil {
		extra, err := o.advisor.Advise(ctx, input)
		if err != nil {
			o.logger.WithError(err).Warn("advisor failed")
		} else {
			sort.Strings(extra)
			suggestions = appendUnique(suggestions, extra...)
		}
	}

	return suggestions
}

// Builtin applies the built-in heuristics to input: cache size first, then
// failing units by name, then slow labels by name.
func Builtin(input AdvisoryInput) []string {
	var out []string
	t := input.Thresholds

	if input.Cache.EntryCount > t.EntryCount {
		out = append(out, fmt.Sprintf("Clear cache (%d entries, %.2fMB): devkit cache clear",
			input.Cache.EntryCount, input.Cache.SizeMB))
	}

	for _, h := range input.Units {
		if h.Attempts >= t.MinAttempts && h.FailureRate() > t.FailureRate {
			out = append(out, fmt.Sprintf("Investigate %s: %d of %d installs failed",
				h.Unit, h.Failures, h.Attempts))
		}
	}

	labels := make([]string, 0, len(input.Metrics))
	for label := range input.Metrics {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if m := input.Metrics[label]; m.AvgSeconds > t.SlowSeconds {
			out = append(out, fmt.Sprintf("Slow operation detected (%s): avg %.2fs", label, m.AvgSeconds))
		}
	}

	return out
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			list = append(list, s)
		}
	}
	return list
}
