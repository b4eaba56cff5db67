package engine

import (
	"context"
	"time"
)

// Planner builds installation plans from unit batches.
type Planner interface {
	// BuildPlan computes waves, install decisions and estimates for a batch.
	BuildPlan(ctx context.Context, units []UnitSpec) (*Plan, error)
}

// InstallDecider decides whether a unit at a version needs installation.
// It is implemented by optimizer.Optimizer.
type InstallDecider interface {
	ShouldInstall(unit, version string) bool
}

// ResultRecorder records the outcome of an installation attempt.
// It is implemented by optimizer.Optimizer.
type ResultRecorder interface {
	MarkResult(unit, version string, success bool) error
}

// DurationRecorder records timing samples under a label.
// It is implemented by metrics.Collector.
type DurationRecorder interface {
	Record(label string, d time.Duration) error
}

// UnitFunc installs a single unit. The runner calls it at most once per unit
// and never concurrently for units with a dependency relationship.
type UnitFunc func(ctx context.Context, unit UnitSpec) error

// UnitResult is the outcome of a single unit within a run.
type UnitResult struct {
	// Unit is the unit name.
	Unit string `json:"unit"`

	// Wave is the wave index the unit belonged to.
	Wave int `json:"wave"`

	// Status is the final status of the unit.
	Status UnitStatus `json:"status"`

	// Duration is how long the install function ran.
	Duration time.Duration `json:"duration"`

	// Error is the failure cause for failed, skipped or cancelled units.
	Error error `json:"-"`

	// Reason is a short human-readable explanation of the status.
	Reason string `json:"reason,omitempty"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cached    int `json:"cached"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}

// RunReport is the result of running a plan.
type RunReport struct {
	// PlanID is the ID of the plan that was run.
	PlanID string `json:"plan_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// Results maps unit names to their results.
	Results map[string]*UnitResult `json:"results"`

	// Summary counts units per final status.
	Summary RunSummary `json:"summary"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`
}

// Failed returns the names of failed units in plan order.
func (r *RunReport) Failed(plan *Plan) []string {
	failed := make([]string, 0)
	for _, u := range plan.Units {
		if res, ok := r.Results[u.Name]; ok && res.Status == UnitStatusFailed {
			failed = append(failed, u.Name)
		}
	}
	return failed
}
