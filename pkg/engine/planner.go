package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// DefaultMaxParallel is the worker count assumed when none is configured.
const DefaultMaxParallel = 4

// DefaultPlanner implements the Planner interface.
// It builds waves, estimates durations and asks an InstallDecider which
// units still need installation.
type DefaultPlanner struct {
	// builder computes waves for each batch
	builder *DAGBuilder

	// decider decides per unit whether installation is needed
	decider InstallDecider

	// cost estimates per-unit installation time
	cost CostFunc

	// maxParallel is the worker count used for estimates
	maxParallel int

	// now returns the current time
	now func() time.Time
}

// PlannerOption configures a DefaultPlanner.
type PlannerOption func(*DefaultPlanner)

// WithBuilder sets the DAG builder used by the planner.
func WithBuilder(b *DAGBuilder) PlannerOption {
	return func(p *DefaultPlanner) {
		if b != nil {
			p.builder = b
		}
	}
}

// WithDecider sets the install decider consulted for every unit.
func WithDecider(d InstallDecider) PlannerOption {
	return func(p *DefaultPlanner) {
		p.decider = d
	}
}

// WithCost sets the per-unit cost function.
func WithCost(c CostFunc) PlannerOption {
	return func(p *DefaultPlanner) {
		if c != nil {
			p.cost = c
		}
	}
}

// WithMaxParallel sets the worker count used for estimates.
func WithMaxParallel(n int) PlannerOption {
	return func(p *DefaultPlanner) {
		p.maxParallel = n
	}
}

// WithPlannerClock overrides the planner's time source.
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *DefaultPlanner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlanner creates a new default planner implementation.
func NewPlanner(opts ...PlannerOption) *DefaultPlanner {
	p := &DefaultPlanner{
		builder:     NewDAGBuilder(),
		cost:        UniformCost(0),
		maxParallel: DefaultMaxParallel,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BuildPlan computes waves, install decisions and duration estimates for a batch.
func (p *DefaultPlanner) BuildPlan(ctx context.Context, units []UnitSpec) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewPermanentError("planning cancelled", err).WithCode(ErrCodeCancelled)
	}
	if p.maxParallel < 1 {
		return nil, NewPermanentError(fmt.Sprintf("max parallel must be at least 1, got %d", p.maxParallel), nil).
			WithCode(ErrCodeValidation)
	}

	waves, err := p.builder.ComputeWaves(units)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:          uuid.New().String(),
		Fingerprint: Fingerprint(units),
		Units:       append([]UnitSpec(nil), units...),
		Waves:       waves,
		Decisions:   make(map[string]Decision, len(units)),
		MaxParallel: p.maxParallel,
		CreatedAt:   p.now(),
	}

	for _, u := range units {
		plan.Decisions[u.Name] = p.decide(u)
	}

	plan.Estimate, err = EstimateWaves(units, waves, p.cost, p.maxParallel)
	if err != nil {
		return nil, err
	}

	needed := func(u UnitSpec) time.Duration {
		if !plan.NeedsInstall(u.Name) {
			return 0
		}
		return p.cost(u)
	}
	plan.NeededEstimate, err = EstimateWaves(units, waves, needed, p.maxParallel)
	if err != nil {
		return nil, err
	}

	return plan, nil
}

// decide asks the decider whether u needs installation.
func (p *DefaultPlanner) decide(u UnitSpec) Decision {
	d := Decision{Unit: u.Name, Version: u.Version, Install: true}
	if p.decider == nil {
		d.Reason = "install state not checked"
		return d
	}

	if p.decider.ShouldInstall(u.Name, u.Version) {
		d.Reason = "no successful install recorded"
		return d
	}

	d.Install = false
	d.Reason = "installed (cached)"
	return d
}

// Fingerprint returns a stable identifier for a batch. Batches with the same
// units, versions, dependencies and order share a fingerprint.
func Fingerprint(units []UnitSpec) string {
	h := xxhash.New()
	for _, u := range units {
		deps := append([]string(nil), u.Dependencies...)
		sort.Strings(deps)

		_, _ = h.WriteString(u.Name)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(u.Version)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(strings.Join(deps, "\x01"))
		_, _ = h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
