package engine

import (
	"fmt"
	"strings"
	"time"
)

// UnitSpec describes one installable unit in a scheduling batch.
// UnitSpecs are built once per batch through NewUnitSpec and treated as immutable.
type UnitSpec struct {
	// Name identifies the unit and must be unique within a batch.
	Name string `json:"name" yaml:"name"`

	// Version is the version to install. It may be empty.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Dependencies names the units that must be installed first.
	// Names are unique and kept in declaration order.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// NewUnitSpec validates and builds a unit descriptor. Duplicate dependency
// names are collapsed while keeping their first position.
func NewUnitSpec(name, version string, dependencies ...string) (UnitSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnitSpec{}, NewPermanentError("unit has empty name", nil).
			WithCode(ErrCodeValidation)
	}

	deps := make([]string, 0, len(dependencies))
	seen := make(map[string]struct{}, len(dependencies))
	for _, dep := range dependencies {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			return UnitSpec{}, NewPermanentError("unit declares an empty dependency name", nil).
				WithCode(ErrCodeValidation).
				WithUnit(name)
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		deps = append(deps, dep)
	}

	return UnitSpec{
		Name:         name,
		Version:      strings.TrimSpace(version),
		Dependencies: deps,
	}, nil
}

// MustUnitSpec is like NewUnitSpec but panics on invalid input.
// It is intended for tests and static tables.
func MustUnitSpec(name, version string, dependencies ...string) UnitSpec {
	u, err := NewUnitSpec(name, version, dependencies...)
	if err != nil {
		panic(err)
	}
	return u
}

// String renders the unit as name@version.
func (u UnitSpec) String() string {
	if u.Version == "" {
		return u.Name
	}
	return fmt.Sprintf("%s@%s", u.Name, u.Version)
}

// ValidateBatch checks a batch for malformed descriptors: empty names, empty
// dependency names and duplicate unit names.
func ValidateBatch(units []UnitSpec) error {
	seen := make(map[string]struct{}, len(units))
	for i, u := range units {
		if strings.TrimSpace(u.Name) == "" {
			return NewPermanentError(fmt.Sprintf("unit at position %d has empty name", i), nil).
				WithCode(ErrCodeValidation)
		}
		if _, dup := seen[u.Name]; dup {
			return NewPermanentError(fmt.Sprintf("duplicate unit name: %s", u.Name), nil).
				WithCode(ErrCodeValidation).
				WithUnit(u.Name)
		}
		seen[u.Name] = struct{}{}

		for _, dep := range u.Dependencies {
			if strings.TrimSpace(dep) == "" {
				return NewPermanentError("unit declares an empty dependency name", nil).
					WithCode(ErrCodeValidation).
					WithUnit(u.Name)
			}
		}
	}
	return nil
}

// Wave is a set of unit names with no dependency edges among them.
// Units in a wave may run concurrently; order follows the input batch.
type Wave []string

// Contains reports whether the wave holds the named unit.
func (w Wave) Contains(name string) bool {
	for _, n := range w {
		if n == name {
			return true
		}
	}
	return false
}

// Decision records whether a unit needs to be installed.
type Decision struct {
	// Unit is the unit name.
	Unit string `json:"unit"`

	// Version is the unit version the decision was made for.
	Version string `json:"version,omitempty"`

	// Install is true if the unit must be (re)installed.
	Install bool `json:"install"`

	// Reason is a short explanation of the decision.
	Reason string `json:"reason,omitempty"`
}

// InstallResult is the outcome of installing a unit.
type InstallResult struct {
	Unit      string    `json:"unit"`
	Version   string    `json:"version"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Plan is a complete installation plan for a unit batch.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// Fingerprint identifies the input batch; equal batches share a fingerprint.
	Fingerprint string `json:"fingerprint"`

	// Units is the input batch in submission order.
	Units []UnitSpec `json:"units"`

	// Waves is the ordered execution plan.
	Waves []Wave `json:"waves"`

	// Decisions maps unit names to install decisions.
	Decisions map[string]Decision `json:"decisions"`

	// Estimate is the duration estimate for installing every unit.
	Estimate Estimate `json:"estimate"`

	// NeededEstimate is the duration estimate counting only units that need installation.
	NeededEstimate Estimate `json:"needed_estimate"`

	// MaxParallel is the worker count the estimates assume.
	MaxParallel int `json:"max_parallel"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Unit returns the spec for the named unit.
func (p *Plan) Unit(name string) (UnitSpec, bool) {
	for _, u := range p.Units {
		if u.Name == name {
			return u, true
		}
	}
	return UnitSpec{}, false
}

// NeedsInstall reports whether the plan decided the unit must be installed.
// Units without a recorded decision are treated as needing installation.
func (p *Plan) NeedsInstall(name string) bool {
	d, ok := p.Decisions[name]
	if !ok {
		return true
	}
	return d.Install
}

// ExecutionGraph is the dependency graph computed for a batch.
type ExecutionGraph struct {
	// Nodes maps unit names to graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists in-batch dependency edges.
	Edges []GraphEdge `json:"edges"`

	// Waves lists unit names per wave.
	Waves []Wave `json:"waves"`

	// Ignored lists dependencies that point outside the batch, keyed by unit.
	Ignored map[string][]string `json:"ignored,omitempty"`
}

// Depth returns the number of waves.
func (g *ExecutionGraph) Depth() int {
	return len(g.Waves)
}

// GraphNode is a unit in the execution graph.
type GraphNode struct {
	Name         string   `json:"name"`
	Wave         int      `json:"wave"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

// GraphEdge is a dependency edge: From must be installed before To.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}
