package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder turns a unit batch into dependency waves.
// It keeps no state between calls; every method is a function of its input.
type DAGBuilder struct {
	// strict makes dependencies outside the batch an error instead of
	// treating them as already installed.
	strict bool
}

// BuilderOption configures a DAGBuilder.
type BuilderOption func(*DAGBuilder)

// WithStrictDependencies rejects dependencies that are not part of the batch.
func WithStrictDependencies(strict bool) BuilderOption {
	return func(b *DAGBuilder) {
		b.strict = strict
	}
}

// NewDAGBuilder creates a new DAG builder. The default is lenient: unknown
// dependencies are assumed to be installed already.
func NewDAGBuilder(opts ...BuilderOption) *DAGBuilder {
	b := &DAGBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Strict reports whether the builder rejects unknown dependencies.
func (b *DAGBuilder) Strict() bool {
	return b.strict
}

// dependencyGraph is the per-call adjacency structure.
type dependencyGraph struct {
	// order holds unit names in input order
	order []string

	// index maps unit names to their input position
	index map[string]int

	// dependencies maps a unit to its in-batch dependencies
	dependencies map[string][]string

	// dependents maps a unit to the units that depend on it
	dependents map[string][]string

	// inDegree counts unresolved in-batch dependencies per unit
	inDegree map[string]int

	// ignored holds dependencies that point outside the batch
	ignored map[string][]string
}

// ComputeWaves computes the ordered execution waves for a batch.
func (b *DAGBuilder) ComputeWaves(units []UnitSpec) ([]Wave, error) {
	g, err := b.buildGraph(units)
	if err != nil {
		return nil, err
	}
	return g.layer()
}

// BuildGraph computes waves and returns the full execution graph.
func (b *DAGBuilder) BuildGraph(units []UnitSpec) (*ExecutionGraph, error) {
	g, err := b.buildGraph(units)
	if err != nil {
		return nil, err
	}

	waves, err := g.layer()
	if err != nil {
		return nil, err
	}

	graph := &ExecutionGraph{
		Nodes:   make(map[string]*GraphNode, len(g.order)),
		Edges:   make([]GraphEdge, 0),
		Waves:   waves,
		Ignored: g.ignored,
	}

	for level, wave := range waves {
		for _, name := range wave {
			graph.Nodes[name] = &GraphNode{
				Name:         name,
				Wave:         level,
				Dependencies: g.dependencies[name],
				Dependents:   g.dependents[name],
			}
		}
	}

	for _, name := range g.order {
		for _, dep := range g.dependencies[name] {
			graph.Edges = append(graph.Edges, GraphEdge{From: dep, To: name})
		}
	}

	return graph, nil
}

// buildGraph validates the batch and builds adjacency lists.
func (b *DAGBuilder) buildGraph(units []UnitSpec) (*dependencyGraph, error) {
	if err := ValidateBatch(units); err != nil {
		return nil, err
	}

	g := &dependencyGraph{
		order:        make([]string, 0, len(units)),
		index:        make(map[string]int, len(units)),
		dependencies: make(map[string][]string, len(units)),
		dependents:   make(map[string][]string, len(units)),
		inDegree:     make(map[string]int, len(units)),
		ignored:      make(map[string][]string),
	}

	// First pass: index all units
	for i, u := range units {
		g.order = append(g.order, u.Name)
		g.index[u.Name] = i
		g.dependencies[u.Name] = make([]string, 0, len(u.Dependencies))
		g.dependents[u.Name] = make([]string, 0)
		g.inDegree[u.Name] = 0
	}

	// Second pass: build adjacency lists
	for _, u := range units {
		seen := make(map[string]struct{}, len(u.Dependencies))
		for _, dep := range u.Dependencies {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}

			if _, exists := g.index[dep]; !exists {
				if b.strict {
					return nil, &UnknownDependencyError{Unit: u.Name, Dependency: dep}
				}
				g.ignored[u.Name] = append(g.ignored[u.Name], dep)
				continue
			}

			g.dependencies[u.Name] = append(g.dependencies[u.Name], dep)
			g.dependents[dep] = append(g.dependents[dep], u.Name)
			g.inDegree[u.Name]++
		}
	}

	return g, nil
}

// layer runs Kahn's algorithm level by level. Each wave holds every unit whose
// dependencies were all placed in earlier waves, in input order.
func (g *dependencyGraph) layer() ([]Wave, error) {
	inDegree := make(map[string]int, len(g.inDegree))
	for name, degree := range g.inDegree {
		inDegree[name] = degree
	}

	current := make(Wave, 0)
	for _, name := range g.order {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	waves := make([]Wave, 0)
	placed := 0
	for len(current) > 0 {
		waves = append(waves, current)
		placed += len(current)

		next := make([]string, 0)
		for _, name := range current {
			for _, dependent := range g.dependents[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		sort.Slice(next, func(i, j int) bool {
			return g.index[next[i]] < g.index[next[j]]
		})
		current = next
	}

	if placed != len(g.order) {
		remaining := make([]string, 0, len(g.order)-placed)
		for _, name := range g.order {
			if inDegree[name] > 0 {
				remaining = append(remaining, name)
			}
		}
		return nil, &CycleError{
			Cycle:     g.findCycle(remaining, inDegree),
			Remaining: remaining,
		}
	}

	return waves, nil
}

// findCycle walks the unplaced subgraph along dependency edges. Every unplaced
// unit still has an unplaced dependency, so the walk must revisit a unit; the
// path from that unit's first visit is a cycle.
func (g *dependencyGraph) findCycle(remaining []string, inDegree map[string]int) []string {
	if len(remaining) == 0 {
		return nil
	}

	position := make(map[string]int)
	path := make([]string, 0)
	current := remaining[0]

	for {
		if start, visited := position[current]; visited {
			cycle := append([]string{}, path[start:]...)
			return append(cycle, current)
		}
		position[current] = len(path)
		path = append(path, current)

		next := ""
		for _, dep := range g.dependencies[current] {
			if inDegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next == "" {
			// Unreachable for a stalled Kahn run; report what we walked.
			return path
		}
		current = next
	}
}

// ToDOT generates a DOT format representation of the graph for visualization.
// The output can be rendered with Graphviz tools.
func (g *ExecutionGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph InstallPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	// Group nodes by wave for better visualization
	for level, wave := range g.Waves {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_wave_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Wave %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, name := range wave {
			sb.WriteString(fmt.Sprintf("    %q;\n", name))
		}

		sb.WriteString("  }\n\n")
	}

	for _, edge := range g.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}
