package engine

import (
	"fmt"
	"sort"
	"time"
)

// CostFunc returns the expected installation time of a unit.
// Negative costs are treated as zero.
type CostFunc func(UnitSpec) time.Duration

// UniformCost returns a CostFunc that assigns the same cost to every unit.
func UniformCost(d time.Duration) CostFunc {
	return func(UnitSpec) time.Duration {
		return d
	}
}

// CostTable returns a CostFunc backed by a per-unit table, falling back to def.
func CostTable(costs map[string]time.Duration, def time.Duration) CostFunc {
	return func(u UnitSpec) time.Duration {
		if c, ok := costs[u.Name]; ok {
			return c
		}
		return def
	}
}

// Bin is the work assigned to one worker within a wave.
type Bin struct {
	Units []string      `json:"units"`
	Load  time.Duration `json:"load"`
}

// WaveEstimate is the estimated duration of a single wave.
type WaveEstimate struct {
	Index    int           `json:"index"`
	Duration time.Duration `json:"duration"`

	// Bins is the worker assignment used for the estimate. When the wave fits
	// within the worker count each unit gets its own bin.
	Bins []Bin `json:"bins"`
}

// Estimate is a wave-by-wave duration estimate.
type Estimate struct {
	Total       time.Duration  `json:"total"`
	MaxParallel int            `json:"max_parallel"`
	Waves       []WaveEstimate `json:"waves"`
}

// EstimateDuration computes waves for units and estimates the total time to
// install them with maxParallel workers.
func (b *DAGBuilder) EstimateDuration(units []UnitSpec, cost CostFunc, maxParallel int) (Estimate, error) {
	waves, err := b.ComputeWaves(units)
	if err != nil {
		return Estimate{}, err
	}
	return EstimateWaves(units, waves, cost, maxParallel)
}

// EstimateWaves estimates the duration of precomputed waves. A wave that fits
// within maxParallel takes as long as its slowest unit; larger waves are packed
// with the longest-processing-time-first heuristic.
func EstimateWaves(units []UnitSpec, waves []Wave, cost CostFunc, maxParallel int) (Estimate, error) {
	if maxParallel < 1 {
		return Estimate{}, NewPermanentError(fmt.Sprintf("max parallel must be at least 1, got %d", maxParallel), nil).
			WithCode(ErrCodeValidation)
	}
	if cost == nil {
		cost = UniformCost(0)
	}

	specs := make(map[string]UnitSpec, len(units))
	for _, u := range units {
		specs[u.Name] = u
	}

	est := Estimate{
		MaxParallel: maxParallel,
		Waves:       make([]WaveEstimate, 0, len(waves)),
	}

	for i, wave := range waves {
		jobs := make([]job, 0, len(wave))
		for _, name := range wave {
			spec, ok := specs[name]
			if !ok {
				spec = UnitSpec{Name: name}
			}
			jobs = append(jobs, job{name: name, cost: clampCost(cost(spec))})
		}

		bins := packWave(jobs, maxParallel)
		we := WaveEstimate{Index: i, Bins: bins}
		for _, bin := range bins {
			if bin.Load > we.Duration {
				we.Duration = bin.Load
			}
		}

		est.Waves = append(est.Waves, we)
		est.Total += we.Duration
	}

	return est, nil
}

// WaveDuration returns the estimated duration of a single wave with the given
// unit costs.
func WaveDuration(costs []time.Duration, maxParallel int) time.Duration {
	if maxParallel < 1 {
		maxParallel = 1
	}

	jobs := make([]job, len(costs))
	for i, c := range costs {
		jobs[i] = job{name: fmt.Sprintf("#%d", i), cost: clampCost(c)}
	}

	var longest time.Duration
	for _, bin := range packWave(jobs, maxParallel) {
		if bin.Load > longest {
			longest = bin.Load
		}
	}
	return longest
}

type job struct {
	name string
	cost time.Duration
}

// packWave assigns jobs to at most maxParallel bins. Waves that fit get one bin
// per job; larger waves use LPT: jobs sorted by descending cost, each placed in
// the least-loaded bin (lowest index on ties).
func packWave(jobs []job, maxParallel int) []Bin {
	if len(jobs) <= maxParallel {
		bins := make([]Bin, len(jobs))
		for i, j := range jobs {
			bins[i] = Bin{Units: []string{j.name}, Load: j.cost}
		}
		return bins
	}

	sorted := make([]job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].cost > sorted[k].cost
	})

	bins := make([]Bin, maxParallel)
	for _, j := range sorted {
		target := 0
		for b := 1; b < len(bins); b++ {
			if bins[b].Load < bins[target].Load {
				target = b
			}
		}
		bins[target].Units = append(bins[target].Units, j.name)
		bins[target].Load += j.cost
	}

	return bins
}

func clampCost(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
