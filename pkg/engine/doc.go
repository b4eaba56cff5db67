// Package engine plans and runs batches of installation units.
//
// # Overview
//
// A unit is a named, optionally versioned thing to install (a package, a
// toolchain, a language runtime) together with the names of the units it
// depends on. The engine turns a batch of units into a Plan:
//
//  1. Layer - Group units into waves with Kahn's algorithm (DAGBuilder)
//  2. Decide - Ask an InstallDecider which units still need installing
//  3. Estimate - Pack each wave onto a bounded worker pool (LPT)
//  4. Run - Execute the plan wave by wave (WaveRunner)
//
// # Waves
//
// Wave 0 holds every unit with no in-batch dependencies. Wave i+1 holds the
// units whose dependencies all sit in waves 0..i. Units inside a wave keep the
// order they had in the input batch, so the same batch always yields the same
// waves.
//
// Dependencies on names outside the batch are treated as already satisfied.
// Use WithStrictDependencies to reject them instead:
//
//	builder := engine.NewDAGBuilder(engine.WithStrictDependencies(true))
//	waves, err := builder.ComputeWaves(units)
//	if engine.IsUnknownDependency(err) {
//	    // a unit names a dependency that is not in the batch
//	}
//
// A cycle produces a *CycleError whose Cycle field lists the units on the
// cycle in dependency order, first unit repeated at the end.
//
// # Estimation
//
// EstimateDuration assigns each unit a cost and sums, over all waves, the
// makespan of that wave on maxParallel workers. A wave that fits in the pool
// costs its longest unit; larger waves are packed longest-first onto the least
// loaded worker.
//
// # Running
//
// WaveRunner never installs anything itself. The caller passes a UnitFunc and
// the runner reports outcomes to a ResultRecorder and durations to a
// DurationRecorder:
//
//	runner, err := engine.NewWaveRunner(4,
//	    engine.WithResultRecorder(opt),
//	    engine.WithDurationRecorder(collector),
//	)
//	report, err := runner.Run(ctx, plan, install)
//
// A unit whose in-batch dependency failed is skipped, not run.
//
// # Errors
//
// Errors are EngineError values classified as transient or permanent and
// tagged with a code such as ErrCodeValidation or ErrCodeCycle.
package engine
