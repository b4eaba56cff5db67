package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devkit/devkit/pkg/telemetry"
)

// WaveRunner executes a plan wave by wave. Units within a wave run on at most
// maxParallel goroutines; wave i+1 starts only after every unit of wave i has
// finished. The runner never installs anything itself: the caller supplies a
// UnitFunc.
type WaveRunner struct {
	// maxParallel is the maximum number of concurrent workers per wave
	maxParallel int

	// recorder receives install outcomes
	recorder ResultRecorder

	// timings receives per-unit durations
	timings DurationRecorder

	// events publishes run and unit events
	events *telemetry.EventPublisher

	// metrics records run and unit counters
	metrics *telemetry.Metrics

	// tracer wraps runs and units in spans
	tracer *telemetry.Tracer

	logger *telemetry.Logger

	// recordMu serializes calls into recorder and timings, which are not
	// safe for concurrent use
	recordMu sync.Mutex

	// mu protects results during a run
	mu sync.Mutex

	now func() time.Time
}

// RunnerOption configures a WaveRunner.
type RunnerOption func(*WaveRunner)

// WithResultRecorder sets where install outcomes are recorded.
func WithResultRecorder(r ResultRecorder) RunnerOption {
	return func(w *WaveRunner) {
		w.recorder = r
	}
}

// WithDurationRecorder sets where unit durations are recorded.
func WithDurationRecorder(d DurationRecorder) RunnerOption {
	return func(w *WaveRunner) {
		w.timings = d
	}
}

// WithEventPublisher sets the event publisher for run and unit events.
func WithEventPublisher(ep *telemetry.EventPublisher) RunnerOption {
	return func(w *WaveRunner) {
		w.events = ep
	}
}

// WithRunnerMetrics sets the Prometheus metrics sink.
func WithRunnerMetrics(m *telemetry.Metrics) RunnerOption {
	return func(w *WaveRunner) {
		w.metrics = m
	}
}

// WithRunnerTracer sets the tracer used for run and unit spans.
func WithRunnerTracer(t *telemetry.Tracer) RunnerOption {
	return func(w *WaveRunner) {
		w.tracer = t
	}
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(l *telemetry.Logger) RunnerOption {
	return func(w *WaveRunner) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWaveRunner creates a runner with the given worker limit.
func NewWaveRunner(maxParallel int, opts ...RunnerOption) (*WaveRunner, error) {
	if maxParallel < 1 {
		return nil, NewPermanentError(fmt.Sprintf("max parallel must be at least 1, got %d", maxParallel), nil).
			WithCode(ErrCodeValidation)
	}

	w := &WaveRunner{
		maxParallel: maxParallel,
		logger:      telemetry.NewNopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run executes plan with fn. Units the plan marks as already installed are
// reported as cached without calling fn. A unit whose in-batch dependency did
// not succeed is skipped. Cancelling ctx stops the run after the current wave;
// units that never started are reported as cancelled and the returned error
// carries ErrCodeCancelled. Unit failures are reported in the RunReport, not
// as an error.
func (w *WaveRunner) Run(ctx context.Context, plan *Plan, fn UnitFunc) (*RunReport, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}
	if fn == nil {
		return nil, NewPermanentError("unit function is nil", nil).WithCode(ErrCodeValidation)
	}

	specs := make(map[string]UnitSpec, len(plan.Units))
	for _, u := range plan.Units {
		specs[u.Name] = u
	}

	report := &RunReport{
		PlanID:    plan.ID,
		Status:    RunStatusRunning,
		Results:   make(map[string]*UnitResult, len(plan.Units)),
		StartedAt: w.now(),
	}
	for level, wave := range plan.Waves {
		for _, name := range wave {
			report.Results[name] = &UnitResult{Unit: name, Wave: level, Status: UnitStatusPending}
		}
	}

	logger := w.logger.WithPlanID(plan.ID)
	_ = w.events.PublishRunStarted(plan.ID, len(plan.Units), len(plan.Waves))
	logger.Infof("running plan: %d units in %d waves", len(plan.Units), len(plan.Waves))

	runCtx := ctx
	if w.tracer != nil {
		spanCtx, span := w.tracer.StartRunSpan(ctx, plan.ID)
		runCtx = spanCtx
		defer span.End()
	}

	var runErr error
	for level, wave := range plan.Waves {
		if err := runCtx.Err(); err != nil {
			runErr = NewPermanentError("run cancelled", err).WithCode(ErrCodeCancelled)
			w.cancelRemaining(report, plan.Waves[level:], err)
			break
		}

		w.runWave(runCtx, plan, report, specs, level, wave, fn)
	}

	w.finish(report)
	if runErr != nil {
		report.Status = RunStatusCancelled
	}

	w.metrics.RecordRunCompleted(string(report.Status), report.Duration)
	_ = w.events.PublishRunCompleted(plan.ID, string(report.Status), report.Duration)
	logger.Infof("plan finished with status %s in %s", report.Status, report.Duration)

	return report, runErr
}

// runWave executes one wave and returns when every unit in it is terminal.
func (w *WaveRunner) runWave(
	ctx context.Context,
	plan *Plan,
	report *RunReport,
	specs map[string]UnitSpec,
	level int,
	wave Wave,
	fn UnitFunc,
) {
	var g errgroup.Group
	g.SetLimit(w.maxParallel)

	for _, name := range wave {
		spec, ok := specs[name]
		if !ok {
			spec = UnitSpec{Name: name}
		}

		if !plan.NeedsInstall(name) {
			w.setResult(report, name, UnitStatusCached, 0, nil, plan.Decisions[name].Reason)
			_ = w.events.PublishUnitSkipped(plan.ID, name, "already installed")
			w.metrics.RecordUnitExecution(string(UnitStatusCached), 0)
			continue
		}

		if failed := w.blockingDependency(report, spec); failed != "" {
			reason := fmt.Sprintf("dependency %s did not complete", failed)
			err := NewPermanentError(reason, nil).
				WithCode(ErrCodeDependencyFailed).
				WithUnit(name)
			w.setResult(report, name, UnitStatusSkipped, 0, err, reason)
			_ = w.events.PublishUnitSkipped(plan.ID, name, reason)
			w.metrics.RecordUnitExecution(string(UnitStatusSkipped), 0)
			continue
		}

		g.Go(func() error {
			w.executeUnit(ctx, plan, report, spec, level, fn)
			return nil
		})
	}

	// Goroutines never return errors; failures live in the report.
	_ = g.Wait()
}

// executeUnit runs fn for a single unit and records its outcome.
func (w *WaveRunner) executeUnit(
	ctx context.Context,
	plan *Plan,
	report *RunReport,
	spec UnitSpec,
	level int,
	fn UnitFunc,
) {
	logger := w.logger.WithPlanID(plan.ID).WithUnit(spec.Name, spec.Version)

	unitCtx := ctx
	var endSpan func(error)
	if w.tracer != nil {
		spanCtx, span := w.tracer.StartUnitSpan(ctx, spec.Name, spec.Version, level)
		unitCtx = spanCtx
		endSpan = func(err error) { telemetry.EndSpan(span, err) }
	}

	w.setResult(report, spec.Name, UnitStatusRunning, 0, nil, "")
	_ = w.events.PublishUnitStarted(plan.ID, spec.Name, level)

	start := w.now()
	err := fn(unitCtx, spec)
	elapsed := w.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	if endSpan != nil {
		endSpan(err)
	}

	w.record(logger, spec, err == nil, elapsed)

	if err != nil {
		w.setResult(report, spec.Name, UnitStatusFailed, elapsed, err, err.Error())
		_ = w.events.PublishUnitFailed(plan.ID, spec.Name, err.Error())
		w.metrics.RecordUnitExecution(string(UnitStatusFailed), elapsed)
		logger.WithError(err).Warn("install failed")
		return
	}

	w.setResult(report, spec.Name, UnitStatusSucceeded, elapsed, nil, "installed")
	_ = w.events.PublishUnitCompleted(plan.ID, spec.Name, elapsed)
	w.metrics.RecordUnitExecution(string(UnitStatusSucceeded), elapsed)
	logger.Debugf("installed in %s", elapsed)
}

// record forwards an outcome to the recorder and timing sink under recordMu.
func (w *WaveRunner) record(logger *telemetry.Logger, spec UnitSpec, success bool, elapsed time.Duration) {
	w.recordMu.Lock()
	defer w.recordMu.Unlock()

	if w.recorder != nil {
		if err := w.recorder.MarkResult(spec.Name, spec.Version, success); err != nil {
			logger.WithError(err).Warn("failed to record install result")
		}
	}
	if w.timings != nil {
		if err := w.timings.Record("install:"+spec.Name, elapsed); err != nil {
			logger.WithError(err).Warn("failed to record install duration")
		}
	}
}

// blockingDependency returns the first in-batch dependency of spec that did
// not end in a satisfied state, or "" if all are satisfied.
func (w *WaveRunner) blockingDependency(report *RunReport, spec UnitSpec) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, dep := range spec.Dependencies {
		res, inBatch := report.Results[dep]
		if !inBatch {
			continue
		}
		if !res.Status.Satisfied() {
			return dep
		}
	}
	return ""
}

// cancelRemaining marks every pending unit in waves as cancelled.
func (w *WaveRunner) cancelRemaining(report *RunReport, waves []Wave, cause error) {
	for _, wave := range waves {
		for _, name := range wave {
			w.setResult(report, name, UnitStatusCancelled, 0,
				NewPermanentError("run cancelled", cause).WithCode(ErrCodeCancelled).WithUnit(name),
				"run cancelled")
		}
	}
}

// setResult updates the result of a unit.
func (w *WaveRunner) setResult(report *RunReport, name string, status UnitStatus, d time.Duration, err error, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res, ok := report.Results[name]
	if !ok {
		res = &UnitResult{Unit: name}
		report.Results[name] = res
	}
	res.Status = status
	res.Duration = d
	res.Error = err
	res.Reason = reason
}

// finish computes the summary and final status of a run.
func (w *WaveRunner) finish(report *RunReport) {
	w.mu.Lock()
	defer w.mu.Unlock()

	report.CompletedAt = w.now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)

	summary := RunSummary{Total: len(report.Results)}
	for _, res := range report.Results {
		switch res.Status {
		case UnitStatusSucceeded:
			summary.Succeeded++
		case UnitStatusFailed:
			summary.Failed++
		case UnitStatusCached:
			summary.Cached++
		case UnitStatusSkipped:
			summary.Skipped++
		case UnitStatusCancelled:
			summary.Cancelled++
		}
	}
	report.Summary = summary

	switch {
	case summary.Failed > 0 && summary.Succeeded+summary.Cached > 0:
		report.Status = RunStatusPartial
	case summary.Failed > 0:
		report.Status = RunStatusFailed
	case summary.Skipped > 0 || summary.Cancelled > 0:
		report.Status = RunStatusPartial
	default:
		report.Status = RunStatusSucceeded
	}
}
