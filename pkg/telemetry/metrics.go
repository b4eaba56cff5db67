package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics provides Prometheus metrics for devkit.
// A nil *Metrics and a disabled instance are both no-ops.
type Metrics struct {
	config MetricsConfig

	// Cache metrics
	cacheLookups   *prometheus.CounterVec
	cacheWrites    prometheus.Counter
	cacheEvictions *prometheus.CounterVec
	cacheEntries   prometheus.Gauge

	// Optimizer metrics
	installDecisions *prometheus.CounterVec
	installResults   *prometheus.CounterVec

	// Planning metrics
	plansBuilt   *prometheus.CounterVec
	planUnits    prometheus.Gauge
	planWaves    prometheus.Gauge
	planEstimate prometheus.Gauge

	// Run metrics
	runsCompleted  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	unitsExecuted  *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	operationTimes *prometheus.HistogramVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		cacheWrites: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Total number of cache writes",
			},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache entries removed by reason",
			},
			[]string{"reason"},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Number of cache entries at the last stats call",
			},
		),

		installDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "install_decisions_total",
				Help:      "Total number of install decisions by outcome",
			},
			[]string{"decision"},
		),
		installResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "install_results_total",
				Help:      "Total number of recorded install outcomes",
			},
			[]string{"status"},
		),

		plansBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_built_total",
				Help:      "Total number of plan builds by status",
			},
			[]string{"status"},
		),
		planUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plan_units",
				Help:      "Number of units in the last plan",
			},
		),
		planWaves: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plan_waves",
				Help:      "Number of waves in the last plan",
			},
		),
		planEstimate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plan_estimate_seconds",
				Help:      "Estimated duration of the last plan in seconds",
			},
		),

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of plan runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of plan runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		unitsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_executed_total",
				Help:      "Total number of units processed by final status",
			},
			[]string{"status"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_duration_seconds",
				Help:      "Duration of unit installs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		operationTimes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of timed operations in seconds",
				Buckets:   buckets,
			},
			[]string{"label"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.cacheLookups,
		m.cacheWrites,
		m.cacheEvictions,
		m.cacheEntries,
		m.installDecisions,
		m.installResults,
		m.plansBuilt,
		m.planUnits,
		m.planWaves,
		m.planEstimate,
		m.runsCompleted,
		m.runDuration,
		m.unitsExecuted,
		m.unitDuration,
		m.operationTimes,
		m.errorsByCode,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Cache Metrics

// RecordCacheLookup records a cache read. Result is one of hit, miss, expired
// or corrupt.
func (m *Metrics) RecordCacheLookup(result string) {
	if !m.enabled() {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheWrite records a cache write.
func (m *Metrics) RecordCacheWrite() {
	if !m.enabled() {
		return
	}
	m.cacheWrites.Inc()
}

// RecordCacheEviction records removed entries by reason (expired, corrupt,
// invalidated, cleared).
func (m *Metrics) RecordCacheEviction(reason string, count int) {
	if !m.enabled() || count <= 0 {
		return
	}
	m.cacheEvictions.WithLabelValues(reason).Add(float64(count))
}

// SetCacheEntries sets the current cache entry count.
func (m *Metrics) SetCacheEntries(count int) {
	if !m.enabled() {
		return
	}
	m.cacheEntries.Set(float64(count))
}

// Optimizer Metrics

// RecordInstallDecision records a should-install decision.
func (m *Metrics) RecordInstallDecision(install bool) {
	if !m.enabled() {
		return
	}
	decision := "skip"
	if install {
		decision = "install"
	}
	m.installDecisions.WithLabelValues(decision).Inc()
}

// RecordInstallResult records an install outcome.
func (m *Metrics) RecordInstallResult(success bool) {
	if !m.enabled() {
		return
	}
	status := "failed"
	if success {
		status = "succeeded"
	}
	m.installResults.WithLabelValues(status).Inc()
}

// Planning Metrics

// RecordPlanBuilt records a successful plan build.
func (m *Metrics) RecordPlanBuilt(units, waves int, estimate time.Duration) {
	if !m.enabled() {
		return
	}
	m.plansBuilt.WithLabelValues("ok").Inc()
	m.planUnits.Set(float64(units))
	m.planWaves.Set(float64(waves))
	m.planEstimate.Set(estimate.Seconds())
}

// RecordPlanFailed records a plan build that failed with the given error code.
func (m *Metrics) RecordPlanFailed(code string) {
	if !m.enabled() {
		return
	}
	m.plansBuilt.WithLabelValues("error").Inc()
	m.errorsByCode.WithLabelValues("permanent", code).Inc()
}

// Run Metrics

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordUnitExecution records a processed unit with its final status.
func (m *Metrics) RecordUnitExecution(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.unitsExecuted.WithLabelValues(status).Inc()
	m.unitDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveOperation records a timed operation sample under label.
func (m *Metrics) ObserveOperation(label string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.operationTimes.WithLabelValues(label).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.enabled() {
		return
	}
	m.errorsByCode.WithLabelValues(errorClass, errorCode).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gather returns the current metric families for in-process inspection.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	if !m.enabled() {
		return nil, nil
	}
	return m.registry.Gather()
}

// CounterValue returns the summed value of the named counter across all label
// values matching labels. It returns 0 if the metric is absent.
func (m *Metrics) CounterValue(name string, labels map[string]string) float64 {
	families, err := m.Gather()
	if err != nil {
		return 0
	}

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !labelsMatch(metric.GetLabel(), labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == k && p.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
