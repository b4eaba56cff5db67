package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/devkit/devkit/pkg/cache"
	"github.com/devkit/devkit/pkg/engine"
	"github.com/devkit/devkit/pkg/metrics"
	"github.com/devkit/devkit/pkg/telemetry"
)

const (
	// DefaultTTL is how long a successful install is trusted.
	DefaultTTL = 24 * time.Hour

	// DefaultEntryThreshold is the cache size above which clearing is suggested.
	DefaultEntryThreshold = 100

	// DefaultFailureRateThreshold is the failure ratio above which a unit is
	// flagged.
	DefaultFailureRateThreshold = 0.5

	// DefaultSlowThreshold is the average duration above which a label is
	// flagged as slow.
	DefaultSlowThreshold = 30 * time.Second

	// DefaultMinAttempts is the number of attempts needed before a failure
	// rate is reported.
	DefaultMinAttempts = 2

	// DefaultMissRatioThreshold and DefaultMinLookups gate the cache
	// effectiveness advisory.
	DefaultMissRatioThreshold = 0.8
	DefaultMinLookups         = 20

	// DefaultHistoryWindow is how many recent outcomes per unit count toward
	// its failure rate.
	DefaultHistoryWindow = 10

	// historyKey is the cache key under which unit histories persist.
	historyKey = "optimizer:history"

	// historyTTL bounds how long unit histories are kept.
	historyTTL = 30 * 24 * time.Hour
)

// keyEscaper percent-encodes the separator inside key parts.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// InstallKey returns the cache key for an install outcome,
// install:<unit>:<version>. Colons and percent signs inside unit or version
// are percent-encoded, so distinct pairs never share a key.
func InstallKey(unit, version string) string {
	return "install:" + keyEscaper.Replace(unit) + ":" + keyEscaper.Replace(version)
}

// SummarySource provides timing summaries. *metrics.Collector and
// *metrics.Synchronized implement it.
type SummarySource interface {
	Summaries() map[string]metrics.Summary
}

// Optimizer decides whether units need installing based on cached outcomes
// and produces advisory suggestions.
//
// Optimizer is not safe for concurrent use; see Synchronized.
type Optimizer struct {
	cache   *cache.Store
	timings SummarySource
	advisor Advisor
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	defaultTTL     time.Duration
	entryThreshold int
	failureRate    float64
	slowThreshold  time.Duration
	minAttempts    int
	missRatio      float64
	minLookups     int
	historyWindow  int

	history map[string]*UnitHistory
	now     func() time.Time
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithDefaultTTL sets the TTL used by MarkResult.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *Optimizer) {
		o.defaultTTL = ttl
	}
}

// WithEntryThreshold sets the cache entry count that triggers a clear suggestion.
func WithEntryThreshold(n int) Option {
	return func(o *Optimizer) {
		o.entryThreshold = n
	}
}

// WithFailureRateThreshold sets the failure ratio that flags a unit.
func WithFailureRateThreshold(rate float64) Option {
	return func(o *Optimizer) {
		o.failureRate = rate
	}
}

// WithSlowThreshold sets the average duration that flags a label as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *Optimizer) {
		o.slowThreshold = d
	}
}

// WithMinAttempts sets how many attempts a unit needs before its failure
// rate is considered.
func WithMinAttempts(n int) Option {
	return func(o *Optimizer) {
		o.minAttempts = n
	}
}

// WithHistoryWindow sets how many recent outcomes per unit are kept for
// failure rates. Values below 1 keep the default.
func WithHistoryWindow(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.historyWindow = n
		}
	}
}

// WithMetrics sets the timing source for slow operation suggestions.
func WithMetrics(src SummarySource) Option {
	return func(o *Optimizer) {
		o.timings = src
	}
}

// WithAdvisor adds a rule-based advisor to Suggestions.
func WithAdvisor(a Advisor) Option {
	return func(o *Optimizer) {
		o.advisor = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTelemetry sets the Prometheus sink for decisions and results.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(o *Optimizer) {
		o.metrics = m
	}
}

// WithClock sets the time source for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Optimizer over c and loads any persisted unit history.
func New(c *cache.Store, opts ...Option) (*Optimizer, error) {
	if c == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	o := &Optimizer{
		cache:          c,
		logger:         telemetry.NewNopLogger(),
		defaultTTL:     DefaultTTL,
		entryThreshold: DefaultEntryThreshold,
		failureRate:    DefaultFailureRateThreshold,
		slowThreshold:  DefaultSlowThreshold,
		minAttempts:    DefaultMinAttempts,
		missRatio:      DefaultMissRatioThreshold,
		minLookups:     DefaultMinLookups,
		historyWindow:  DefaultHistoryWindow,
		history:        make(map[string]*UnitHistory),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.defaultTTL < 0 {
		return nil, fmt.Errorf("default ttl must not be negative, got %s", o.defaultTTL)
	}

	c.Reserve(historyKey)

	var stored map[string]*UnitHistory
	if c.GetInto(context.Background(), historyKey, &stored) {
		for unit, h := range stored {
			if h != nil {
				o.history[unit] = h
			}
		}
	}

	return o, nil
}

// ShouldInstall reports whether unit at version needs to be installed. It is
// false only while a successful outcome is cached and unexpired.
func (o *Optimizer) ShouldInstall(unit, version string) bool {
	return o.ShouldInstallContext(context.Background(), unit, version)
}

// ShouldInstallContext is ShouldInstall with a context for the cache backend.
func (o *Optimizer) ShouldInstallContext(ctx context.Context, unit, version string) bool {
	logger := o.logger.WithUnit(unit, version)

	var result engine.InstallResult
	install := true
	if o.cache.GetInto(ctx, InstallKey(unit, version), &result) && result.Success {
		install = false
		logger.Info("using cached installation")
	} else {
		logger.Debug("installation required")
	}

	o.metrics.RecordInstallDecision(install)
	return install
}

// MarkResult records the outcome of installing unit at version with the
// default TTL.
func (o *Optimizer) MarkResult(unit, version string, success bool) error {
	return o.MarkResultTTL(context.Background(), unit, version, success, o.defaultTTL)
}

// MarkResultTTL records an install outcome that expires after ttl. A failed
// outcome makes ShouldInstall return true regardless of ttl.
func (o *Optimizer) MarkResultTTL(ctx context.Context, unit, version string, success bool, ttl time.Duration) error {
	if unit == "" {
		return engine.NewPermanentError("unit name is required", nil).WithCode(engine.ErrCodeValidation)
	}
	if ttl < 0 {
		return engine.NewPermanentError(fmt.Sprintf("ttl must not be negative, got %s", ttl), nil).
			WithCode(engine.ErrCodeValidation).
			WithUnit(unit)
	}

	now := o.now()
	result := engine.InstallResult{
		Unit:      unit,
		Version:   version,
		Success:   success,
		Timestamp: now,
	}
	if err := o.cache.Set(ctx, InstallKey(unit, version), result, ttl); err != nil {
		return fmt.Errorf("failed to record result for %s: %w", unit, err)
	}

	o.recordHistory(ctx, unit, version, success, now)
	o.metrics.RecordInstallResult(success)
	o.logger.WithUnit(unit, version).WithField("success", success).Debug("recorded install result")
	return nil
}

func (o *Optimizer) recordHistory(ctx context.Context, unit, version string, success bool, at time.Time) {
	h, ok := o.history[unit]
	if !ok {
		h = &UnitHistory{Unit: unit}
		o.history[unit] = h
	}
	h.Recent = append(h.Recent, success)
	if len(h.Recent) > o.historyWindow {
		h.Recent = append([]bool(nil), h.Recent[len(h.Recent)-o.historyWindow:]...)
	}
	h.Attempts = len(h.Recent)
	h.Failures = 0
	for _, ok := range h.Recent {
		if !ok {
			h.Failures++
		}
	}
	h.LastVersion = version
	h.LastSuccess = success
	h.LastAttempt = at

	if err := o.cache.Set(ctx, historyKey, o.history, historyTTL); err != nil {
		o.logger.WithError(err).Warn("failed to persist unit history")
	}
}

// History returns a copy of every unit history sorted by unit name.
func (o *Optimizer) History() []UnitHistory {
	out := make([]UnitHistory, 0, len(o.history))
	for _, h := range o.history {
		c := *h
		c.Recent = append([]bool(nil), h.Recent...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out
}
