package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devkit/devkit/pkg/cache"
	"github.com/devkit/devkit/pkg/config"
	"github.com/devkit/devkit/pkg/engine"
	"github.com/devkit/devkit/pkg/metrics"
	"github.com/devkit/devkit/pkg/optimizer"
	"github.com/devkit/devkit/pkg/policy"
	"github.com/devkit/devkit/pkg/stores"
	"github.com/devkit/devkit/pkg/telemetry"
)

// backend is a cache backend that holds resources.
type backend interface {
	cache.Backend
	Close() error
}

// app holds the components a command works with.
type app struct {
	settings  *config.Settings
	telemetry *telemetry.Telemetry
	logger    *telemetry.Logger
	backend   backend
	cache     *cache.Store
	timings   *metrics.Collector
	optimizer *optimizer.Optimizer
	policies  *policy.Engine

	stopJanitor context.CancelFunc
}

// newApp loads settings and wires telemetry, the cache, timings, policies
// and the optimizer.
func newApp(ctx context.Context, info buildInfo) (*app, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(settings.Telemetry(info.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		settings:  settings,
		telemetry: tel,
		logger:    tel.Logger.NewComponentLogger("cli"),
	}

	a.backend, err = openBackend(ctx, settings.Cache)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	a.cache, err = cache.New(a.backend,
		cache.WithLogger(tel.Logger),
		cache.WithMetrics(tel.Metrics),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.cache.Reserve(timingsKey)

	if settings.Cache.JanitorInterval > 0 {
		janitorCtx, cancel := context.WithCancel(ctx)
		a.stopJanitor = cancel
		a.cache.StartJanitor(janitorCtx, settings.Cache.JanitorInterval)
	}

	a.timings = metrics.NewCollector(metrics.WithObserver(tel.Metrics))
	if err := loadTimings(ctx, a.cache, a.timings); err != nil {
		a.logger.WithError(err).Warn("failed to load recorded timings")
	}

	a.policies, err = policy.NewEngine(ctx,
		policy.WithLogger(tel.Logger),
		policy.WithEventPublisher(tel.Events),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if dir := settings.Optimizer.PolicyDir; dir != "" {
		if _, statErr := os.Stat(dir); statErr == nil {
			if err := a.policies.LoadPolicies(ctx, []string{dir}); err != nil {
				a.logger.WithField("dir", dir).WithError(err).Warn("failed to load custom policies")
			}
		}
	}

	a.optimizer, err = optimizer.New(a.cache,
		optimizer.WithDefaultTTL(settings.Cache.DefaultTTL),
		optimizer.WithEntryThreshold(settings.Cache.EntryThreshold),
		optimizer.WithFailureRateThreshold(settings.Optimizer.FailureRateThreshold),
		optimizer.WithSlowThreshold(settings.Optimizer.SlowThreshold),
		optimizer.WithMinAttempts(settings.Optimizer.MinAttempts),
		optimizer.WithMetrics(a.timings),
		optimizer.WithAdvisor(a.policies),
		optimizer.WithLogger(tel.Logger),
		optimizer.WithTelemetry(tel.Metrics),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"backend":  settings.Cache.Backend,
		"location": a.cache.Location(),
	}).Debug("devkit initialized")

	return a, nil
}

// openBackend opens the configured cache backend.
func openBackend(ctx context.Context, s config.CacheSettings) (backend, error) {
	switch s.Backend {
	case "memory":
		return stores.NewMemoryStore(), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(s.SQLitePath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		return stores.OpenSQLiteStore(ctx, s.SQLitePath)
	default:
		return stores.NewFileStore(s.Dir)
	}
}

// Close releases every resource held by the app.
func (a *app) Close(ctx context.Context) {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.policies != nil {
		_ = a.policies.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close cache backend")
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Debug("telemetry shutdown failed")
	}
}

// withApp runs fn inside a command span with a fully wired app.
func withApp(cmd *cobra.Command, info buildInfo, name string, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := newApp(cmd.Context(), info)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))

	ctx, span := a.telemetry.Tracer.StartCommandSpan(cmd.Context(), name)
	defer func() {
		if err != nil {
			a.telemetry.Metrics.RecordError(errorClass(err), errorCode(err))
		}
		telemetry.EndSpan(span, err)
	}()

	ctx = a.telemetry.WithContext(ctx)
	return fn(ctx, a)
}

// errorCode returns the engine error code of err, or "unknown".
func errorCode(err error) string {
	var ee *engine.EngineError
	switch {
	case engine.IsCycle(err):
		return engine.ErrCodeCycle
	case engine.IsUnknownDependency(err):
		return engine.ErrCodeUnknownDep
	case errors.As(err, &ee) && ee.Code != "":
		return ee.Code
	default:
		return "unknown"
	}
}

// errorClass returns the engine error class of err, or "unknown".
func errorClass(err error) string {
	var ee *engine.EngineError
	switch {
	case engine.IsCycle(err), engine.IsUnknownDependency(err):
		return string(engine.ErrorClassPermanent)
	case errors.As(err, &ee) && ee.Class != "":
		return string(ee.Class)
	default:
		return "unknown"
	}
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
