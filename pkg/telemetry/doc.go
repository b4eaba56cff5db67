// Package telemetry provides observability instrumentation for devkit.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus) and a small run event publisher behind one Telemetry value.
//
// # Usage
//
// Initialize telemetry once at startup and pass it down:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("optimizer")
//	logger.WithUnit("git", "2.43.0").Debug("cache hit")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Tracing
//
// Spans are created around plan builds, plan runs, unit installs and CLI
// commands. Supported exporters are "stdout", "otlp" (gRPC) and "none".
// When tracing is disabled spans are created but never sampled.
//
// # Metrics
//
// Every Metrics value owns a private registry so tests and embedders never
// collide on the default registry. Key series:
//
//   - devkit_cache_lookups_total{result}
//   - devkit_cache_evictions_total{reason}
//   - devkit_install_decisions_total{decision}
//   - devkit_install_results_total{status}
//   - devkit_plans_built_total{status}
//   - devkit_plan_estimate_seconds
//   - devkit_units_executed_total{status}
//   - devkit_operation_duration_seconds{label}
//
// Use Handler for HTTP exposition and Gather or CounterValue for in-process
// inspection.
//
// # Events
//
// The EventPublisher delivers run and unit events to subscribers, synchronously
// by default or from a buffered goroutine when EnableAsync is set.
package telemetry
