package telemetry_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devkit/devkit/pkg/telemetry"
)

// Example_structuredLogging demonstrates JSON logging with unit fields.
func Example_structuredLogging() {
	var buf bytes.Buffer
	logger := telemetry.NewLoggerWithWriter(&buf, telemetry.LoggingConfig{
		Level:  "debug",
		Format: "json",
	})

	logger.NewComponentLogger("optimizer").
		WithUnit("git", "2.43.0").
		Info("cache hit")

	line := buf.String()
	fmt.Println(strings.Contains(line, `"component":"optimizer"`))
	fmt.Println(strings.Contains(line, `"unit":"git"`))
	fmt.Println(strings.Contains(line, `"message":"cache hit"`))
	// Output:
	// true
	// true
	// true
}

// Example_metricsCollection demonstrates recording and reading metrics.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		panic(err)
	}

	metrics.RecordCacheLookup("hit")
	metrics.RecordCacheLookup("hit")
	metrics.RecordCacheLookup("miss")
	metrics.RecordInstallDecision(true)
	metrics.ObserveOperation("install:git", 3*time.Second)

	fmt.Println(metrics.CounterValue("devkit_cache_lookups_total", map[string]string{"result": "hit"}))
	fmt.Println(metrics.CounterValue("devkit_cache_lookups_total", nil))
	fmt.Println(metrics.CounterValue("devkit_operation_duration_seconds", map[string]string{"label": "install:git"}))
	// Output:
	// 2
	// 3
	// 1
}

// Example_eventPublishing demonstrates synchronous event delivery.
func Example_eventPublishing() {
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		panic(err)
	}
	defer events.Shutdown(context.Background())

	events.Subscribe(func(e telemetry.Event) {
		fmt.Printf("%s %s\n", e.Type, e.Unit)
	}, telemetry.FilterByType(telemetry.EventTypeUnitFailed, telemetry.EventTypeUnitSkipped))

	_ = events.PublishUnitStarted("plan-1", "git", 0)
	_ = events.PublishUnitFailed("plan-1", "git", "exit status 1")
	_ = events.PublishUnitSkipped("plan-1", "git-lfs", "dependency git failed")
	// Output:
	// unit.failed git
	// unit.skipped git-lfs
}
