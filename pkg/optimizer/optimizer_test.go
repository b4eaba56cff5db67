package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devkit/devkit/pkg/cache"
	"github.com/devkit/devkit/pkg/engine"
	"github.com/devkit/devkit/pkg/metrics"
	"github.com/devkit/devkit/pkg/stores"
	"github.com/devkit/devkit/pkg/telemetry"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockAdvisor returns fixed advisories or an error.
type mockAdvisor struct {
	advice []string
	err    error
	input  AdvisoryInput
}

func (m *mockAdvisor) Advise(_ context.Context, input AdvisoryInput) ([]string, error) {
	m.input = input
	return m.advice, m.err
}

func setup(t *testing.T, opts ...Option) (*Optimizer, *cache.Store, *stores.MemoryStore, *testClock) {
	t.Helper()

	clock := newTestClock()
	backend := stores.NewMemoryStore()
	store, err := cache.New(backend, cache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	opt, err := New(store, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return opt, store, backend, clock
}

func TestNew(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("Expected error for nil cache")
	}

	store, _ := cache.New(stores.NewMemoryStore())
	if _, err := New(store, WithDefaultTTL(-time.Second)); err == nil {
		t.Error("Expected error for negative default TTL")
	}

	opt, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if opt.defaultTTL != DefaultTTL {
		t.Errorf("Expected default TTL %v, got %v", DefaultTTL, opt.defaultTTL)
	}
}

func TestInstallKey(t *testing.T) {
	tests := []struct {
		unit, version string
		want          string
	}{
		{"git", "2.44", "install:git:2.44"},
		{"lib", "1:2.0", "install:lib:1%3A2.0"},
		{"lib:1", "2.0", "install:lib%3A1:2.0"},
		{"pct", "50%", "install:pct:50%25"},
	}

	for _, tt := range tests {
		if got := InstallKey(tt.unit, tt.version); got != tt.want {
			t.Errorf("InstallKey(%q, %q) = %q, want %q", tt.unit, tt.version, got, tt.want)
		}
	}
}

func TestShouldInstall_ColonInNameOrVersion(t *testing.T) {
	pairs := [][2]string{
		{"lib", "1:2.0"},
		{"lib:1", "2.0"},
		{"lib:1:2.0", ""},
		{"lib%3A1", "2.0"},
	}

	for i, marked := range pairs {
		opt, _, _, _ := setup(t)
		if err := opt.MarkResult(marked[0], marked[1], true); err != nil {
			t.Fatalf("MarkResult(%q, %q) error = %v", marked[0], marked[1], err)
		}

		for j, other := range pairs {
			if i == j {
				continue
			}
			if !opt.ShouldInstall(other[0], other[1]) {
				t.Errorf("after marking %q@%q, never-seen %q@%q was reported as installed",
					marked[0], marked[1], other[0], other[1])
			}
		}
	}
}

func TestShouldInstall_NeverSeen(t *testing.T) {
	opt, _, _, _ := setup(t)

	if !opt.ShouldInstall("git", "2.44") {
		t.Error("Expected never-seen unit to need installation")
	}
}

func TestShouldInstall_SuccessWithinTTL(t *testing.T) {
	opt, _, _, clock := setup(t)

	if err := opt.MarkResult("git", "2.44", true); err != nil {
		t.Fatalf("MarkResult() error = %v", err)
	}
	if opt.ShouldInstall("git", "2.44") {
		t.Error("Expected cached success to skip installation")
	}

	// Other versions are unaffected.
	if !opt.ShouldInstall("git", "2.45") {
		t.Error("Expected different version to need installation")
	}

	clock.Advance(DefaultTTL - time.Second)
	if opt.ShouldInstall("git", "2.44") {
		t.Error("Expected success to hold until the TTL elapses")
	}

	clock.Advance(time.Second)
	if !opt.ShouldInstall("git", "2.44") {
		t.Error("Expected installation to be needed after expiry")
	}
}

func TestShouldInstall_FailureAlwaysInstalls(t *testing.T) {
	opt, _, _, _ := setup(t)

	if err := opt.MarkResultTTL(context.Background(), "node", "20", false, time.Hour); err != nil {
		t.Fatalf("MarkResultTTL() error = %v", err)
	}
	if !opt.ShouldInstall("node", "20") {
		t.Error("Expected failed install to be retried")
	}

	// The most recent outcome wins.
	_ = opt.MarkResult("node", "20", true)
	if opt.ShouldInstall("node", "20") {
		t.Error("Expected later success to skip installation")
	}
	_ = opt.MarkResult("node", "20", false)
	if !opt.ShouldInstall("node", "20") {
		t.Error("Expected later failure to require installation")
	}
}

func TestMarkResult_ExplicitTTL(t *testing.T) {
	opt, store, _, clock := setup(t, WithDefaultTTL(time.Hour))

	ctx := context.Background()
	_ = opt.MarkResultTTL(ctx, "go", "1.25", true, 10*time.Minute)

	clock.Advance(10 * time.Minute)
	if !opt.ShouldInstall("go", "1.25") {
		t.Error("Expected explicit TTL to override the default")
	}

	_ = opt.MarkResult("go", "1.25", true)
	entry, ok := store.Lookup(ctx, InstallKey("go", "1.25"))
	if !ok {
		t.Fatal("Expected stored result")
	}
	if entry.TTL != time.Hour {
		t.Errorf("Expected default TTL of 1h, got %v", entry.TTL)
	}

	var result engine.InstallResult
	if err := entry.Decode(&result); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if result.Unit != "go" || result.Version != "1.25" || !result.Success || !result.Timestamp.Equal(clock.Now()) {
		t.Errorf("Unexpected stored result: %+v", result)
	}
}

func TestMarkResult_Validation(t *testing.T) {
	opt, _, _, _ := setup(t)

	if err := opt.MarkResult("", "1", true); !engine.IsValidation(err) {
		t.Errorf("Expected validation error for empty unit, got %v", err)
	}
	if err := opt.MarkResultTTL(context.Background(), "x", "1", true, -time.Second); !engine.IsValidation(err) {
		t.Errorf("Expected validation error for negative TTL, got %v", err)
	}
}

func TestShouldInstall_CorruptRecord(t *testing.T) {
	opt, _, backend, _ := setup(t)

	_ = backend.Put(context.Background(), cache.KeyID(InstallKey("git", "1")), []byte("garbage"))
	if !opt.ShouldInstall("git", "1") {
		t.Error("Expected corrupt record to be treated as not installed")
	}
}

func TestHistory_PersistsAcrossInstances(t *testing.T) {
	opt, store, _, _ := setup(t)

	_ = opt.MarkResult("brew", "4", false)
	_ = opt.MarkResult("brew", "4", true)
	_ = opt.MarkResult("asdf", "0.14", true)

	history := opt.History()
	if len(history) != 2 || history[0].Unit != "asdf" {
		t.Fatalf("Expected sorted history for asdf and brew, got %+v", history)
	}
	if brew := history[1]; brew.Attempts != 2 || brew.Failures != 1 || !brew.LastSuccess {
		t.Errorf("Unexpected brew history: %+v", brew)
	}

	reloaded, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := reloaded.History(); len(got) != 2 || got[1].Attempts != 2 {
		t.Errorf("Expected history to be reloaded from the cache, got %+v", got)
	}
}

func TestHistory_NotCountedAsEntry(t *testing.T) {
	opt, store, _, _ := setup(t)

	_ = opt.MarkResult("git", "2.44", true)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCount != 1 || stats.Reserved != 1 {
		t.Errorf("Expected 1 result entry and 1 reserved history entry, got %d and %d", stats.EntryCount, stats.Reserved)
	}
}

func TestHistory_RecentWindow(t *testing.T) {
	opt, _, _, _ := setup(t, WithHistoryWindow(4))

	for i := 0; i < 3; i++ {
		_ = opt.MarkResult("python", "3.11", false)
	}
	if got := opt.Suggestions(); len(got) != 1 || got[0] != "Investigate python: 3 of 3 installs failed" {
		t.Fatalf("Expected a failure suggestion, got %v", got)
	}

	for i := 0; i < 4; i++ {
		_ = opt.MarkResult("python", "3.12", true)
	}

	h := opt.History()[0]
	if h.Attempts != 4 || h.Failures != 0 || len(h.Recent) != 4 {
		t.Errorf("Expected only the last 4 outcomes to count, got %+v", h)
	}
	if got := opt.Suggestions(); len(got) != 0 {
		t.Errorf("Expected a fixed unit to stop being flagged, got %v", got)
	}
}

func TestSuggestions_Empty(t *testing.T) {
	opt, _, _, _ := setup(t)

	if got := opt.Suggestions(); len(got) != 0 {
		t.Errorf("Expected no suggestions, got %v", got)
	}
}

func TestSuggestions_Builtin(t *testing.T) {
	collector := metrics.NewCollector()
	_ = collector.Record("install:xcode", 45*time.Second)
	_ = collector.Record("install:git", 2*time.Second)

	opt, store, _, _ := setup(t, WithEntryThreshold(3), WithMetrics(collector))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = store.Set(ctx, fmt.Sprintf("k%d", i), i, time.Hour)
	}
	_ = opt.MarkResult("python", "3.12", false)
	_ = opt.MarkResult("python", "3.12", false)
	_ = opt.MarkResult("ruby", "3.3", false)

	got := opt.Suggestions()
	if len(got) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d: %v", len(got), got)
	}
	if !strings.HasPrefix(got[0], "Clear cache (") || !strings.HasSuffix(got[0], "devkit cache clear") {
		t.Errorf("Unexpected cache suggestion: %q", got[0])
	}
	if got[1] != "Investigate python: 2 of 2 installs failed" {
		t.Errorf("Unexpected failure suggestion: %q", got[1])
	}
	if got[2] != "Slow operation detected (install:xcode): avg 45.00s" {
		t.Errorf("Unexpected slow suggestion: %q", got[2])
	}
}

func TestSuggestions_DoNotAffectDecisions(t *testing.T) {
	opt, _, _, _ := setup(t, WithEntryThreshold(0))

	_ = opt.MarkResult("git", "2", true)
	if len(opt.Suggestions()) == 0 {
		t.Fatal("Expected a clear cache suggestion")
	}
	if opt.ShouldInstall("git", "2") {
		t.Error("Expected suggestions to leave decisions unchanged")
	}
}

func TestSuggestions_Advisor(t *testing.T) {
	advisor := &mockAdvisor{advice: []string{"zeta advice", "alpha advice"}}
	opt, _, _, _ := setup(t, WithAdvisor(advisor), WithMinAttempts(1))

	_ = opt.MarkResult("jq", "1.7", false)

	got := opt.Suggestions()
	want := []string{
		"Investigate jq: 1 of 1 installs failed",
		"alpha advice",
		"zeta advice",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Suggestions() = %v, want %v", got, want)
	}

	if len(advisor.input.Units) != 1 || advisor.input.Thresholds.MinAttempts != 1 {
		t.Errorf("Unexpected advisory input: %+v", advisor.input)
	}
}

func TestSuggestions_AdvisorErrorIgnored(t *testing.T) {
	advisor := &mockAdvisor{err: errors.New("rego failed")}
	opt, _, _, _ := setup(t, WithAdvisor(advisor), WithEntryThreshold(0))

	_ = opt.MarkResult("git", "2", true)
	if got := opt.Suggestions(); len(got) != 1 {
		t.Errorf("Expected built-in suggestions despite advisor error, got %v", got)
	}
}

func TestOptimizer_Telemetry(t *testing.T) {
	m, _ := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	opt, _, _, _ := setup(t, WithTelemetry(m))

	opt.ShouldInstall("git", "2")
	_ = opt.MarkResult("git", "2", true)
	opt.ShouldInstall("git", "2")

	if got := m.CounterValue("devkit_install_decisions_total", map[string]string{"decision": "skip"}); got != 1 {
		t.Errorf("Expected 1 skip decision, got %v", got)
	}
	if got := m.CounterValue("devkit_install_decisions_total", map[string]string{"decision": "install"}); got != 1 {
		t.Errorf("Expected 1 install decision, got %v", got)
	}
}

func TestSynchronized_ConcurrentWorkers(t *testing.T) {
	opt, _, _, _ := setup(t)
	s := NewSynchronized(opt)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := fmt.Sprintf("unit-%d", i)
			if !s.ShouldInstall(unit, "1") {
				t.Errorf("Expected %s to need installation", unit)
			}
			if err := s.MarkResult(unit, "1", true); err != nil {
				t.Errorf("MarkResult() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		if s.ShouldInstall(fmt.Sprintf("unit-%d", i), "1") {
			t.Errorf("Expected unit-%d to be cached", i)
		}
	}
	if len(opt.History()) != 10 {
		t.Errorf("Expected 10 histories, got %d", len(opt.History()))
	}
	_ = s.Suggestions()
	if err := s.MarkResultTTL(context.Background(), "x", "1", false, time.Minute); err != nil {
		t.Errorf("MarkResultTTL() error = %v", err)
	}
}

// Optimizer satisfies the engine's decider and recorder contracts.
var (
	_ engine.InstallDecider = (*Optimizer)(nil)
	_ engine.ResultRecorder = (*Optimizer)(nil)
	_ engine.InstallDecider = (*Synchronized)(nil)
	_ engine.ResultRecorder = (*Synchronized)(nil)
)
