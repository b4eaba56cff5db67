package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devkit/devkit/pkg/telemetry"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func TestCollector_StartStop(t *testing.T) {
	clock := newStepClock()
	c := NewCollector(WithClock(clock.Now))

	tok, err := c.Start("install:git")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if tok.ID == "" || tok.Label != "install:git" {
		t.Errorf("Unexpected token: %+v", tok)
	}

	clock.Advance(1500 * time.Millisecond)
	elapsed, err := c.Stop("install:git", tok)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s, got %v", elapsed)
	}

	if s := c.Summary("install:git"); s.Count != 1 || s.Total != elapsed {
		t.Errorf("Unexpected summary: %+v", s)
	}
}

func TestCollector_StopErrors(t *testing.T) {
	c := NewCollector()

	tok, _ := c.Start("a")

	if _, err := c.Stop("b", tok); !errors.Is(err, ErrLabelMismatch) {
		t.Errorf("Expected ErrLabelMismatch, got %v", err)
	}
	if _, err := c.Stop("a", tok); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := c.Stop("a", tok); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Expected ErrUnknownToken on second stop, got %v", err)
	}
	if _, err := c.Stop("a", Token{ID: "never-started"}); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("Expected ErrUnknownToken for unknown token, got %v", err)
	}
	if _, err := c.Start(""); !errors.Is(err, ErrEmptyLabel) {
		t.Errorf("Expected ErrEmptyLabel, got %v", err)
	}
}

func TestCollector_Record(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		d       time.Duration
		wantErr error
	}{
		{name: "valid", label: "x", d: time.Second},
		{name: "zero duration", label: "x", d: 0},
		{name: "negative duration", label: "x", d: -time.Second, wantErr: ErrNegativeDuration},
		{name: "empty label", label: "", d: time.Second, wantErr: ErrEmptyLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector()
			err := c.Record(tt.label, tt.d)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Record() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && len(c.Samples(tt.label)) != 0 {
				t.Error("Expected rejected sample not to be stored")
			}
		})
	}
}

func TestCollector_Summary(t *testing.T) {
	c := NewCollector()
	for _, d := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		_ = c.Record("brew", d)
	}

	s := c.Summary("brew")
	want := Summary{
		Count: 3,
		Min:   time.Second,
		Max:   3 * time.Second,
		Avg:   2 * time.Second,
		Total: 6 * time.Second,
	}
	if s != want {
		t.Errorf("Summary() = %+v, want %+v", s, want)
	}

	if zero := c.Summary("unknown"); zero != (Summary{}) {
		t.Errorf("Expected zero summary for unknown label, got %+v", zero)
	}
}

func TestCollector_LabelsAreIndependent(t *testing.T) {
	c := NewCollector()
	_ = c.Record("b", time.Second)
	_ = c.Record("a", 5*time.Second)
	_ = c.Record("a", 7*time.Second)

	if labels := c.Labels(); len(labels) != 2 || labels[0] != "a" || labels[1] != "b" {
		t.Errorf("Expected sorted labels [a b], got %v", labels)
	}

	all := c.Summaries()
	if all["a"].Count != 2 || all["b"].Count != 1 {
		t.Errorf("Unexpected summaries: %+v", all)
	}

	samples := c.Samples("a")
	samples[0].Duration = time.Hour
	if c.Samples("a")[0].Duration != 5*time.Second {
		t.Error("Expected Samples to return a copy")
	}
}

func TestCollector_Time(t *testing.T) {
	clock := newStepClock()
	c := NewCollector(WithClock(clock.Now))

	boom := errors.New("boom")
	err := c.Time("step", func() error {
		clock.Advance(2 * time.Second)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected fn error to be returned, got %v", err)
	}
	if s := c.Summary("step"); s.Count != 1 || s.Total != 2*time.Second {
		t.Errorf("Expected 2s sample recorded even on error, got %+v", s)
	}
}

func TestCollector_Report(t *testing.T) {
	c := NewCollector()
	if got := c.Report(); got != "No metrics recorded\n" {
		t.Errorf("Unexpected empty report: %q", got)
	}

	_ = c.Record("zsh", 1250*time.Millisecond)
	_ = c.Record("brew", 30*time.Second)
	_ = c.Record("brew", 10*time.Second)

	report := c.Report()
	if !strings.Contains(report, "PERFORMANCE METRICS REPORT") {
		t.Error("Expected report banner")
	}
	if strings.Index(report, "brew:") > strings.Index(report, "zsh:") {
		t.Error("Expected labels sorted in report")
	}
	for _, want := range []string{
		"  Count: 2\n",
		"  Min:   10.00s\n",
		"  Max:   30.00s\n",
		"  Avg:   20.00s\n",
		"  Total: 40.00s\n",
		"  Min:   1.25s\n",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, report)
		}
	}
}

func TestCollector_Observer(t *testing.T) {
	m, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	c := NewCollector(WithObserver(m))
	_ = c.Record("install:git", time.Second)
	_ = c.Record("install:git", 2*time.Second)
	_ = c.Record("install:git", -time.Second)

	got := m.CounterValue("devkit_operation_duration_seconds", map[string]string{"label": "install:git"})
	if got != 2 {
		t.Errorf("Expected 2 observations, got %v", got)
	}
}

func TestSynchronized_ConcurrentRecord(t *testing.T) {
	s := NewSynchronized(NewCollector())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tok, err := s.Start("work")
				if err != nil {
					t.Errorf("Start() error = %v", err)
					return
				}
				if _, err := s.Stop("work", tok); err != nil {
					t.Errorf("Stop() error = %v", err)
					return
				}
				_ = s.Record("direct", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := s.Summary("work").Count; got != 400 {
		t.Errorf("Expected 400 timed samples, got %d", got)
	}
	if got := s.Summaries()["direct"].Count; got != 400 {
		t.Errorf("Expected 400 recorded samples, got %d", got)
	}
	if !strings.Contains(s.Report(), "direct:") {
		t.Error("Expected report to include direct")
	}
}
