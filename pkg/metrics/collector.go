package metrics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyLabel is returned when a label is empty.
	ErrEmptyLabel = errors.New("metric label is required")

	// ErrNegativeDuration is returned when a negative duration is recorded.
	ErrNegativeDuration = errors.New("duration must not be negative")

	// ErrUnknownToken is returned when stopping a timer that is not running.
	ErrUnknownToken = errors.New("timer is not running")

	// ErrLabelMismatch is returned when a timer is stopped under a different
	// label than it was started with.
	ErrLabelMismatch = errors.New("timer label mismatch")
)

// Observer receives every recorded sample. telemetry.Metrics implements it.
type Observer interface {
	ObserveOperation(label string, d time.Duration)
}

// Sample is one recorded duration.
type Sample struct {
	Label      string        `json:"label"`
	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Token identifies a running timer.
type Token struct {
	ID      string
	Label   string
	Started time.Time
}

// Summary aggregates the samples of one label.
type Summary struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	Total time.Duration `json:"total"`
}

// Collector records duration samples per label. Samples are kept in memory
// and never modified once recorded.
//
// A Collector is not safe for concurrent use; wrap it with Synchronized when
// several goroutines record into it.
type Collector struct {
	samples  map[string][]Sample
	active   map[string]Token
	now      func() time.Time
	observer Observer
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock sets the time source for timers.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithObserver forwards every sample to o.
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		c.observer = o
	}
}

// NewCollector creates an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		samples: make(map[string][]Sample),
		active:  make(map[string]Token),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins timing label.
func (c *Collector) Start(label string) (Token, error) {
	if label == "" {
		return Token{}, ErrEmptyLabel
	}

	tok := Token{
		ID:      uuid.New().String(),
		Label:   label,
		Started: c.now(),
	}
	c.active[tok.ID] = tok
	return tok, nil
}

// Stop ends the timer identified by tok, records the elapsed time under label
// and returns it. A token can be stopped only once.
func (c *Collector) Stop(label string, tok Token) (time.Duration, error) {
	started, ok := c.active[tok.ID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, tok.ID)
	}
	if started.Label != label {
		return 0, fmt.Errorf("%w: started as %q, stopped as %q", ErrLabelMismatch, started.Label, label)
	}
	delete(c.active, tok.ID)

	elapsed := c.now().Sub(started.Started)
	if elapsed < 0 {
		elapsed = 0
	}
	if err := c.Record(label, elapsed); err != nil {
		return 0, err
	}
	return elapsed, nil
}

// Time runs fn and records how long it took under label. The error from fn is
// returned unchanged.
func (c *Collector) Time(label string, fn func() error) error {
	tok, err := c.Start(label)
	if err != nil {
		return err
	}
	fnErr := fn()
	if _, err := c.Stop(label, tok); err != nil {
		return err
	}
	return fnErr
}

// Record appends a sample for label.
func (c *Collector) Record(label string, d time.Duration) error {
	if label == "" {
		return ErrEmptyLabel
	}
	if d < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeDuration, d)
	}

	c.samples[label] = append(c.samples[label], Sample{
		Label:      label,
		Duration:   d,
		RecordedAt: c.now(),
	})
	if c.observer != nil {
		c.observer.ObserveOperation(label, d)
	}
	return nil
}

// Summary aggregates the samples for label. An unknown label yields a zero
// Summary.
func (c *Collector) Summary(label string) Summary {
	return summarize(c.samples[label])
}

// Summaries returns a summary for every label with at least one sample.
func (c *Collector) Summaries() map[string]Summary {
	out := make(map[string]Summary, len(c.samples))
	for label, samples := range c.samples {
		if len(samples) == 0 {
			continue
		}
		out[label] = summarize(samples)
	}
	return out
}

// Samples returns a copy of the samples recorded for label.
func (c *Collector) Samples(label string) []Sample {
	samples := c.samples[label]
	out := make([]Sample, len(samples))
	copy(out, samples)
	return out
}

// Labels returns every label with samples, sorted.
func (c *Collector) Labels() []string {
	labels := make([]string, 0, len(c.samples))
	for label, samples := range c.samples {
		if len(samples) > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Report renders all summaries as text.
func (c *Collector) Report() string {
	return FormatReport(c.Summaries())
}

func summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	s := Summary{
		Count: len(samples),
		Min:   samples[0].Duration,
		Max:   samples[0].Duration,
	}
	for _, sample := range samples {
		s.Total += sample.Duration
		if sample.Duration < s.Min {
			s.Min = sample.Duration
		}
		if sample.Duration > s.Max {
			s.Max = sample.Duration
		}
	}
	s.Avg = s.Total / time.Duration(s.Count)
	return s
}
