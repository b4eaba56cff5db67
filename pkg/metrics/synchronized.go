package metrics

import (
	"sync"
	"time"
)

// Synchronized guards a Collector with a mutex.
type Synchronized struct {
	mu sync.Mutex
	c  *Collector
}

// NewSynchronized wraps c.
func NewSynchronized(c *Collector) *Synchronized {
	return &Synchronized{c: c}
}

// Start begins timing label.
func (s *Synchronized) Start(label string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Start(label)
}

// Stop ends a timer and records its sample.
func (s *Synchronized) Stop(label string, tok Token) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Stop(label, tok)
}

// Record appends a sample for label.
func (s *Synchronized) Record(label string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Record(label, d)
}

// Summary aggregates the samples for label.
func (s *Synchronized) Summary(label string) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Summary(label)
}

// Summaries returns a summary per label.
func (s *Synchronized) Summaries() map[string]Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Summaries()
}

// Report renders all summaries as text.
func (s *Synchronized) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Report()
}
