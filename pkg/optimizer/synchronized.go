package optimizer

import (
	"context"
	"sync"
	"time"
)

// Synchronized serializes access to an Optimizer so that parallel install
// workers can share it.
type Synchronized struct {
	mu  sync.Mutex
	opt *Optimizer
}

// NewSynchronized wraps o.
func NewSynchronized(o *Optimizer) *Synchronized {
	return &Synchronized{opt: o}
}

// ShouldInstall reports whether unit at version needs to be installed.
func (s *Synchronized) ShouldInstall(unit, version string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opt.ShouldInstall(unit, version)
}

// MarkResult records an install outcome with the default TTL.
func (s *Synchronized) MarkResult(unit, version string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opt.MarkResult(unit, version, success)
}

// MarkResultTTL records an install outcome that expires after ttl.
func (s *Synchronized) MarkResultTTL(ctx context.Context, unit, version string, success bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opt.MarkResultTTL(ctx, unit, version, success, ttl)
}

// Suggestions returns advisory hints.
func (s *Synchronized) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opt.Suggestions()
}
