package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devkit/devkit/pkg/telemetry"
)

// Backend persists encoded entries under storage IDs. Implementations live in
// package stores.
type Backend interface {
	Put(ctx context.Context, id string, data []byte) error
	Fetch(ctx context.Context, id string) ([]byte, bool, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	IDs(ctx context.Context) ([]string, error)
	Size(ctx context.Context) (int64, error)
	Location() string
}

// Clock returns the current time.
type Clock func() time.Time

// Store is a key/value cache with per-entry TTL over a Backend. Expired and
// corrupt entries are removed when they are read.
//
// Writes are serialized with the removal of stale entries, and a stale entry
// is removed only if it has not been rewritten since it was read, so Sweep
// and the janitor may run alongside Set. Read-modify-write sequences built on
// top of Store still need the caller's serialization.
type Store struct {
	backend Backend
	now     Clock
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	// mu guards backend writes, deletions and reserved
	mu       sync.Mutex
	reserved map[string]struct{}

	hits    atomic.Uint64
	misses  atomic.Uint64
	expired atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for TTL checks.
func WithClock(now Clock) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the Prometheus sink for lookups and evictions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("cache backend is required")
	}

	s := &Store{
		backend:  backend,
		now:      time.Now,
		logger:   telemetry.NewNopLogger(),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reserve marks keys as bookkeeping entries owned by the components built on
// the Store. Stats counts them apart from cached results. Clear still removes
// them.
func (s *Store) Reserve(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.reserved[KeyID(key)] = struct{}{}
	}
}

func (s *Store) isReserved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reserved[id]
	return ok
}

// Set stores value under key for ttl, replacing any existing entry. A ttl of
// zero stores an entry that is already expired on the next read.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("ttl must not be negative, got %s", ttl)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}

	created := s.now()
	data, err := encodeEntry(Entry{
		Key:       key,
		Value:     raw,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
		TTL:       ttl,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = s.backend.Put(ctx, KeyID(key), data)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to store %q: %w", key, err)
	}

	s.metrics.RecordCacheWrite()
	s.logger.WithField("key", key).Debugf("cached for %s", ttl)
	return nil
}

// Get returns the value stored under key if it exists and has not expired.
// Objects decode as map[string]any, arrays as []any and numbers as
// json.Number. Get never reports an error: backend failures and corrupt data
// are both a miss.
func (s *Store) Get(ctx context.Context, key string) (any, bool) {
	entry, ok := s.Lookup(ctx, key)
	if !ok {
		return nil, false
	}

	var value any
	if err := entry.Decode(&value); err != nil {
		// Unreachable for entries that passed decodeEntry.
		s.logger.WithError(err).Warn("failed to decode cached value")
		return nil, false
	}
	return value, true
}

// GetInto decodes the value stored under key into dst. It reports false on a
// miss or when the stored value does not fit dst.
func (s *Store) GetInto(ctx context.Context, key string, dst any) bool {
	entry, ok := s.Lookup(ctx, key)
	if !ok {
		return false
	}
	if err := entry.Decode(dst); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("cached value has unexpected shape")
		return false
	}
	return true
}

// Lookup returns the full entry for key. Like Get, it removes the stored
// record when it is expired or cannot be decoded.
func (s *Store) Lookup(ctx context.Context, key string) (Entry, bool) {
	id := KeyID(key)
	logger := s.logger.WithField("key", key)

	data, ok, err := s.backend.Fetch(ctx, id)
	if err != nil {
		logger.WithError(err).Warn("cache read failed")
		s.miss("error")
		return Entry{}, false
	}
	if !ok {
		s.miss("miss")
		return Entry{}, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		logger.WithError(err).Warn("removing corrupt cache entry")
		s.remove(ctx, id, data, "corrupt")
		s.miss("corrupt")
		return Entry{}, false
	}

	if entry.Expired(s.now()) {
		logger.Debug("cache entry expired")
		s.remove(ctx, id, data, "expired")
		s.expired.Add(1)
		s.miss("expired")
		return Entry{}, false
	}

	s.hits.Add(1)
	s.metrics.RecordCacheLookup("hit")
	return entry, true
}

// Invalidate removes key. Removing an absent key is not an error.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, KeyID(key)); err != nil {
		return fmt.Errorf("failed to invalidate %q: %w", key, err)
	}
	s.metrics.RecordCacheEviction("invalidated", 1)
	return nil
}

// Clear removes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	n, err := s.backend.DeleteAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return n, fmt.Errorf("failed to clear cache: %w", err)
	}

	s.metrics.RecordCacheEviction("cleared", n)
	s.metrics.SetCacheEntries(0)
	s.logger.Infof("cleared %d cache entries", n)
	return n, nil
}

// Location describes where the backend keeps entries.
func (s *Store) Location() string {
	return s.backend.Location()
}

func (s *Store) miss(result string) {
	s.misses.Add(1)
	s.metrics.RecordCacheLookup(result)
}

// remove deletes the record stored under id if it still holds stale, the
// bytes read when the entry was found to be expired or corrupt. A record
// rewritten in the meantime is kept.
func (s *Store) remove(ctx context.Context, id string, stale []byte, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok, err := s.backend.Fetch(ctx, id)
	if err != nil {
		s.logger.WithError(err).Warnf("failed to re-read %s cache entry", reason)
		return false
	}
	if !ok || !bytes.Equal(current, stale) {
		return false
	}

	if err := s.backend.Delete(ctx, id); err != nil {
		s.logger.WithError(err).Warnf("failed to remove %s cache entry", reason)
		return false
	}
	s.metrics.RecordCacheEviction(reason, 1)
	return true
}
