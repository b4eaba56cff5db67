package cache

import (
	"context"
	"fmt"
)

// Stats is a snapshot of cache size and lookup counters.
type Stats struct {
	// EntryCount includes expired entries that have not been read yet.
	// Reserved bookkeeping keys are counted in Reserved instead.
	EntryCount int `json:"entries"`
	Reserved   int `json:"reserved"`

	// ApproximateSize is the stored size in bytes, reserved keys included
	ApproximateSize int64 `json:"size_bytes"`

	SizeMB   float64 `json:"size_mb"`
	Location string  `json:"location"`

	// Lookup counters since the Store was created
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Expired uint64 `json:"expired"`
}

// HitRatio returns Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats reports the current entry count and stored size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list cache entries: %w", err)
	}

	size, err := s.backend.Size(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to measure cache: %w", err)
	}

	reserved := 0
	for _, id := range ids {
		if s.isReserved(id) {
			reserved++
		}
	}
	entries := len(ids) - reserved

	s.metrics.SetCacheEntries(entries)

	return Stats{
		EntryCount:      entries,
		Reserved:        reserved,
		ApproximateSize: size,
		SizeMB:          float64(size) / (1024 * 1024),
		Location:        s.backend.Location(),
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		Expired:         s.expired.Load(),
	}, nil
}
