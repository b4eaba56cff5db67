package cache

import (
	"context"
	"fmt"
	"time"
)

// Sweep removes every expired or corrupt entry and returns how many expired
// entries were removed. Reads stay correct without it; Sweep only bounds
// storage for keys that are never read again.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}

	now := s.now()
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		data, ok, err := s.backend.Fetch(ctx, id)
		if err != nil || !ok {
			continue
		}

		entry, err := decodeEntry(data)
		if err != nil {
			s.remove(ctx, id, data, "corrupt")
			continue
		}
		if entry.Expired(now) && s.remove(ctx, id, data, "expired") {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debugf("swept %d expired cache entries", removed)
	}
	return removed, nil
}

// StartJanitor runs Sweep every interval until ctx is done. An interval of
// zero or less disables it. The returned channel is closed once the janitor
// goroutine has exited.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
					s.logger.WithError(err).Warn("cache sweep failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return done
}
