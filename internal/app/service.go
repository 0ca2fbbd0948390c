// Package app holds the read-side services behind the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/metrics"
	"github.com/fngpulse/fngpulse/internal/platform/fallback"
)

// ReadingService answers reading queries through a cache-store-upstream
// fallback chain. Concurrent latest-reading lookups are collapsed into a
// single chain evaluation.
type ReadingService struct {
	cache  domain.ReadingCache
	store  domain.ReadingStore
	source domain.ReadingSource

	historyLimit int
	group        singleflight.Group
}

func NewReadingService(cache domain.ReadingCache, store domain.ReadingStore, source domain.ReadingSource, historyLimit int) *ReadingService {
	return &ReadingService{
		cache:        cache,
		store:        store,
		source:       source,
		historyLimit: historyLimit,
	}
}

// Latest resolves the current reading: Redis cache first, then Postgres, then
// a live upstream fetch. A hit from a lower tier is written back to the cache.
func (s *ReadingService) Latest(ctx context.Context) (domain.Reading, error) {
	val, err, _ := s.group.Do("latest", func() (any, error) {
		return s.resolveLatest(ctx)
	})
	if err != nil {
		return domain.Reading{}, err
	}
	return val.(domain.Reading), nil
}

func (s *ReadingService) resolveLatest(ctx context.Context) (domain.Reading, error) {
	var resolvedFrom string

	reading, err := fallback.First(ctx,
		s.tier("cache", &resolvedFrom, s.cache.GetLatest),
		s.tier("store", &resolvedFrom, s.store.Latest),
		s.tier("upstream", &resolvedFrom, s.source.Latest),
	)
	if err != nil {
		if errors.Is(err, fallback.ErrAllAbsent) {
			return domain.Reading{}, fmt.Errorf("%w: %w", domain.ErrReadingNotFound, err)
		}
		return domain.Reading{}, err
	}

	metrics.CacheHitsTotal.WithLabelValues(resolvedFrom).Inc()

	if resolvedFrom != "cache" {
		if err := s.cache.SetLatest(ctx, reading); err != nil {
			slog.WarnContext(ctx, "Latest: cache write-back failed", "error", err)
		}
	}
	return reading, nil
}

// tier adapts a lookup into a fallback source. Not-found becomes absent so
// the chain moves on; any other error is carried along for diagnostics.
func (s *ReadingService) tier(name string, resolvedFrom *string, lookup func(context.Context) (domain.Reading, error)) fallback.Source[domain.Reading] {
	return func(ctx context.Context) (domain.Reading, bool, error) {
		reading, err := lookup(ctx)
		switch {
		case err == nil:
			*resolvedFrom = name
			return reading, true, nil
		case errors.Is(err, domain.ErrReadingNotFound):
			return domain.Reading{}, false, nil
		default:
			slog.DebugContext(ctx, "Latest: tier failed", "tier", name, "error", err)
			return domain.Reading{}, false, fmt.Errorf("%s: %w", name, err)
		}
	}
}

// History returns up to limit stored readings, newest first. A zero or
// negative limit, or one beyond the configured maximum, is clamped.
func (s *ReadingService) History(ctx context.Context, limit int) ([]domain.Reading, error) {
	if limit < 1 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	since := time.Now().AddDate(0, 0, -limit)
	readings, err := s.store.Range(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return readings, nil
}
