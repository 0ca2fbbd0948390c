// Package stats computes per-band summaries over stored index readings.
package stats

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/platform/aggregate"
)

// BandStat summarizes one classification band over the requested window.
type BandStat struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	// RecencyWeighted is the value average weighted by 1/(1+age_days), so
	// recent readings dominate.
	RecencyWeighted float64 `json:"recency_weighted"`
}

// Summary is the full stats response for a window.
type Summary struct {
	Days    int                 `json:"days"`
	Samples int                 `json:"samples"`
	Bands   map[string]BandStat `json:"bands"`
}

// Service computes summaries from the reading store.
type Service struct {
	store domain.ReadingStore
	clock clockwork.Clock
}

func NewService(store domain.ReadingStore, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock}
}

// ByBand groups the last days of readings by classification band and reduces
// each band to its sample count, plain mean, and recency-weighted average.
func (s *Service) ByBand(ctx context.Context, days int) (Summary, error) {
	if days < 1 {
		return Summary{}, fmt.Errorf("days must be positive, got %d", days)
	}

	now := s.clock.Now()
	since := now.AddDate(0, 0, -days)

	readings, err := s.store.Range(ctx, since, days+1)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load readings: %w", err)
	}

	band := func(r domain.Reading) string { return r.Band() }
	value := func(r domain.Reading) float64 { return float64(r.Value) }
	uniform := func(domain.Reading) float64 { return 1 }
	recency := func(r domain.Reading) float64 {
		ageDays := now.Sub(r.ObservedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		return 1 / (1 + ageDays)
	}

	means, err := aggregate.WeightedAverageBy(readings, band, value, uniform)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute means: %w", err)
	}
	weighted, err := aggregate.WeightedAverageBy(readings, band, value, recency)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to compute recency-weighted means: %w", err)
	}

	groups := aggregate.GroupBy(readings, band)

	bands := make(map[string]BandStat, len(groups))
	for name, group := range groups {
		bands[name] = BandStat{
			Samples:         len(group),
			Mean:            means[name],
			RecencyWeighted: weighted[name],
		}
	}

	return Summary{
		Days:    days,
		Samples: len(readings),
		Bands:   bands,
	}, nil
}
