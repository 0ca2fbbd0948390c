package domain

import (
	"context"
	"time"
)

// Classification bands as published by the index feed.
const (
	ClassExtremeFear  = "Extreme Fear"
	ClassFear         = "Fear"
	ClassNeutral      = "Neutral"
	ClassGreed        = "Greed"
	ClassExtremeGreed = "Extreme Greed"
)

// Reading is a single observation of the sentiment index.
type Reading struct {
	Value           int       // 0 (extreme fear) .. 100 (extreme greed)
	Classification  string    // feed-provided band, e.g. "Extreme Fear"
	ObservedAt      time.Time // feed timestamp, truncated to the day by upstream
	TimeUntilUpdate time.Duration
}

// Zone maps the numeric value onto a classification band. Used when the feed
// omits value_classification.
func (r Reading) Zone() string {
	switch {
	case r.Value <= 24:
		return ClassExtremeFear
	case r.Value <= 44:
		return ClassFear
	case r.Value <= 55:
		return ClassNeutral
	case r.Value <= 75:
		return ClassGreed
	default:
		return ClassExtremeGreed
	}
}

// Band returns the feed classification, falling back to Zone when absent.
func (r Reading) Band() string {
	if r.Classification != "" {
		return r.Classification
	}
	return r.Zone()
}

// ReadingStore persists readings durably.
type ReadingStore interface {
	Insert(ctx context.Context, r Reading) error
	Latest(ctx context.Context) (Reading, error)
	Range(ctx context.Context, since time.Time, limit int) ([]Reading, error)
}

// ReadingCache holds the most recent reading for cheap reads.
type ReadingCache interface {
	SetLatest(ctx context.Context, r Reading) error
	GetLatest(ctx context.Context) (Reading, error)
}

// ReadingSource fetches readings from the upstream feed.
type ReadingSource interface {
	Latest(ctx context.Context) (Reading, error)
	History(ctx context.Context, limit int) ([]Reading, error)
}

// ReadingBroadcaster fans a fresh reading out to live consumers.
type ReadingBroadcaster interface {
	Broadcast(r Reading)
}
