package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fngpulse/fngpulse/internal/domain"
)

const (
	latestKey      = "fng:latest"
	latestCacheTTL = 15 * time.Minute
)

// ReadingCache keeps the most recent index reading in a Redis hash.
type ReadingCache struct {
	rdb *goredis.Client
}

func NewReadingCache(rdb *goredis.Client) *ReadingCache {
	return &ReadingCache{rdb: rdb}
}

func (c *ReadingCache) SetLatest(ctx context.Context, r domain.Reading) error {
	fields := map[string]any{
		"value":             strconv.Itoa(r.Value),
		"classification":    r.Classification,
		"observed_at":       strconv.FormatInt(r.ObservedAt.Unix(), 10),
		"time_until_update": strconv.FormatInt(int64(r.TimeUntilUpdate/time.Second), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, latestKey, fields)
	pipe.Expire(ctx, latestKey, latestCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache latest reading: %w", err)
	}
	return nil
}

func (c *ReadingCache) GetLatest(ctx context.Context) (domain.Reading, error) {
	fields, err := c.rdb.HGetAll(ctx, latestKey).Result()
	if err != nil {
		return domain.Reading{}, fmt.Errorf("failed to read latest reading: %w", err)
	}
	if len(fields) == 0 {
		return domain.Reading{}, domain.ErrReadingNotFound
	}

	value, err := strconv.Atoi(fields["value"])
	if err != nil {
		return domain.Reading{}, fmt.Errorf("corrupt cached value %q: %w", fields["value"], err)
	}

	observedAt, err := strconv.ParseInt(fields["observed_at"], 10, 64)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("corrupt cached observed_at %q: %w", fields["observed_at"], err)
	}

	// time_until_update is advisory; tolerate its absence
	var untilUpdate time.Duration
	if raw, ok := fields["time_until_update"]; ok {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			untilUpdate = time.Duration(secs) * time.Second
		}
	}

	return domain.Reading{
		Value:           value,
		Classification:  fields["classification"],
		ObservedAt:      time.Unix(observedAt, 0).UTC(),
		TimeUntilUpdate: untilUpdate,
	}, nil
}
