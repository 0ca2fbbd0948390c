package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Debouncer rate-gates notifications per subscription via SET NX with TTL.
type Debouncer struct {
	rdb *goredis.Client
}

func NewDebouncer(rdb *goredis.Client) *Debouncer {
	return &Debouncer{rdb: rdb}
}

// Allow returns true when the subscription's cooldown has elapsed and
// atomically re-arms it. A zero cooldown always allows.
func (d *Debouncer) Allow(ctx context.Context, subscriptionID uuid.UUID, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}

	set, err := d.rdb.SetNX(ctx, debounceKey(subscriptionID), "1", cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check debounce: %w", err)
	}
	return set, nil
}

func debounceKey(subscriptionID uuid.UUID) string {
	return "debounce:" + subscriptionID.String()
}
