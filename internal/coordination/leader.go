// Package coordination elects a single polling leader across replicas so the
// index feed sees one client, not one per instance.
package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// PollerLeaderKey is the election key used by the feed poller.
const PollerLeaderKey = "fngpulse:leader:poller"

// ErrNotLeader is returned by Renew when another instance holds the lease.
var ErrNotLeader = errors.New("not leader")

// LeaderElection implements single-leader election using Redis SETNX.
// The leader holds a key with a TTL; followers take over when the key
// expires (previous leader crashed or network partition).
type LeaderElection struct {
	redis      *redis.Client
	instanceID string
	ttl        time.Duration
	key        string
}

func NewLeaderElection(rdb *redis.Client, instanceID, key string, ttl time.Duration) *LeaderElection {
	return &LeaderElection{
		redis:      rdb,
		instanceID: instanceID,
		ttl:        ttl,
		key:        key,
	}
}

// Acquire attempts to take the lease. Returns true when this instance is now
// the leader.
func (l *LeaderElection) Acquire(ctx context.Context) (bool, error) {
	return l.redis.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
}

// renewScript extends the TTL only while we still hold the lease.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Renew extends the lease TTL. Returns ErrNotLeader when the lease has moved
// to another instance.
func (l *LeaderElection) Renew(ctx context.Context) error {
	result, err := renewScript.Run(ctx, l.redis, []string{l.key}, l.instanceID, int(l.ttl.Seconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return ErrNotLeader
	}
	return nil
}

// EnsureLeader acquires the lease if it is free, or renews it if this
// instance already holds it. Returns true when this instance may act as
// leader for another TTL window.
func (l *LeaderElection) EnsureLeader(ctx context.Context) (bool, error) {
	acquired, err := l.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if acquired {
		return true, nil
	}

	switch err := l.Renew(ctx); {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotLeader):
		return false, nil
	default:
		return false, err
	}
}

// IsLeader reports whether this instance currently holds the lease.
func (l *LeaderElection) IsLeader(ctx context.Context) (bool, error) {
	holder, err := l.redis.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holder == l.instanceID, nil
}

// releaseScript deletes the key only while we still hold the lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release gives the lease up voluntarily. Called during graceful shutdown so
// the next replica takes over immediately instead of waiting out the TTL.
func (l *LeaderElection) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.redis, []string{l.key}, l.instanceID).Err()
}
