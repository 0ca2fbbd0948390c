package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hgetallCmd(key string) *goredis.MapStringStringCmd {
	return goredis.NewMapStringStringCmd(context.Background(), "hgetall", key)
}

func TestCircuitBreakerHook_RemembersHashReads(t *testing.T) {
	h := NewCircuitBreakerHook()

	cmd := hgetallCmd("fng:latest")
	cmd.SetVal(map[string]string{"value": "40", "classification": "Fear"})
	h.remember(cmd)

	snap, ok := h.snapshotFor(hgetallCmd("fng:latest"))
	require.True(t, ok)
	assert.Equal(t, "40", snap["value"])
	assert.Equal(t, "Fear", snap["classification"])
}

func TestCircuitBreakerHook_IgnoresEmptyResults(t *testing.T) {
	h := NewCircuitBreakerHook()

	cmd := hgetallCmd("fng:latest")
	cmd.SetVal(map[string]string{})
	h.remember(cmd)

	_, ok := h.snapshotFor(hgetallCmd("fng:latest"))
	assert.False(t, ok)
}

func TestCircuitBreakerHook_SnapshotExpires(t *testing.T) {
	h := NewCircuitBreakerHook()

	cmd := hgetallCmd("fng:latest")
	cmd.SetVal(map[string]string{"value": "40"})
	h.remember(cmd)

	h.mu.Lock()
	snap := h.lastSeen["fng:latest"]
	snap.at = time.Now().Add(-fallbackTTL - time.Minute)
	h.lastSeen["fng:latest"] = snap
	h.mu.Unlock()

	_, ok := h.snapshotFor(hgetallCmd("fng:latest"))
	assert.False(t, ok)
}

func TestCircuitBreakerHook_FallbackServesSnapshot(t *testing.T) {
	h := NewCircuitBreakerHook()

	seed := hgetallCmd("fng:latest")
	seed.SetVal(map[string]string{"value": "40"})
	h.remember(seed)

	read := hgetallCmd("fng:latest")
	err := h.handleFallback(read)
	require.NoError(t, err)

	fields, err := read.Result()
	require.NoError(t, err)
	assert.Equal(t, "40", fields["value"])
}

func TestCircuitBreakerHook_FallbackFailsWithoutSnapshot(t *testing.T) {
	h := NewCircuitBreakerHook()

	err := h.handleFallback(hgetallCmd("fng:latest"))
	assert.ErrorContains(t, err, "circuit breaker open")
}

func TestCircuitBreakerHook_FallbackRejectsWrites(t *testing.T) {
	h := NewCircuitBreakerHook()

	write := goredis.NewStatusCmd(context.Background(), "set", "fng:latest", "1")
	err := h.handleFallback(write)
	assert.ErrorContains(t, err, "circuit breaker open")
}
