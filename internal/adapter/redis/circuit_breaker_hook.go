package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fngpulse/fngpulse/internal/metrics"
)

const fallbackTTL = 10 * time.Minute

// CircuitBreakerHook implements redis.Hook to add circuit breaker protection
// to all Redis operations, preventing cascading failures when Redis becomes
// unavailable or slow. While the circuit is open, reads of the latest-reading
// hash are served from an in-process copy so the API can keep answering.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]

	mu       sync.RWMutex
	lastSeen map[string]hashSnapshot
}

type hashSnapshot struct {
	fields map[string]string
	at     time.Time
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook creates a circuit breaker hook:
// - 60% failure rate over min 5 requests in a 10s rolling window opens it
// - 30s delay before transitioning from open to half-open
// - 1 successful request in half-open closes it again
func NewCircuitBreakerHook() *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("redis", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:       cb,
		lastSeen: make(map[string]hashSnapshot),
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// DialHook wraps connection establishment with circuit breaker
func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("circuit breaker dial failed: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("circuit breaker dial failed: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

// ProcessHook wraps command execution with circuit breaker and fallback caching
func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.handleFallback(cmd)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
		} else {
			h.cb.RecordSuccess()
		}

		if err == nil {
			h.remember(cmd)
		}

		if err != nil {
			return err
		}
		return nil
	}
}

// ProcessPipelineHook wraps pipeline execution with circuit breaker
func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker pipeline failed: %w", err)
		}
		h.cb.RecordSuccess()
		return nil
	}
}

// handleFallback serves hash reads from the in-process snapshot while the
// circuit is open. Writes always fail fast.
func (h *CircuitBreakerHook) handleFallback(cmd goredis.Cmder) error {
	if cmd.Name() == "hgetall" {
		if snap, ok := h.snapshotFor(cmd); ok {
			slog.Debug("Circuit breaker open, serving hash from snapshot", "args", cmd.Args())
			if c, ok := cmd.(*goredis.MapStringStringCmd); ok {
				c.SetVal(snap)
				return nil
			}
		}
	}
	return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
}

// remember keeps the last successful HGETALL result per key for fallback use.
func (h *CircuitBreakerHook) remember(cmd goredis.Cmder) {
	if cmd.Name() != "hgetall" {
		return
	}
	c, ok := cmd.(*goredis.MapStringStringCmd)
	if !ok {
		return
	}
	fields, err := c.Result()
	if err != nil || len(fields) == 0 {
		return
	}

	key := keyArg(cmd)
	if key == "" {
		return
	}

	h.mu.Lock()
	h.lastSeen[key] = hashSnapshot{fields: fields, at: time.Now()}
	h.mu.Unlock()
}

func (h *CircuitBreakerHook) snapshotFor(cmd goredis.Cmder) (map[string]string, bool) {
	key := keyArg(cmd)
	if key == "" {
		return nil, false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	snap, ok := h.lastSeen[key]
	if !ok || time.Since(snap.at) > fallbackTTL {
		return nil, false
	}
	return snap.fields, true
}

func keyArg(cmd goredis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	key, _ := args[1].(string)
	return key
}

// State returns the current circuit breaker state (for testing/monitoring)
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
