// Package poller runs the periodic fetch-store-broadcast cycle against the
// index feed and fires subscription notifications on fresh readings.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/logging"
	"github.com/fngpulse/fngpulse/internal/metrics"
	"github.com/fngpulse/fngpulse/internal/platform/retry"
)

// Poller drives one fetch cycle per interval. Each cycle fetches the latest
// reading under a retry policy, persists and caches it, broadcasts it to feed
// clients, and evaluates all subscriptions against it.
type Poller struct {
	source    domain.ReadingSource
	store     domain.ReadingStore
	cache     domain.ReadingCache
	feed      domain.ReadingBroadcaster
	subs      domain.SubscriptionRepository
	debouncer domain.Debouncer
	notifier  domain.Notifier

	clock    clockwork.Clock
	interval time.Duration
	policy   retry.Policy
	classify retry.Classify
	leader   LeaderElector

	// previousBand carries the band of the last processed reading across
	// cycles so band-flip subscriptions can compare against it.
	previousBand string
	lastObserved time.Time
}

// Options bundles the poller's collaborators.
type Options struct {
	Source    domain.ReadingSource
	Store     domain.ReadingStore
	Cache     domain.ReadingCache
	Feed      domain.ReadingBroadcaster
	Subs      domain.SubscriptionRepository
	Debouncer domain.Debouncer
	Notifier  domain.Notifier
	Clock     clockwork.Clock
	Interval  time.Duration

	// Classify maps fetch errors to retry actions.
	Classify retry.Classify
	// Recover runs between failed fetch attempts (a transport re-dial).
	Recover func(ctx context.Context, cause error) error
	// Leader, when set, restricts polling to the replica holding the lease.
	Leader LeaderElector
}

// LeaderElector gates each cycle when multiple replicas run the poller.
type LeaderElector interface {
	EnsureLeader(ctx context.Context) (bool, error)
}

func New(opts Options) *Poller {
	return &Poller{
		source:    opts.Source,
		store:     opts.Store,
		cache:     opts.Cache,
		feed:      opts.Feed,
		subs:      opts.Subs,
		debouncer: opts.Debouncer,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		interval:  opts.Interval,
		classify:  opts.Classify,
		leader:    opts.Leader,
		policy: retry.Policy{
			MaxAttempts:      4,
			InitialBackoff:   2 * time.Second,
			RateLimitBackoff: 30 * time.Second,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				metrics.PollRetriesTotal.Inc()
				slog.Warn("Poll fetch retry", "attempt", attempt, "backoff", backoff, "error", err)
			},
			Recover: opts.Recover,
		},
	}
}

// Run polls once immediately, then once per interval. It blocks until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.Poll(ctx)
		}
	}
}

// Poll executes a single cycle. Errors are logged and counted, never fatal:
// the next tick gets a fresh chance.
func (p *Poller) Poll(ctx context.Context) {
	ctx = logging.WithPollID(ctx, logging.NewPollID())

	if p.leader != nil {
		isLeader, err := p.leader.EnsureLeader(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Poll: leader election failed, polling anyway", "error", err)
		} else if !isLeader {
			slog.DebugContext(ctx, "Poll: not leader, skipping cycle")
			return
		}
	}

	start := p.clock.Now()
	defer func() {
		metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	}()

	reading, err := retry.Do(ctx, p.policy, p.classify, func() (domain.Reading, error) {
		return p.source.Latest(ctx)
	})
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "Poll: fetch failed", "error", err)
		return
	}

	metrics.IndexValue.Set(float64(reading.Value))

	if !reading.ObservedAt.After(p.lastObserved) {
		slog.DebugContext(ctx, "Poll: reading unchanged", "observedAt", reading.ObservedAt)
		metrics.PollsTotal.WithLabelValues("success").Inc()
		return
	}

	outcome := "success"

	if err := p.store.Insert(ctx, reading); err != nil {
		outcome = "error"
		slog.ErrorContext(ctx, "Poll: persist failed", "error", err)
	}
	if err := p.cache.SetLatest(ctx, reading); err != nil {
		slog.WarnContext(ctx, "Poll: cache update failed", "error", err)
	}

	p.feed.Broadcast(reading)
	p.evaluateSubscriptions(ctx, reading)

	slog.InfoContext(ctx, "Poll: fresh reading processed",
		"value", reading.Value, "band", reading.Band(), "observedAt", reading.ObservedAt)

	p.previousBand = reading.Band()
	p.lastObserved = reading.ObservedAt
	metrics.PollsTotal.WithLabelValues(outcome).Inc()
}

func (p *Poller) evaluateSubscriptions(ctx context.Context, reading domain.Reading) {
	subs, err := p.subs.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Poll: subscription listing failed", "error", err)
		return
	}

	for _, sub := range subs {
		reasons := sub.Matches(reading, p.previousBand)
		if len(reasons) == 0 {
			continue
		}

		allowed, err := p.debouncer.Allow(ctx, sub.ID, sub.Cooldown)
		if err != nil {
			slog.WarnContext(ctx, "Poll: debounce check failed, delivering anyway", "subscription", sub.ID, "error", err)
			allowed = true
		}
		if !allowed {
			metrics.NotificationsDebounced.Inc()
			slog.DebugContext(ctx, "Poll: notification debounced", "subscription", sub.ID)
			continue
		}

		for _, reason := range reasons {
			notification := domain.Notification{
				SubscriptionID: sub.ID,
				Reading:        reading,
				Reason:         reason,
				FiredAt:        p.clock.Now(),
			}
			if err := p.notifier.Notify(ctx, sub, notification); err != nil {
				slog.ErrorContext(ctx, "Poll: notification delivery failed",
					"subscription", sub.ID, "reason", reason, "error", err)
			}
		}
	}
}
