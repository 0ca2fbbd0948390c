package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/platform/retry"
)

type fakeSource struct {
	mu      sync.Mutex
	results []result
	calls   int
	called  chan struct{}
}

type result struct {
	reading domain.Reading
	err     error
}

func (f *fakeSource) Latest(context.Context) (domain.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.called != nil {
		f.called <- struct{}{}
	}
	if len(f.results) == 0 {
		return domain.Reading{}, errors.New("no results queued")
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.reading, r.err
}

func (f *fakeSource) History(context.Context, int) ([]domain.Reading, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu        sync.Mutex
	inserted  []domain.Reading
	cached    []domain.Reading
	broadcast []domain.Reading
	insertErr error
}

func (r *recordingSink) Insert(_ context.Context, reading domain.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, reading)
	return r.insertErr
}

func (r *recordingSink) Latest(context.Context) (domain.Reading, error) {
	return domain.Reading{}, domain.ErrReadingNotFound
}

func (r *recordingSink) Range(context.Context, time.Time, int) ([]domain.Reading, error) {
	return nil, nil
}

func (r *recordingSink) SetLatest(_ context.Context, reading domain.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = append(r.cached, reading)
	return nil
}

func (r *recordingSink) GetLatest(context.Context) (domain.Reading, error) {
	return domain.Reading{}, domain.ErrReadingNotFound
}

func (r *recordingSink) Broadcast(reading domain.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, reading)
}

type stubSubs struct {
	subs []domain.Subscription
}

func (s *stubSubs) Create(_ context.Context, sub domain.Subscription) (domain.Subscription, error) {
	return sub, nil
}

func (s *stubSubs) GetByID(context.Context, uuid.UUID) (domain.Subscription, error) {
	return domain.Subscription{}, domain.ErrSubscriptionNotFound
}

func (s *stubSubs) List(context.Context) ([]domain.Subscription, error) { return s.subs, nil }
func (s *stubSubs) Delete(context.Context, uuid.UUID) error             { return nil }

type stubDebouncer struct {
	allow bool
	calls int
}

func (d *stubDebouncer) Allow(context.Context, uuid.UUID, time.Duration) (bool, error) {
	d.calls++
	return d.allow, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	fired []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, _ domain.Subscription, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, notification)
	return nil
}

func (n *recordingNotifier) reasons() []domain.NotifyReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	reasons := make([]domain.NotifyReason, 0, len(n.fired))
	for _, f := range n.fired {
		reasons = append(reasons, f.Reason)
	}
	return reasons
}

type fixture struct {
	poller    *Poller
	source    *fakeSource
	sink      *recordingSink
	subs      *stubSubs
	debouncer *stubDebouncer
	notifier  *recordingNotifier
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, results ...result) *fixture {
	t.Helper()

	f := &fixture{
		source:    &fakeSource{results: results},
		sink:      &recordingSink{},
		subs:      &stubSubs{},
		debouncer: &stubDebouncer{allow: true},
		notifier:  &recordingNotifier{},
		clock:     clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)),
	}
	f.poller = New(Options{
		Source:    f.source,
		Store:     f.sink,
		Cache:     f.sink,
		Feed:      f.sink,
		Subs:      f.subs,
		Debouncer: f.debouncer,
		Notifier:  f.notifier,
		Clock:     f.clock,
		Interval:  5 * time.Minute,
		Classify:  func(error) retry.Action { return retry.Retry },
	})
	// keep retry waits out of test runtime
	f.poller.policy.InitialBackoff = time.Millisecond
	f.poller.policy.RateLimitBackoff = time.Millisecond
	f.poller.policy.OnRetry = nil
	return f
}

func reading(value int, class string, observed time.Time) domain.Reading {
	return domain.Reading{Value: value, Classification: class, ObservedAt: observed}
}

func TestPoll_PersistsCachesAndBroadcasts(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})

	f.poller.Poll(context.Background())

	require.Len(t, f.sink.inserted, 1)
	assert.Equal(t, 40, f.sink.inserted[0].Value)
	require.Len(t, f.sink.cached, 1)
	require.Len(t, f.sink.broadcast, 1)
}

func TestPoll_SkipsStaleReading(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})

	f.poller.Poll(context.Background())
	f.poller.Poll(context.Background())

	assert.Len(t, f.sink.inserted, 1, "unchanged reading must not be re-processed")
	assert.Len(t, f.sink.broadcast, 1)
}

func TestPoll_RetriesTransientFetchErrors(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t,
		result{err: errors.New("connection reset")},
		result{err: errors.New("connection reset")},
		result{reading: reading(62, domain.ClassGreed, observed)},
	)

	var recoveries int
	f.poller.policy.Recover = func(context.Context, error) error {
		recoveries++
		return nil
	}

	f.poller.Poll(context.Background())

	assert.Equal(t, 3, f.source.callCount())
	assert.Equal(t, 2, recoveries, "recovery must run between failed attempts")
	require.Len(t, f.sink.inserted, 1)
}

func TestPoll_GivesUpOnPermanentError(t *testing.T) {
	f := newFixture(t, result{err: errors.New("feed gone")})
	f.poller.classify = func(error) retry.Action { return retry.Stop }

	f.poller.Poll(context.Background())

	assert.Equal(t, 1, f.source.callCount())
	assert.Empty(t, f.sink.inserted)
	assert.Empty(t, f.sink.broadcast)
}

func TestPoll_FiresThresholdNotifications(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(15, domain.ClassExtremeFear, observed)})
	f.subs.subs = []domain.Subscription{
		{ID: uuid.New(), LowerBound: 20, UpperBound: -1},
		{ID: uuid.New(), LowerBound: -1, UpperBound: 80},
	}

	f.poller.Poll(context.Background())

	assert.Equal(t, []domain.NotifyReason{domain.ReasonThresholdLow}, f.notifier.reasons())
}

func TestPoll_BandFlipNeedsPreviousReading(t *testing.T) {
	day1 := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	f := newFixture(t,
		result{reading: reading(40, domain.ClassFear, day1)},
		result{reading: reading(60, domain.ClassGreed, day2)},
	)
	f.subs.subs = []domain.Subscription{
		{ID: uuid.New(), LowerBound: -1, UpperBound: -1, OnBandFlip: true},
	}

	f.poller.Poll(context.Background())
	assert.Empty(t, f.notifier.fired, "first reading has no previous band to flip from")

	f.poller.Poll(context.Background())
	assert.Equal(t, []domain.NotifyReason{domain.ReasonBandFlip}, f.notifier.reasons())
}

func TestPoll_DebounceSuppressesDelivery(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(10, domain.ClassExtremeFear, observed)})
	f.subs.subs = []domain.Subscription{
		{ID: uuid.New(), LowerBound: 20, UpperBound: -1, Cooldown: time.Hour},
	}
	f.debouncer.allow = false

	f.poller.Poll(context.Background())

	assert.Equal(t, 1, f.debouncer.calls)
	assert.Empty(t, f.notifier.fired)
}

func TestPoll_ContinuesWhenStoreFails(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})
	f.sink.insertErr = errors.New("db down")

	f.poller.Poll(context.Background())

	assert.Len(t, f.sink.broadcast, 1, "broadcast must not depend on persistence")
	assert.Len(t, f.sink.cached, 1)
}

type stubElector struct {
	isLeader bool
	err      error
	calls    int
}

func (s *stubElector) EnsureLeader(context.Context) (bool, error) {
	s.calls++
	return s.isLeader, s.err
}

func TestPoll_FollowerSkipsCycle(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})
	elector := &stubElector{isLeader: false}
	f.poller.leader = elector

	f.poller.Poll(context.Background())

	assert.Equal(t, 1, elector.calls)
	assert.Equal(t, 0, f.source.callCount())
	assert.Empty(t, f.sink.broadcast)
}

func TestPoll_LeaderPolls(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})
	f.poller.leader = &stubElector{isLeader: true}

	f.poller.Poll(context.Background())

	assert.Equal(t, 1, f.source.callCount())
	assert.Len(t, f.sink.broadcast, 1)
}

func TestPoll_ElectionErrorDoesNotBlockPolling(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})
	f.poller.leader = &stubElector{err: errors.New("redis down")}

	f.poller.Poll(context.Background())

	assert.Equal(t, 1, f.source.callCount(), "a broken election must degrade to polling")
}

func TestRun_PollsOnEachTick(t *testing.T) {
	observed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, result{reading: reading(40, domain.ClassFear, observed)})
	f.source.called = make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.poller.Run(ctx)
	}()

	// initial poll fires before the first tick
	<-f.source.called

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(5 * time.Minute)
	<-f.source.called

	cancel()
	<-done
	assert.Equal(t, 2, f.source.callCount())
}
