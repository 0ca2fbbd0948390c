package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fngpulse/fngpulse/internal/app"
	"github.com/fngpulse/fngpulse/internal/config"
	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/stats"
	"github.com/fngpulse/fngpulse/internal/websocket"
)

// memReadings backs the cache, store, and upstream tiers in tests.
type memReadings struct {
	mu       sync.Mutex
	readings []domain.Reading
}

func (m *memReadings) latest() (domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.readings) == 0 {
		return domain.Reading{}, domain.ErrReadingNotFound
	}
	return m.readings[len(m.readings)-1], nil
}

func (m *memReadings) Insert(_ context.Context, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *memReadings) Latest(context.Context) (domain.Reading, error) { return m.latest() }

func (m *memReadings) Range(context.Context, time.Time, int) ([]domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Reading, len(m.readings))
	copy(out, m.readings)
	return out, nil
}

func (m *memReadings) SetLatest(ctx context.Context, r domain.Reading) error {
	return m.Insert(ctx, r)
}

func (m *memReadings) GetLatest(ctx context.Context) (domain.Reading, error) { return m.latest() }

func (m *memReadings) History(context.Context, int) ([]domain.Reading, error) {
	return nil, domain.ErrUpstreamUnavailable
}

// memSubs is an in-memory SubscriptionRepository.
type memSubs struct {
	mu   sync.Mutex
	subs map[uuid.UUID]domain.Subscription
}

func newMemSubs() *memSubs {
	return &memSubs{subs: make(map[uuid.UUID]domain.Subscription)}
}

func (m *memSubs) Create(_ context.Context, sub domain.Subscription) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	m.subs[sub.ID] = sub
	return sub, nil
}

func (m *memSubs) GetByID(_ context.Context, id uuid.UUID) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *memSubs) List(context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (m *memSubs) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	delete(m.subs, id)
	return nil
}

type stubRedisCheck struct{ err error }

func (s *stubRedisCheck) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
	}
	return cmd
}

type stubPostgresCheck struct{ err error }

func (s *stubPostgresCheck) Ping(context.Context) error { return s.err }

type testEnv struct {
	server   *Server
	readings *memReadings
	subs     *memSubs
	redis    *stubRedisCheck
	postgres *stubPostgresCheck
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Port:         "8080",
		HistoryLimit: 365,
		APIRateLimit: 1000,
		APIRateBurst: 1000,
		MaxWSClients: 10,
	}

	readings := &memReadings{}
	subs := newMemSubs()
	redisCheck := &stubRedisCheck{}
	postgresCheck := &stubPostgresCheck{}

	hub := websocket.NewHub(cfg.MaxWSClients)
	t.Cleanup(hub.Stop)

	readingService := app.NewReadingService(readings, readings, readings, cfg.HistoryLimit)
	statsService := stats.NewService(readings, clockwork.NewRealClock())

	srv := NewServer(cfg, readingService, statsService, subs, hub, redisCheck, postgresCheck)

	return &testEnv{
		server:   srv,
		readings: readings,
		subs:     subs,
		redis:    redisCheck,
		postgres: postgresCheck,
	}
}

func (e *testEnv) request(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.echo.ServeHTTP(rec, req)
	return rec
}

func seedReading(e *testEnv, value int, class string) {
	_ = e.readings.Insert(context.Background(), domain.Reading{
		Value:          value,
		Classification: class,
		ObservedAt:     time.Now().Add(-time.Hour),
	})
}

func mustCreateSubscription(t *testing.T, e *testEnv, body string) string {
	t.Helper()
	rec := e.request(http.MethodPost, "/api/v1/subscriptions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("subscription create failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad create response: %v", err)
	}
	return resp.ID
}
