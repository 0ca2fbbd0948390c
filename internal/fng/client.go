// Package fng implements the client for the alternative.me Fear & Greed
// index feed.
package fng

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/metrics"
	"github.com/fngpulse/fngpulse/internal/platform/retry"
)

const maxResponseBytes = 1 << 20 // the feed returns a few KB; anything bigger is broken

// StatusError reports a non-2xx response from the feed.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned status %d", e.StatusCode)
}

// FeedError reports a non-null metadata.error in an otherwise well-formed
// response body.
type FeedError struct {
	Message string
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed reported error: %s", e.Message)
}

// Client fetches index readings over HTTP with an outbound circuit breaker.
type Client struct {
	baseURL string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker

	mu         sync.Mutex
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fng-feed",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateToFloat(to))
		},
	})

	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		breaker:    breaker,
		httpClient: newHTTPClient(timeout),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func breakerStateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Latest returns the most recent reading.
func (c *Client) Latest(ctx context.Context) (domain.Reading, error) {
	readings, err := c.History(ctx, 1)
	if err != nil {
		return domain.Reading{}, err
	}
	if len(readings) == 0 {
		return domain.Reading{}, domain.ErrReadingNotFound
	}
	return readings[0], nil
}

// History returns up to limit readings, newest first (the feed's order).
func (c *Client) History(ctx context.Context, limit int) ([]domain.Reading, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, limit)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	return result.([]domain.Reading), nil
}

// Redial replaces the HTTP client, dropping any pooled connections. Used as
// the recovery action between retry attempts when the feed misbehaves.
func (c *Client) Redial(context.Context, error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient.CloseIdleConnections()
	c.httpClient = newHTTPClient(c.timeout)
	return nil
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

type feedEntry struct {
	Value               string `json:"value"`
	ValueClassification string `json:"value_classification"`
	Timestamp           string `json:"timestamp"`
	TimeUntilUpdate     string `json:"time_until_update"`
}

type feedResponse struct {
	Name     string      `json:"name"`
	Data     []feedEntry `json:"data"`
	Metadata struct {
		Error *string `json:"error"`
	} `json:"metadata"`
}

func (c *Client) fetch(ctx context.Context, limit int) ([]domain.Reading, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client().Do(req)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}

	if feed.Metadata.Error != nil {
		return nil, &FeedError{Message: *feed.Metadata.Error}
	}

	readings := make([]domain.Reading, 0, len(feed.Data))
	for _, entry := range feed.Data {
		r, err := entry.toReading()
		if err != nil {
			return nil, fmt.Errorf("malformed feed entry: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (e feedEntry) toReading() (domain.Reading, error) {
	value, err := strconv.Atoi(e.Value)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("invalid value %q: %w", e.Value, err)
	}
	if value < 0 || value > 100 {
		return domain.Reading{}, fmt.Errorf("value %d out of range [0,100]", value)
	}

	ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("invalid timestamp %q: %w", e.Timestamp, err)
	}

	r := domain.Reading{
		Value:          value,
		Classification: e.ValueClassification,
		ObservedAt:     time.Unix(ts, 0).UTC(),
	}

	// time_until_update is only present on the newest entry.
	if e.TimeUntilUpdate != "" {
		secs, err := strconv.ParseInt(e.TimeUntilUpdate, 10, 64)
		if err != nil {
			return domain.Reading{}, fmt.Errorf("invalid time_until_update %q: %w", e.TimeUntilUpdate, err)
		}
		r.TimeUntilUpdate = time.Duration(secs) * time.Second
	}

	return r, nil
}

// Classify maps feed errors onto retry actions: rate limiting gets the long
// backoff, server and transport failures the normal one, anything else stops.
func Classify(err error) retry.Action {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case statusErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}

	var feedErr *FeedError
	if errors.As(err, &feedErr) {
		return retry.Stop
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Retry
	}

	// Transport-level failures come wrapped in *url.Error.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return retry.Retry
	}

	return retry.Stop
}
