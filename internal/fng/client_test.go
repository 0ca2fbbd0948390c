package fng

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/platform/retry"
)

const feedBody = `{
	"name": "Fear and Greed Index",
	"data": [
		{"value": "40", "value_classification": "Fear", "timestamp": "1551157200", "time_until_update": "68499"},
		{"value": "47", "value_classification": "Neutral", "timestamp": "1551070800"}
	],
	"metadata": {"error": null}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/fng/", 5*time.Second)
}

func TestClient_Latest(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, feedBody)
	})

	reading, err := client.Latest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, reading.Value)
	assert.Equal(t, "Fear", reading.Classification)
	assert.Equal(t, time.Unix(1551157200, 0).UTC(), reading.ObservedAt)
	assert.Equal(t, 68499*time.Second, reading.TimeUntilUpdate)
	assert.Contains(t, gotQuery, "limit=1")
	assert.Contains(t, gotQuery, "format=json")
}

func TestClient_History(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "limit=2")
		fmt.Fprint(w, feedBody)
	})

	readings, err := client.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, 40, readings[0].Value)
	assert.Equal(t, 47, readings[1].Value)
	assert.Zero(t, readings[1].TimeUntilUpdate, "only the newest entry carries time_until_update")
}

func TestClient_History_RejectsBadLimit(t *testing.T) {
	client := NewClient("http://unused.invalid/fng/", time.Second)
	_, err := client.History(context.Background(), 0)
	assert.Error(t, err)
}

func TestClient_FeedError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name":"Fear and Greed Index","data":[],"metadata":{"error":"service overloaded"}}`)
	})

	_, err := client.Latest(context.Background())
	var feedErr *FeedError
	require.ErrorAs(t, err, &feedErr)
	assert.Equal(t, "service overloaded", feedErr.Message)
}

func TestClient_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Latest(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestClient_MalformedValue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name":"x","data":[{"value":"banana","timestamp":"1551157200"}],"metadata":{"error":null}}`)
	})

	_, err := client.Latest(context.Background())
	assert.ErrorContains(t, err, "malformed feed entry")
}

func TestClient_ValueOutOfRange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name":"x","data":[{"value":"140","timestamp":"1551157200"}],"metadata":{"error":null}}`)
	})

	_, err := client.Latest(context.Background())
	assert.ErrorContains(t, err, "out of range")
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Latest(context.Background())
		require.Error(t, err)
	}

	_, err := client.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Redial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, feedBody)
	})

	before := client.client()
	require.NoError(t, client.Redial(context.Background(), errors.New("cause")))
	assert.NotSame(t, before, client.client())

	_, err := client.Latest(context.Background())
	assert.NoError(t, err, "client must still work after a redial")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Action
	}{
		{"rate limited", &StatusError{StatusCode: 429}, retry.After},
		{"server error", &StatusError{StatusCode: 502}, retry.Retry},
		{"client error", &StatusError{StatusCode: 404}, retry.Stop},
		{"feed error", &FeedError{Message: "nope"}, retry.Stop},
		{"unknown", errors.New("weird"), retry.Stop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_NetworkErrorRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // guaranteed connection refused

	client := NewClient(srv.URL+"/fng/", time.Second)
	_, err := client.Latest(context.Background())
	require.Error(t, err)
	assert.Equal(t, retry.Retry, Classify(err))
}
