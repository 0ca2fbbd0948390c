// Package notify delivers subscription notifications over webhooks.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/metrics"
	"github.com/fngpulse/fngpulse/internal/platform/retry"
)

const (
	signatureHeader = "X-Fngpulse-Signature"
	deliveryTimeout = 10 * time.Second
)

// WebhookNotifier POSTs notification payloads to subscription target URLs,
// optionally signing the body with an HMAC-SHA256 key.
type WebhookNotifier struct {
	httpClient *http.Client
	signingKey []byte
	policy     retry.Policy
}

func NewWebhookNotifier(signingKey string) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: deliveryTimeout},
		signingKey: []byte(signingKey),
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Webhook delivery retry", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}
}

type payload struct {
	SubscriptionID string `json:"subscription_id"`
	Reason         string `json:"reason"`
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	ObservedAt     string `json:"observed_at"`
	FiredAt        string `json:"fired_at"`
}

// Notify delivers one notification, retrying transient failures.
func (n *WebhookNotifier) Notify(ctx context.Context, sub domain.Subscription, notification domain.Notification) error {
	body, err := json.Marshal(payload{
		SubscriptionID: notification.SubscriptionID.String(),
		Reason:         string(notification.Reason),
		Value:          notification.Reading.Value,
		Classification: notification.Reading.Band(),
		ObservedAt:     notification.Reading.ObservedAt.Format(time.RFC3339),
		FiredAt:        notification.FiredAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = retry.DoVoid(ctx, n.policy, classifyDelivery, func() error {
		return n.deliver(ctx, sub.TargetURL, body)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(string(notification.Reason), status).Inc()

	if err != nil {
		return fmt.Errorf("webhook delivery to %s failed: %w", sub.TargetURL, err)
	}
	return nil
}

func (n *WebhookNotifier) deliver(ctx context.Context, targetURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return &permanentDeliveryError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if len(n.signingKey) > 0 {
		mac := hmac.New(sha256.New, n.signingKey)
		mac.Write(body)
		req.Header.Set(signatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &deliveryStatusError{status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return &deliveryStatusError{status: resp.StatusCode}
	default:
		// 4xx means the receiver rejects this payload; retrying won't help.
		return &permanentDeliveryError{err: &deliveryStatusError{status: resp.StatusCode}}
	}
}

type deliveryStatusError struct {
	status int
}

func (e *deliveryStatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.status)
}

type permanentDeliveryError struct {
	err error
}

func (e *permanentDeliveryError) Error() string { return e.err.Error() }
func (e *permanentDeliveryError) Unwrap() error { return e.err }

func classifyDelivery(err error) retry.Action {
	var permanent *permanentDeliveryError
	if errors.As(err, &permanent) {
		return retry.Stop
	}

	var statusErr *deliveryStatusError
	if errors.As(err, &statusErr) && statusErr.status == http.StatusTooManyRequests {
		return retry.After
	}

	return retry.Retry
}
