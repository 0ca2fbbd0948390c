package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subscription is a standing request to be notified about index movements.
type Subscription struct {
	ID         uuid.UUID
	TargetURL  string
	LowerBound int  // notify when value <= LowerBound; -1 disables
	UpperBound int  // notify when value >= UpperBound; -1 disables
	OnBandFlip bool // notify when the classification band changes
	Cooldown   time.Duration
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NotifyReason explains why a notification fired.
type NotifyReason string

const (
	ReasonThresholdLow  NotifyReason = "threshold_low"
	ReasonThresholdHigh NotifyReason = "threshold_high"
	ReasonBandFlip      NotifyReason = "classification_change"
)

// Notification pairs a triggering reading with the subscription it matched.
type Notification struct {
	SubscriptionID uuid.UUID
	Reading        Reading
	Reason         NotifyReason
	FiredAt        time.Time
}

// Matches reports the reasons a reading triggers this subscription, given the
// previous reading's band (empty when unknown).
func (s Subscription) Matches(r Reading, previousBand string) []NotifyReason {
	var reasons []NotifyReason
	if s.LowerBound >= 0 && r.Value <= s.LowerBound {
		reasons = append(reasons, ReasonThresholdLow)
	}
	if s.UpperBound >= 0 && r.Value >= s.UpperBound {
		reasons = append(reasons, ReasonThresholdHigh)
	}
	if s.OnBandFlip && previousBand != "" && r.Band() != previousBand {
		reasons = append(reasons, ReasonBandFlip)
	}
	return reasons
}

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub Subscription) (Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Notifier delivers a notification to its subscription target.
type Notifier interface {
	Notify(ctx context.Context, sub Subscription, n Notification) error
}

// Debouncer gates repeated notifications for the same subscription. Allow
// returns true when the cooldown has elapsed and atomically re-arms it.
type Debouncer interface {
	Allow(ctx context.Context, subscriptionID uuid.UUID, cooldown time.Duration) (bool, error)
}
