package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fngpulse/fngpulse/internal/domain"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func (r *SubscriptionRepo) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (target_url, lower_bound, upper_bound, on_band_flip, cooldown_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, sub.TargetURL, sub.LowerBound, sub.UpperBound, sub.OnBandFlip, int64(sub.Cooldown/time.Second)).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	sub, err := scanSubscription(r.pool.QueryRow(ctx, `
		SELECT id, target_url, lower_bound, upper_bound, on_band_flip, cooldown_seconds, created_at, updated_at
		FROM subscriptions
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepo) List(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, target_url, lower_bound, upper_bound, on_band_flip, cooldown_seconds, created_at, updated_at
		FROM subscriptions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

func (r *SubscriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	var cooldownSeconds int64
	err := row.Scan(&sub.ID, &sub.TargetURL, &sub.LowerBound, &sub.UpperBound,
		&sub.OnBandFlip, &cooldownSeconds, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.Cooldown = time.Duration(cooldownSeconds) * time.Second
	return sub, nil
}
