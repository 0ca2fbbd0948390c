package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fngpulse/fngpulse/internal/domain"
)

type ReadingRepo struct {
	pool *pgxpool.Pool
}

func NewReadingRepo(pool *pgxpool.Pool) *ReadingRepo {
	return &ReadingRepo{pool: pool}
}

// Insert stores a reading, ignoring duplicates for the same observation time.
// The feed republishes the current day's value on every poll.
func (r *ReadingRepo) Insert(ctx context.Context, reading domain.Reading) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO readings (observed_at, value, classification)
		VALUES ($1, $2, $3)
		ON CONFLICT (observed_at) DO UPDATE SET
			value = EXCLUDED.value,
			classification = EXCLUDED.classification
	`, reading.ObservedAt, reading.Value, reading.Classification)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (r *ReadingRepo) Latest(ctx context.Context) (domain.Reading, error) {
	var reading domain.Reading
	err := r.pool.QueryRow(ctx, `
		SELECT observed_at, value, classification
		FROM readings
		ORDER BY observed_at DESC
		LIMIT 1
	`).Scan(&reading.ObservedAt, &reading.Value, &reading.Classification)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reading{}, domain.ErrReadingNotFound
	}
	if err != nil {
		return domain.Reading{}, fmt.Errorf("failed to get latest reading: %w", err)
	}
	reading.ObservedAt = reading.ObservedAt.UTC()
	return reading, nil
}

// DeleteOlderThan removes readings observed before cutoff and reports how
// many rows were dropped. Used by the retention pruner.
func (r *ReadingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM readings
		WHERE observed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Range returns readings observed at or after since, newest first, capped at limit.
func (r *ReadingRepo) Range(ctx context.Context, since time.Time, limit int) ([]domain.Reading, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT observed_at, value, classification
		FROM readings
		WHERE observed_at >= $1
		ORDER BY observed_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		var reading domain.Reading
		if err := rows.Scan(&reading.ObservedAt, &reading.Value, &reading.Classification); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.ObservedAt = reading.ObservedAt.UTC()
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}
