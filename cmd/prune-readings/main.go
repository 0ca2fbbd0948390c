// Command prune-readings deletes stored index readings older than the
// retention window. Meant to run from cron or a scheduled job.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fngpulse/fngpulse/internal/adapter/postgres"
)

func main() {
	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
		retainDays  = flag.Int("retain-days", 730, "Keep readings newer than this many days")
		dryRun      = flag.Bool("dry-run", false, "Dry run mode (don't delete anything)")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("PostgreSQL URL required (--database or DATABASE_URL env)")
	}
	if *retainDays < 1 {
		log.Fatalf("retain-days must be positive, got %d", *retainDays)
	}

	// Configure logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", sanitizeURL(*databaseURL))

	cutoff := time.Now().AddDate(0, 0, -*retainDays)
	if err := prune(ctx, pool, cutoff, *dryRun); err != nil {
		log.Fatalf("Prune failed: %v", err)
	}

	slog.Info("Prune complete")
}

func prune(ctx context.Context, pool *pgxpool.Pool, cutoff time.Time, dryRun bool) error {
	start := time.Now()
	repo := postgres.NewReadingRepo(pool)

	slog.Info("Starting prune", "cutoff", cutoff.Format(time.RFC3339), "dry_run", dryRun)

	if dryRun {
		var count int64
		err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM readings WHERE observed_at < $1`, cutoff).Scan(&count)
		if err != nil {
			return err
		}
		slog.Info("Dry run: readings that would be deleted", "count", count)
		return nil
	}

	deleted, err := repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	slog.Info("Prune summary",
		"deleted", deleted,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func sanitizeURL(url string) string {
	// Hide password in connection URL for logging
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			credParts := strings.Split(parts[0], ":")
			if len(credParts) >= 2 {
				return credParts[0] + ":***@" + parts[1]
			}
		}
	}
	return url
}
