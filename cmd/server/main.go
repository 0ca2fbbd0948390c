package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fngpulse/fngpulse/internal/adapter/postgres"
	"github.com/fngpulse/fngpulse/internal/adapter/redis"
	"github.com/fngpulse/fngpulse/internal/app"
	"github.com/fngpulse/fngpulse/internal/config"
	"github.com/fngpulse/fngpulse/internal/coordination"
	"github.com/fngpulse/fngpulse/internal/fng"
	"github.com/fngpulse/fngpulse/internal/logging"
	"github.com/fngpulse/fngpulse/internal/notify"
	"github.com/fngpulse/fngpulse/internal/poller"
	"github.com/fngpulse/fngpulse/internal/server"
	"github.com/fngpulse/fngpulse/internal/stats"
	"github.com/fngpulse/fngpulse/internal/websocket"
)

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return hostname + "-" + uuid.NewString()[:8]
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, hub *websocket.Hub, stopPolling context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopPolling()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	readingRepo := postgres.NewReadingRepo(pool)
	subscriptionRepo := postgres.NewSubscriptionRepo(pool)
	readingCache := redis.NewReadingCache(redisClient)
	debouncer := redis.NewDebouncer(redisClient)

	feedClient := fng.NewClient(cfg.IndexBaseURL, cfg.UpstreamTimeout)
	hub := websocket.NewHub(cfg.MaxWSClients)
	notifier := notify.NewWebhookNotifier(cfg.SigningKey)

	leader := coordination.NewLeaderElection(redisClient, instanceID(), coordination.PollerLeaderKey, 2*cfg.PollInterval)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = leader.Release(ctx)
	}()

	pollCtx, stopPolling := context.WithCancel(context.Background())
	defer stopPolling()

	indexPoller := poller.New(poller.Options{
		Source:    feedClient,
		Store:     readingRepo,
		Cache:     readingCache,
		Feed:      hub,
		Subs:      subscriptionRepo,
		Debouncer: debouncer,
		Notifier:  notifier,
		Clock:     clock,
		Interval:  cfg.PollInterval,
		Classify:  fng.Classify,
		Recover:   feedClient.Redial,
		Leader:    leader,
	})
	go indexPoller.Run(pollCtx)

	readingService := app.NewReadingService(readingCache, readingRepo, feedClient, cfg.HistoryLimit)
	statsService := stats.NewService(readingRepo, clock)

	srv := server.NewServer(cfg, readingService, statsService, subscriptionRepo, hub, redisClient, pool)

	done := runGracefulShutdown(srv, hub, stopPolling)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
