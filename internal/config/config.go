package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/fngpulse/fngpulse/internal/platform/fallback"
)

const defaultIndexBaseURL = "https://api.alternative.me/fng/"

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// IndexBaseURL resolves through a fallback chain, see resolveIndexBaseURL.
	IndexBaseURL   string `env:"INDEX_BASE_URL"`
	IndexURLFile   string `env:"INDEX_BASE_URL_FILE"`
	SigningKey     string `env:"WEBHOOK_SIGNING_KEY"`
	SigningKeyFile string `env:"WEBHOOK_SIGNING_KEY_FILE"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" default:"5m"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" default:"10s"`
	HistoryLimit    int           `env:"HISTORY_LIMIT" default:"365"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"10"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"20"`
	MaxWSClients int     `env:"MAX_WS_CLIENTS" default:"1000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.IndexBaseURL = resolveIndexBaseURL(&cfg)
	cfg.SigningKey = resolveSigningKey(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveIndexBaseURL picks the first configured source: explicit env var, a
// secrets file, then the public default.
func resolveIndexBaseURL(cfg *Config) string {
	return fallback.FirstOr(context.Background(), defaultIndexBaseURL,
		envSource(cfg.IndexBaseURL),
		fileSource(cfg.IndexURLFile),
	)
}

// resolveSigningKey works the same way but has no default: an empty key
// disables webhook signing.
func resolveSigningKey(cfg *Config) string {
	return fallback.FirstOr(context.Background(), "",
		envSource(cfg.SigningKey),
		fileSource(cfg.SigningKeyFile),
	)
}

func envSource(value string) fallback.Source[string] {
	return func(context.Context) (string, bool, error) {
		return value, value != "", nil
	}
}

func fileSource(path string) fallback.Source[string] {
	return func(context.Context) (string, bool, error) {
		if path == "" {
			return "", false, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, fmt.Errorf("failed to read %s: %w", path, err)
		}
		value := strings.TrimSpace(string(data))
		return value, value != "", nil
	}
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	u, err := url.Parse(cfg.IndexBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("INDEX_BASE_URL must be an http(s) URL, got %q", cfg.IndexBaseURL)
	}

	if cfg.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", cfg.PollInterval)
	}
	if cfg.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be positive, got %f", cfg.APIRateLimit)
	}

	return nil
}
