package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func InitLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(newPollIDHandler(handler))
	slog.SetDefault(Logger)
}

type pollIDKey struct{}

// NewPollID generates an 8-character hex ID tagging one poll cycle's log lines.
func NewPollID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithPollID returns a context carrying the given poll cycle ID.
func WithPollID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pollIDKey{}, id)
}

// PollID extracts the poll cycle ID from ctx, returning ("", false) if absent.
func PollID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pollIDKey{}).(string)
	return id, ok && id != ""
}

// pollIDHandler injects a "poll_id" attribute when the context carries one.
type pollIDHandler struct {
	inner slog.Handler
}

func newPollIDHandler(inner slog.Handler) *pollIDHandler {
	return &pollIDHandler{inner: inner}
}

func (h *pollIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *pollIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := PollID(ctx); ok {
		r.AddAttrs(slog.String("poll_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *pollIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &pollIDHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *pollIDHandler) WithGroup(name string) slog.Handler {
	return &pollIDHandler{inner: h.inner.WithGroup(name)}
}
