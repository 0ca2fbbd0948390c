// Package server exposes the HTTP API, the websocket feed, and the
// observability endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fngpulse/fngpulse/internal/app"
	"github.com/fngpulse/fngpulse/internal/config"
	"github.com/fngpulse/fngpulse/internal/domain"
	apperrors "github.com/fngpulse/fngpulse/internal/errors"
	"github.com/fngpulse/fngpulse/internal/stats"
	"github.com/fngpulse/fngpulse/internal/websocket"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	readings  *app.ReadingService
	stats     *stats.Service
	subs      domain.SubscriptionRepository
	hub       *websocket.Hub
	startTime time.Time

	redisHealthCheck    redisHealthChecker
	postgresHealthCheck postgresHealthChecker
}

func NewServer(
	cfg *config.Config,
	readings *app.ReadingService,
	statsService *stats.Service,
	subs domain.SubscriptionRepository,
	hub *websocket.Hub,
	redisCheck redisHealthChecker,
	postgresCheck postgresHealthChecker,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:                e,
		config:              cfg,
		readings:            readings,
		stats:               statsService,
		subs:                subs,
		hub:                 hub,
		startTime:           time.Now(),
		redisHealthCheck:    redisCheck,
		postgresHealthCheck: postgresCheck,
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
