package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (never rate limited)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	api := s.echo.Group("/api/v1", s.rateLimiter())
	api.GET("/index/latest", s.handleLatest)
	api.GET("/index/history", s.handleHistory)
	api.GET("/index/stats", s.handleStats)

	api.POST("/subscriptions", s.handleCreateSubscription)
	api.GET("/subscriptions", s.handleListSubscriptions)
	api.GET("/subscriptions/:id", s.handleGetSubscription)
	api.DELETE("/subscriptions/:id", s.handleDeleteSubscription)

	// Live feed (no rate limit, connection cap lives in the hub)
	s.echo.GET("/ws/index", s.handleWebSocket)
}

// rateLimiter applies a per-IP token bucket to the JSON API.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(s.config.APIRateLimit),
			Burst:     s.config.APIRateBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	})
}
