package server

import (
	"errors"
	"log/slog"
	"net/http"

	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fngpulse/fngpulse/internal/domain"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is public read-only data; any origin may subscribe.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Upgrade already wrote the error response
	}

	if err := s.hub.Register(conn); err != nil {
		if !errors.Is(err, domain.ErrFeedFull) {
			slog.Warn("Feed registration failed", "error", err)
		}
		return nil
	}

	// Block reading until the client disconnects; the hub owns all writes.
	go s.readUntilClose(conn)
	return nil
}

func (s *Server) readUntilClose(conn *gws.Conn) {
	defer s.hub.Unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
