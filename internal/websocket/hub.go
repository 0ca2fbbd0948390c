// Package websocket fans fresh index readings out to connected feed clients.
package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fngpulse/fngpulse/internal/domain"
	"github.com/fngpulse/fngpulse/internal/metrics"
)

const clientSendBuffer = 16

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn  *websocket.Conn
	errCh chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	conn *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	data []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			_ = cw.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

// --- Hub ---

// Hub owns all feed connections. All state is confined to the run goroutine;
// interaction happens through the command channel.
type Hub struct {
	cmdCh      chan hubCmd
	clients    map[*websocket.Conn]*clientWriter
	maxClients int
}

func NewHub(maxClients int) *Hub {
	hub := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		clients:    make(map[*websocket.Conn]*clientWriter),
		maxClients: maxClients,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.conn)
		case cmdBroadcast:
			h.handleBroadcast(c.data)
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting feed client: max clients reached", "max", h.maxClients)
		_ = c.conn.Close()
		c.errCh <- domain.ErrFeedFull
		return
	}

	h.clients[c.conn] = newClientWriter(c.conn)
	metrics.WebSocketClientsCurrent.Set(float64(len(h.clients)))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	cw.stop()
	metrics.WebSocketClientsCurrent.Set(float64(len(h.clients)))
}

func (h *Hub) handleBroadcast(data []byte) {
	for conn, cw := range h.clients {
		select {
		case cw.sendCh <- data:
		default:
			// Slow client, its buffer is full. Evict rather than block the hub.
			slog.Warn("Evicting slow feed client")
			metrics.WebSocketSlowClientsEvicted.Inc()
			delete(h.clients, conn)
			cw.stop()
		}
	}
	metrics.WebSocketClientsCurrent.Set(float64(len(h.clients)))
}

func (h *Hub) handleStop() {
	for conn, cw := range h.clients {
		delete(h.clients, conn)
		cw.stop()
	}
	metrics.WebSocketClientsCurrent.Set(0)
}

// Register adds a connection to the feed. Returns domain.ErrFeedFull when the
// client cap is reached.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{conn: conn, errCh: errCh}
	return <-errCh
}

// Unregister removes a connection and closes it.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- cmdUnregister{conn: conn}
}

// Broadcast sends a fresh reading to every connected client.
func (h *Hub) Broadcast(r domain.Reading) {
	payload, err := json.Marshal(feedMessage{
		Value:          r.Value,
		Classification: r.Band(),
		ObservedAt:     r.ObservedAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("Failed to marshal feed message", "error", err)
		return
	}
	h.cmdCh <- cmdBroadcast{data: payload}
}

// ClientCount reports connected clients (for tests and readiness checks).
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{replyCh: replyCh}
	return <-replyCh
}

// Stop disconnects every client and shuts the hub down.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}

type feedMessage struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	ObservedAt     string `json:"observed_at"`
}
