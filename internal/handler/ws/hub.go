// Package ws streams status snapshots to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/usecase"
	xhttp "SpotAgent/pkg/http"
	"SpotAgent/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// Message is the frame written to clients.
type Message struct {
	Type string                `json:"type"`
	Data models.StatusSnapshot `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans the latest snapshot out to every connected client. A client that
// cannot keep up is dropped rather than blocking the agent.
type Hub struct {
	upgrader websocket.Upgrader
	auth     func(caller string) bool
	l        *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub builds a hub. auth is checked against usecase.APICaller(token); nil
// leaves the stream open.
func NewHub(auth func(caller string) bool, l *logger.Logger) *Hub {
	if l == nil {
		l = logger.Nop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		auth:     auth,
		l:        l,
		clients:  make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/status", h.serve)
}

func (h *Hub) serve(c echo.Context) error {
	if h.auth != nil {
		token := xhttp.BearerToken(c)
		if token == "" {
			token = c.QueryParam("token")
		}
		if token == "" || !h.auth(usecase.APICaller(token)) {
			return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("caller not allowed"))
		}
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	if h.last != nil {
		cl.send <- h.last
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.l.Debug("status stream client connected", logger.Int("clients", n))

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// readLoop only services control frames; it returns when the peer goes away.
func (h *Hub) readLoop(cl *client) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// PublishStatus implements usecase.StatusSink.
func (h *Hub) PublishStatus(_ context.Context, snap models.StatusSnapshot) {
	b, err := json.Marshal(Message{Type: "status", Data: snap})
	if err != nil {
		h.l.Error("encode status frame", logger.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			delete(h.clients, cl)
			close(cl.send)
			h.l.Warn("status stream client too slow, dropped")
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}
