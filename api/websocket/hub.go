package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/offboardpro/offboardpro/api/auth"
	"github.com/offboardpro/offboardpro/api/services/entitlement/observer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is one connected view of a user's entitlement.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	sub    *observer.Subscription
	cancel context.CancelFunc
	id     string
	userID string
}

// Hub tracks live entitlement streams. Each connection is backed by its own
// observer subscription.
type Hub struct {
	obs      *observer.Observer
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. allowedOrigin "*" accepts any origin.
func NewHub(obs *observer.Observer, allowedOrigin string) *Hub {
	return &Hub{
		obs: obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		clients: make(map[*Client]struct{}),
	}
}

// HandleWebSocket upgrades an authenticated request and streams the
// caller's entitlement until either side closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	uid := auth.UserID(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", uid, "error", err)
		return
	}

	// the request context ends when this handler returns
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.obs.Subscribe(ctx, uid)
	if err != nil {
		cancel()
		slog.Error("entitlement subscription failed", "user_id", uid, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "entitlement unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := &Client{hub: h, conn: conn, sub: sub, cancel: cancel, id: uuid.NewString(), userID: uid}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("websocket client connected", "client", c.id, "user_id", uid)

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.cancel()
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// readPump only services control frames; views never send data.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.remove(c)
		slog.Info("websocket client disconnected", "client", c.id, "user_id", c.userID)
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
	}
}

// writePump forwards subscription values and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.sub.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(Message{Type: "entitlement", Data: e})
			if err != nil {
				slog.Error("failed to marshal entitlement message", "client", c.id, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}
