// Package ws implements the WebSocket adapter that streams task changes to dashboards.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. An empty businessID receives
// changes of every business.
type conn struct {
	ws         *websocket.Conn
	cancel     context.CancelFunc
	businessID string
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu          sync.RWMutex
	conns       map[*conn]struct{}
	allowOrigin []string
	log         *slog.Logger
}

// NewHub creates a new WebSocket hub. allowOrigin lists the origin patterns
// accepted on upgrade; empty means same-origin only.
func NewHub(allowOrigin string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		conns: make(map[*conn]struct{}),
		log:   log,
	}
	if allowOrigin != "" {
		h.allowOrigin = []string{allowOrigin}
	}
	return h
}

// HandleWS upgrades the connection and blocks until the client goes away.
// ?business_id= narrows the stream to one business.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowOrigin,
	})
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, businessID: r.URL.Query().Get("business_id")}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	h.log.Info("websocket connected", "remote", r.RemoteAddr, "business_id", c.businessID)

	defer func() {
		h.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()
	// Read loop detects disconnects; clients never send anything we act on.
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.send(ctx, "", msg)
}

// BroadcastToBusiness sends a message to clients watching businessID or
// watching every business.
func (h *Hub) BroadcastToBusiness(ctx context.Context, businessID string, msg Message) {
	h.send(ctx, businessID, msg)
}

func (h *Hub) send(ctx context.Context, businessID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if businessID == "" || c.businessID == "" || c.businessID == businessID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.log.Debug("websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		h.log.Info("websocket disconnected", "business_id", c.businessID)
	}
}
