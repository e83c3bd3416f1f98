package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scripting"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

type clientMsg struct {
	Type string `json:"type"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine events out to every connected websocket client. A client
// that falls behind by more than clientBuffer messages is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

var (
	_ round.Emitter          = (*Hub)(nil)
	_ scripting.EventEmitter = (*Hub)(nil)
)

// NewHub builds a hub. allowOrigin nil accepts same-origin requests only.
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		clients:  make(map[*client]struct{}),
	}
}

// HandleWS upgrades the request and serves the connection until it closes.
// Clients only ever send pings; everything else is pushed.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	for {
		var msg clientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "ping" {
			h.enqueue(c, mustEvent("pong", nil))
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) enqueue(c *client, msg []byte) {
	h.mu.RLock()
	sent := true
	if _, ok := h.clients[c]; ok {
		select {
		case c.send <- msg:
		default:
			sent = false
		}
	}
	h.mu.RUnlock()
	if !sent {
		h.log.Warn("dropping slow websocket client")
		h.remove(c)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one event to every client.
func (h *Hub) Broadcast(eventType string, data any) {
	msg := mustEvent(eventType, data)
	if msg == nil {
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow websocket client")
		h.remove(c)
	}
}

func (h *Hub) EmitRound(s round.Snapshot) { h.Broadcast(EventRound, s) }

func (h *Hub) EmitScriptState(s scripting.EngineSnapshot) { h.Broadcast(EventScriptState, s) }

func (h *Hub) EmitScriptLog(entries []scripting.LogEntry) { h.Broadcast(EventScriptLog, entries) }

// WatchBalance forwards balance updates until ctx is done or updates closes.
func (h *Hub) WatchBalance(ctx context.Context, updates <-chan decimal.Decimal) {
	for {
		select {
		case <-ctx.Done():
			return
		case bal, ok := <-updates:
			if !ok {
				return
			}
			h.Broadcast(EventBalance, BalanceResponse{Balance: bal})
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func mustEvent(eventType string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(Event{Type: eventType, Data: raw})
	if err != nil {
		return nil
	}
	return msg
}
