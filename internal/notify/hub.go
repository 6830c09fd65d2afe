package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

const writeTimeout = 5 * time.Second

// frame is the wire shape pushed to clients.
type frame struct {
	Event     string `json:"event"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Hub tracks websocket connections per audience and fans events out to
// them. A slow or broken connection is dropped on write failure.
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement belongs to the CORS layer in front.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the request and parks the connection under the
// actor's audience until the peer goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor != "manager" && actor != "customer" {
		http.Error(w, "actor must be manager or customer", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, "id must be a valid identifier", http.StatusBadRequest)
		return
	}

	audience := CustomerAudience(id)
	if actor == "manager" {
		audience = ManagerAudience(id)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("notify: websocket upgrade failed", "error", err)
		return
	}

	h.add(audience, conn)
	defer h.remove(audience, conn)
	h.logger.Info("notify: connection opened", "audience", audience)

	// Drain control frames; the hub is push-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Debug("notify: connection closed", "audience", audience, "error", err)
			return
		}
	}
}

// Notify sends an event to every connection in the audience.
func (h *Hub) Notify(_ context.Context, audience, event string, payload any) {
	data, err := json.Marshal(frame{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Warn("notify: encode failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns[audience]))
	for conn := range h.conns[audience] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("notify: dropping connection", "audience", audience, "error", err)
			h.remove(audience, conn)
			_ = conn.Close()
		}
	}
}

// ConnectionCount reports active connections for an audience.
func (h *Hub) ConnectionCount(audience string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[audience])
}

func (h *Hub) add(audience string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[audience] == nil {
		h.conns[audience] = make(map[*websocket.Conn]struct{})
	}
	h.conns[audience][conn] = struct{}{}
}

func (h *Hub) remove(audience string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[audience]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.conns, audience)
		}
	}
}
