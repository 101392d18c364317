// Package watch pushes live recompile status to a browser dashboard while
// `pmmlc watch` is running: one broadcast channel, since there's no
// per-room fan-out need for a single watched document.
package watch

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Status is one compile attempt's outcome, broadcast verbatim as JSON to
// every connected dashboard.
type Status struct {
	CompilationID string   `json:"compilation_id"`
	OK            bool     `json:"ok"`
	Errors        []string `json:"errors,omitempty"`
	SourceBytes   int      `json:"source_bytes,omitempty"`
}

// Hub tracks connected dashboard clients and fans out Status updates.
type Hub struct {
	log     *zap.Logger
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, clients: map[*websocket.Conn]struct{}{}}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket connection and registers it
// for future Broadcast calls.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.drain(conn)
}

// drain discards inbound messages (the dashboard never sends any) until the
// client disconnects, then unregisters it.
func (h *Hub) drain(conn *websocket.Conn) {
	defer h.unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends status to every connected dashboard client.
func (h *Hub) Broadcast(status Status) {
	payload, err := json.Marshal(status)
	if err != nil {
		h.log.Error("failed to marshal watch status", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("dropping unresponsive watch client", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
