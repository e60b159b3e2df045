package web

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/datachat-ai/datachat/internal/orchestrator"
)

// eventWriteWait bounds each subscriber write so one stalled connection
// cannot hold up event delivery for everyone else.
const eventWriteWait = 2 * time.Second

// Hub fans exchange lifecycle events out to WebSocket subscribers,
// keyed by session. It implements orchestrator.Notifier.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]map[*websocket.Conn]bool
	logger *slog.Logger
}

// NewHub creates an event hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Publish delivers an event to every subscriber of the session. Writes
// happen under the lock so they never interleave on a connection; each
// write carries a deadline, and a failed or stalled write drops the
// subscriber.
func (h *Hub) Publish(sessionID string, event orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[sessionID] {
		conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug("dropping event subscriber", "session", sessionID, "error", err)
			conn.Close()
			delete(h.conns[sessionID], conn)
		}
	}
}

func (h *Hub) add(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.conns[sessionID][conn] = true
}

func (h *Hub) remove(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.conns[sessionID]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.conns, sessionID)
		}
	}
}

// CloseSession disconnects every subscriber of a session. Called when
// the session is deleted.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[sessionID] {
		conn.Close()
	}
	delete(h.conns, sessionID)
}

// CloseAll disconnects everything. Called during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, subs := range h.conns {
		for conn := range subs {
			conn.Close()
		}
		delete(h.conns, sessionID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents upgrades the request to a WebSocket and streams the
// session's exchange lifecycle events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	session := requestSession(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.hub.add(session.ID, conn)
	defer func() {
		s.hub.remove(session.ID, conn)
		conn.Close()
	}()

	// The read loop exists to notice disconnects; clients don't send.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
