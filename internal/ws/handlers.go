package ws

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/relaykit/relay/internal/broker"
)

// Handler upgrades HTTP connections to WebSocket sessions and tracks every
// live session so the server can close them on shutdown.
type Handler struct {
	reg      *broker.Registry
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Client]struct{}
	draining bool
}

// NewHandler creates a Handler. allowedOrigins is the list of acceptable
// browser origins; empty allows any origin (non-browser clients send none).
func NewHandler(reg *broker.Registry, allowedOrigins []string) *Handler {
	return &Handler{
		reg: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sessions: make(map[*Client]struct{}),
	}
}

// RegisterRoutes wires the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
}

// ServeWS upgrades an HTTP GET /ws request to a WebSocket session.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the error response.
		return
	}

	client := NewClient(h.reg, conn)
	client.onClose = h.forget

	h.mu.Lock()
	h.sessions[client] = struct{}{}
	h.mu.Unlock()

	log.Printf("ws: session %s connected from %s", client.ID, r.RemoteAddr)
	client.Start()
}

func (h *Handler) forget(c *Client) {
	h.mu.Lock()
	delete(h.sessions, c)
	h.mu.Unlock()
}

// SessionCount reports the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown performs the graceful sequence: stop accepting new sessions,
// drain the registry within the ctx deadline, then close every remaining
// session with close code 1001.
func (h *Handler) Shutdown(ctx context.Context) {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	h.reg.Shutdown(ctx)

	h.mu.Lock()
	sessions := make([]*Client, 0, len(h.sessions))
	for c := range h.sessions {
		sessions = append(sessions, c)
	}
	h.mu.Unlock()

	for _, c := range sessions {
		c.Kick(broker.CloseGoingAway, "Server shutting down")
	}
	for _, c := range sessions {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return
		}
	}
}
