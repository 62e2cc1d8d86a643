package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relaykit/relay/internal/broker"
	"github.com/relaykit/relay/internal/httputil"
)

// Handlers is the administrative HTTP surface: a thin adapter over the
// registry's administrative operations.
type Handlers struct {
	reg *broker.Registry
}

func NewHandlers(reg *broker.Registry) *Handlers {
	return &Handlers{reg: reg}
}

// RegisterRoutes wires the administrative endpoints and the JSON 404
// fallback for unknown paths.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	r.HandleFunc("/topics", h.ListTopics).Methods(http.MethodGet)
	r.HandleFunc("/topics", h.CreateTopic).Methods(http.MethodPost)
	r.HandleFunc("/topics/{name}", h.DeleteTopic).Methods(http.MethodDelete)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound
}

// Index returns basic service information.
func (h *Handlers) Index(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"service": "relay",
		"status":  "ok",
		"endpoints": map[string]string{
			"websocket": "/ws",
			"health":    "/health",
			"stats":     "/stats",
			"topics":    "/topics",
		},
	})
}

// Health reports uptime and table sizes.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.reg.Health())
}

// Stats reports per-topic message and subscriber counts.
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"topics": h.reg.Stats()})
}

// ListTopics returns every topic with its subscriber count.
func (h *Handlers) ListTopics(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"topics": h.reg.ListTopics()})
}

type createTopicRequest struct {
	Name string `json:"name"`
}

// CreateTopic registers a new topic.
func (h *Handlers) CreateTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	switch err := h.reg.CreateTopic(name); {
	case err == nil:
		httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "created", "topic": name})
	case errors.Is(err, broker.ErrTopicExists):
		httputil.WriteError(w, http.StatusConflict, "topic already exists")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// DeleteTopic removes a topic, detaching and notifying its subscribers.
func (h *Handlers) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	switch err := h.reg.DeleteTopic(name); {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "topic": name})
	case errors.Is(err, broker.ErrTopicNotFound):
		httputil.WriteError(w, http.StatusNotFound, "topic not found")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
