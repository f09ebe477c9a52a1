package handler

import (
	"net/http"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/push"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store      store.Store
	pushClient *push.Client
}

// NewHealthHandler creates a new health handler. pushClient may be nil
// when push is not configured.
func NewHealthHandler(st store.Store, pushClient *push.Client) *HealthHandler {
	return &HealthHandler{
		store:      st,
		pushClient: pushClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "state store unavailable",
		})
		return
	}

	// Push is an optimization; readiness does not depend on it. Report it
	// for operators anyway.
	pushStatus := "disabled"
	if h.pushClient != nil {
		if h.pushClient.IsConnected() {
			pushStatus = "connected"
		} else {
			pushStatus = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"push":   pushStatus,
	})
}
