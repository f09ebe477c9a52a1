package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/fallback"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/offline"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/session"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
)

// StatusHandler exposes the widget's composite state to the embedding page.
type StatusHandler struct {
	sessions  *session.Manager
	fallbacks *fallback.Controller
	queue     *offline.Queue
	monitor   *offline.Monitor
	logger    *logger.Logger
}

func NewStatusHandler(sessions *session.Manager, fb *fallback.Controller, q *offline.Queue, mon *offline.Monitor, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		sessions:  sessions,
		fallbacks: fb,
		queue:     q,
		monitor:   mon,
		logger:    log,
	}
}

type statusResponse struct {
	SessionID     string                 `json:"session_id,omitempty"`
	HandoffStatus model.HandoffStatus    `json:"handoff_status"`
	Unavailable   bool                   `json:"unavailable"`
	Online        bool                   `json:"online"`
	OfflineMode   bool                   `json:"offline_mode"`
	QueueDepth    int                    `json:"queue_depth"`
	Presentation  *fallback.Presentation `json:"presentation,omitempty"`
}

// Status handles GET /api/v1/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		HandoffStatus: model.HandoffStatusBotOnly,
		Unavailable:   h.sessions.Unavailable(),
		Online:        h.monitor.Online(),
		OfflineMode:   h.queue.OfflineMode(),
		Presentation:  h.fallbacks.Active(),
	}

	if sess := h.sessions.Current(); sess != nil {
		resp.SessionID = sess.SessionID
		resp.HandoffStatus = sess.HandoffStatus
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Error("failed to read queue depth", zap.Error(err))
	} else {
		resp.QueueDepth = depth
	}

	writeJSON(w, http.StatusOK, resp)
}

type offlineModeRequest struct {
	Enabled bool `json:"enabled"`
}

// OfflineMode handles POST /api/v1/offline-mode
func (h *StatusHandler) OfflineMode(w http.ResponseWriter, r *http.Request) {
	var req offlineModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.queue.SetOfflineMode(r.Context(), req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"offline_mode": req.Enabled})
}

// Dismiss handles POST /api/v1/presentation/dismiss
func (h *StatusHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.fallbacks.Dismiss()
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": true})
}
