package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/middleware"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/session"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
)

// MessagesHandler accepts outbound sends and handoff requests from the
// embedding page.
type MessagesHandler struct {
	sessions *session.Manager
	logger   *logger.Logger
}

func NewMessagesHandler(sessions *session.Manager, log *logger.Logger) *MessagesHandler {
	return &MessagesHandler{sessions: sessions, logger: log}
}

type sendRequest struct {
	Content string `json:"content"`
}

type queuedResponse struct {
	Queued   bool `json:"queued"`
	Position int  `json:"position"`
}

// Send handles POST /api/v1/messages
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sessions.SendMessage(r.Context(), req.Content, model.SenderUser)
	if err != nil {
		h.writeSendFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessagesHandler) writeSendFailure(w http.ResponseWriter, r *http.Request, err error) {
	var queued *session.QueuedError
	if errors.As(err, &queued) {
		writeJSON(w, http.StatusAccepted, queuedResponse{
			Queued:   true,
			Position: queued.Position,
		})
		return
	}

	if errors.Is(err, session.ErrSendBlocked) {
		writeError(w, http.StatusTooManyRequests, "sending is temporarily blocked")
		return
	}

	if errors.Is(err, session.ErrSessionUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "conversation could not be started")
		return
	}

	var classified *session.ClassifiedError
	if errors.As(err, &classified) {
		writeClassifiedError(w, classified.Classification, "message could not be delivered")
		return
	}

	h.logger.Error("send failed",
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to send message")
}

type handoffRequest struct {
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
}

// RequestHandoff handles POST /api/v1/handoff
func (h *MessagesHandler) RequestHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateHandoffReason(req.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateHandoffPriority(req.Priority); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	handoff, err := h.sessions.RequestHandoff(r.Context(), req.Reason, req.Priority)
	if err != nil {
		var classified *session.ClassifiedError
		if errors.As(err, &classified) {
			writeClassifiedError(w, classified.Classification, "handoff request failed")
			return
		}
		if errors.Is(err, session.ErrSessionUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "conversation could not be started")
			return
		}
		h.logger.Error("handoff request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to request handoff")
		return
	}

	writeJSON(w, http.StatusAccepted, handoff)
}
