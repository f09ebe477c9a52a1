package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/fallback"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/metrics"
)

// event is one item on the boundary stream.
type event struct {
	name string
	data interface{}
}

// Hub fans events out to every connected embedding page. It is the
// delivery sink: deduplicated inbound messages land here, alongside
// status transitions, presentation changes, and queue progress.
type Hub struct {
	logger *logger.Logger

	mu   sync.Mutex
	subs map[chan event]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger: log,
		subs:   make(map[chan event]struct{}),
	}
}

// DeliverMessage publishes one inbound message.
func (h *Hub) DeliverMessage(msg model.Message) {
	h.broadcast(event{name: string(model.EventTypeMessage), data: msg})
}

// DeliverStatus publishes a handoff status transition.
func (h *Hub) DeliverStatus(ev model.StatusChangedEvent) {
	h.broadcast(event{name: string(model.EventTypeStatus), data: ev})
}

// DeliverPresentation publishes a degraded-state change. nil means the
// state cleared; the stream carries an explicit cleared marker so the UI
// can drop its banner.
func (h *Hub) DeliverPresentation(p *fallback.Presentation) {
	if p == nil {
		h.broadcast(event{name: string(model.EventTypePresentation), data: map[string]bool{"cleared": true}})
		return
	}
	h.broadcast(event{name: string(model.EventTypePresentation), data: p})
}

// DeliverQueue publishes offline queue progress.
func (h *Hub) DeliverQueue(ev model.QueueEvent) {
	h.broadcast(event{name: string(model.EventTypeQueue), data: ev})
}

func (h *Hub) broadcast(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// A stalled subscriber loses events rather than stalling
			// everyone else. The page reconnects and refetches status.
			h.logger.Warn("event subscriber lagging, dropping event",
				zap.String("event", ev.name))
		}
	}
}

func (h *Hub) subscribe() (chan event, func()) {
	ch := make(chan event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// EventsHandler streams boundary events over SSE.
type EventsHandler struct {
	hub    *Hub
	logger *logger.Logger
}

func NewEventsHandler(hub *Hub, log *logger.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: log}
}

// Events handles GET /api/v1/events
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	ch, cancel := h.hub.subscribe()
	defer cancel()

	sendSSEEvent(w, flusher, "connected", map[string]string{"status": "ok"})

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream client disconnected")
			return
		case ev := <-ch:
			sendSSEEvent(w, flusher, ev.name, ev.data)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, string(model.EventTypeHeartbeat), &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
