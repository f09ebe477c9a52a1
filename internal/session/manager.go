// Package session owns the conversation/handoff state machine and its
// persisted representation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/errclass"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/retry"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/store"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/metrics"
)

var (
	// ErrNoSession is returned when an operation requires a session and
	// none exists or can be created.
	ErrNoSession = errors.New("session: no active session")

	// ErrSessionUnavailable is the sticky degradation flag: one failed
	// session creation suppresses further attempts until restart.
	ErrSessionUnavailable = errors.New("session: session unavailable, running degraded")

	// ErrSendBlocked is returned when the fallback controller is blocking
	// input (rate limit window, maintenance, quota).
	ErrSendBlocked = errors.New("session: sending is currently blocked")

	// ErrQueued marks a send that was buffered in the offline queue.
	ErrQueued = errors.New("session: message queued for later delivery")
)

// QueuedError reports that a message went to the offline queue instead of
// the wire. errors.Is(err, ErrQueued) matches it.
type QueuedError struct {
	Position int
}

func (e *QueuedError) Error() string {
	return fmt.Sprintf("session: message queued at position %d", e.Position)
}

func (e *QueuedError) Is(target error) bool {
	return target == ErrQueued
}

// ClassifiedError wraps a terminal send failure with its taxonomy entry.
type ClassifiedError struct {
	Classification errclass.Classification
	Err            error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Classification.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// API is the slice of the session API the manager depends on.
type API interface {
	StartSession(ctx context.Context, req *model.StartSessionRequest) (*model.SessionSnapshot, error)
	SendMessage(ctx context.Context, req *model.SendMessageRequest) (*model.SendMessageResponse, error)
	RequestHandoff(ctx context.Context, req *model.RequestHandoffRequest) (*model.HandoffRequest, error)
}

// Reporter consumes classified errors and gates sending. Implemented by
// the fallback state controller.
type Reporter interface {
	Report(c errclass.Classification)
	ReportSuccess()
	SendAllowed() bool
}

// Buffer is the offline queue facade. Offline sends are appended here
// instead of transmitted.
type Buffer interface {
	Offline() bool
	Enqueue(ctx context.Context, content string) (int, error)
}

// Identity pins the widget to its tenant configuration.
type Identity struct {
	TenantID       string
	WidgetConfigID string
	Channel        string
	UserAgent      string
	ReferrerURL    string
}

// Manager owns the conversation/handoff state machine.
type Manager struct {
	api      API
	store    store.Store
	retries  *retry.Engine
	reporter Reporter
	buffer   Buffer
	identity Identity
	logger   *logger.Logger

	mu          sync.RWMutex
	session     *model.ConversationSession
	unavailable bool

	// startMu serializes remote session creation so concurrent first
	// sends share one session instead of racing to overwrite it.
	startMu sync.Mutex

	subMu      sync.RWMutex
	statusFns  []func(model.StatusChangedEvent)
	sessionFns []func(sessionID string)
}

// NewManager creates a session manager. reporter and buffer may be set
// later via SetReporter/SetBuffer to break construction-order cycles.
func NewManager(api API, st store.Store, retries *retry.Engine, identity Identity, log *logger.Logger) *Manager {
	return &Manager{
		api:      api,
		store:    st,
		retries:  retries,
		identity: identity,
		logger:   log,
	}
}

// SetReporter wires the fallback state controller.
func (m *Manager) SetReporter(r Reporter) {
	m.reporter = r
}

// SetBuffer wires the offline queue.
func (m *Manager) SetBuffer(b Buffer) {
	m.buffer = b
}

// OnStatusChange registers a handoff status transition listener.
func (m *Manager) OnStatusChange(fn func(model.StatusChangedEvent)) {
	m.subMu.Lock()
	m.statusFns = append(m.statusFns, fn)
	m.subMu.Unlock()
}

// OnSessionStarted registers a listener invoked whenever a session becomes
// available: on restore from storage and on remote creation.
func (m *Manager) OnSessionStarted(fn func(sessionID string)) {
	m.subMu.Lock()
	m.sessionFns = append(m.sessionFns, fn)
	m.subMu.Unlock()
}

func (m *Manager) emitSessionStarted(sessionID string) {
	m.subMu.RLock()
	fns := make([]func(string), len(m.sessionFns))
	copy(fns, m.sessionFns)
	m.subMu.RUnlock()
	for _, fn := range fns {
		fn(sessionID)
	}
}

func (m *Manager) emitStatus(ev model.StatusChangedEvent) {
	m.subMu.RLock()
	fns := make([]func(model.StatusChangedEvent), len(m.statusFns))
	copy(fns, m.statusFns)
	m.subMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Restore reloads the persisted session on startup, without a network call.
func (m *Manager) Restore(ctx context.Context) error {
	sess, err := m.store.LoadSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	m.logger.Info("session restored",
		zap.String("session_id", sess.SessionID),
		zap.String("handoff_status", string(sess.HandoffStatus)))
	m.emitSessionStarted(sess.SessionID)
	return nil
}

// Current returns a copy of the cached session, or nil when un-sessioned.
func (m *Manager) Current() *model.ConversationSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

// Unavailable reports whether session creation has failed and is being
// suppressed until restart.
func (m *Manager) Unavailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unavailable
}

// StartSession returns the active session, creating a remote one lazily.
// One creation failure sets a sticky flag so the widget degrades to
// bot-only functionality without hammering the endpoint.
func (m *Manager) StartSession(ctx context.Context) (*model.ConversationSession, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	if m.session != nil {
		sess := *m.session
		m.mu.Unlock()
		return &sess, nil
	}
	if m.unavailable {
		m.mu.Unlock()
		return nil, ErrSessionUnavailable
	}
	m.mu.Unlock()

	snap, err := m.api.StartSession(ctx, &model.StartSessionRequest{
		TenantID:       m.identity.TenantID,
		WidgetConfigID: m.identity.WidgetConfigID,
		Channel:        m.identity.Channel,
		UserAgent:      m.identity.UserAgent,
		ReferrerURL:    m.identity.ReferrerURL,
	})
	if err != nil {
		m.mu.Lock()
		m.unavailable = true
		m.mu.Unlock()

		c := errclass.Classify(err)
		m.logger.Warn("session creation failed, degrading to bot-only",
			zap.String("kind", c.Kind.String()), zap.Error(err))
		if m.reporter != nil {
			m.reporter.Report(c)
		}
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	now := time.Now()
	sess := &model.ConversationSession{
		SessionID:      snap.SessionID,
		TenantID:       m.identity.TenantID,
		WidgetConfigID: m.identity.WidgetConfigID,
		HandoffStatus:  snap.HandoffStatus,
		Channel:        m.identity.Channel,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if !sess.HandoffStatus.Valid() {
		sess.HandoffStatus = model.HandoffStatusBotOnly
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, sess); err != nil {
		m.logger.Error("failed to persist new session", zap.Error(err))
	}

	m.logger.Info("session started", zap.String("session_id", sess.SessionID))
	m.emitSessionStarted(sess.SessionID)
	return m.Current(), nil
}

// SendMessage transmits a message attributed to the given sender.
//
// The outcome is one of: delivered (response returned), queued offline
// (*QueuedError), blocked (ErrSendBlocked), or a terminal classified
// failure (*ClassifiedError) after the retry budget is spent.
func (m *Manager) SendMessage(ctx context.Context, content string, sender model.SenderType) (*model.SendMessageResponse, error) {
	if m.reporter != nil && !m.reporter.SendAllowed() {
		metrics.SendsTotal.WithLabelValues("blocked").Inc()
		return nil, ErrSendBlocked
	}

	if m.buffer != nil && m.buffer.Offline() && sender == model.SenderUser {
		pos, err := m.buffer.Enqueue(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("failed to queue message offline: %w", err)
		}
		metrics.SendsTotal.WithLabelValues("queued").Inc()
		return nil, &QueuedError{Position: pos}
	}

	sess, err := m.StartSession(ctx)
	if err != nil {
		return nil, err
	}

	opID := "send:" + uuid.New().String()
	defer m.retries.Reset(opID)

	resp, err := m.transmit(ctx, opID, sess.SessionID, content, sender)
	if err != nil {
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.SendsTotal.WithLabelValues("sent").Inc()
	if m.reporter != nil {
		m.reporter.ReportSuccess()
	}
	m.touch(ctx)
	return resp, nil
}

// Replay is the offline queue's send function. When connectivity drops
// between the flush loop's check and ours, SendMessage re-buffers the
// content as a fresh entry; reporting success here lets the flush dequeue
// the original instead of requeueing it next to its copy.
func (m *Manager) Replay(ctx context.Context, content string) error {
	_, err := m.SendMessage(ctx, content, model.SenderUser)
	if errors.Is(err, ErrQueued) {
		return nil
	}
	return err
}

// transmit runs the send with the per-kind retry schedule. Transient kinds
// retry silently; rate limits and blocking kinds surface immediately.
func (m *Manager) transmit(ctx context.Context, opID, sessionID, content string, sender model.SenderType) (*model.SendMessageResponse, error) {
	req := &model.SendMessageRequest{
		SessionID:  sessionID,
		Content:    content,
		SenderType: sender,
	}

	for {
		resp, err := m.api.SendMessage(ctx, req)
		if err == nil {
			return resp, nil
		}

		c := errclass.Classify(err)

		// Rate limit is never retried inline: the fallback controller
		// owns the countdown and the gate.
		if c.Kind == errclass.KindRateLimit || !c.Retryable {
			return nil, m.surface(c, err)
		}

		decision := m.retries.Next(opID, c)
		if !decision.Retry {
			if decision.Exhausted {
				c.Severity = errclass.SeverityHigh
			}
			return nil, m.surface(c, err)
		}

		metrics.RetriesTotal.WithLabelValues(c.Kind.String()).Inc()
		m.logger.Debug("retrying send",
			zap.String("kind", c.Kind.String()),
			zap.Int("attempt", decision.Attempt),
			zap.Duration("delay", decision.Delay))

		timer := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) surface(c errclass.Classification, err error) error {
	if m.reporter != nil {
		m.reporter.Report(c)
	}
	return &ClassifiedError{Classification: c, Err: err}
}

// RequestHandoff transitions bot_only into handoff_requested. A failure is
// reported but does not change local state.
func (m *Manager) RequestHandoff(ctx context.Context, reason, priority string) (*model.HandoffRequest, error) {
	sess, err := m.StartSession(ctx)
	if err != nil {
		return nil, err
	}
	if priority == "" {
		priority = model.PriorityNormal
	}

	hr, err := m.api.RequestHandoff(ctx, &model.RequestHandoffRequest{
		SessionID:   sess.SessionID,
		TriggerType: model.TriggerUserRequest,
		Reason:      reason,
		Priority:    priority,
	})
	if err != nil {
		c := errclass.Classify(err)
		m.logger.Warn("handoff request failed",
			zap.String("kind", c.Kind.String()), zap.Error(err))
		if m.reporter != nil {
			m.reporter.Report(c)
		}
		return nil, &ClassifiedError{Classification: c, Err: err}
	}

	m.applyStatus(ctx, model.HandoffStatusRequested)
	m.logger.Info("handoff requested",
		zap.String("handoff_id", hr.ID),
		zap.String("priority", priority))
	return hr, nil
}

// ObserveStatus ingests a session snapshot fetched or pushed by the
// delivery coordinator. Only the authoritative handoff_status field is
// acted upon.
func (m *Manager) ObserveStatus(ctx context.Context, snap model.SessionSnapshot) {
	if !snap.HandoffStatus.Valid() {
		m.logger.Warn("ignoring snapshot with unknown handoff status",
			zap.String("handoff_status", string(snap.HandoffStatus)))
		return
	}
	m.applyStatus(ctx, snap.HandoffStatus)
}

func (m *Manager) applyStatus(ctx context.Context, next model.HandoffStatus) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	prev := m.session.HandoffStatus
	if prev == next {
		m.mu.Unlock()
		return
	}
	if !prev.CanTransitionTo(next) {
		m.mu.Unlock()
		m.logger.Warn("rejecting undefined handoff transition",
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
		return
	}
	m.session.HandoffStatus = next
	m.session.LastActivityAt = time.Now()
	sess := *m.session
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, &sess); err != nil {
		m.logger.Error("failed to persist status change", zap.Error(err))
	}

	m.logger.Info("handoff status changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)))

	m.emitStatus(model.StatusChangedEvent{
		SessionID: sess.SessionID,
		Previous:  prev,
		Current:   next,
	})
}

// Invalidate discards the local session after the server reported it gone
// (404 on poll). The widget returns to an un-sessioned bot_only state.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	prev := m.session.HandoffStatus
	sessionID := m.session.SessionID
	m.session = nil
	m.mu.Unlock()

	if err := m.store.ClearSession(ctx); err != nil {
		m.logger.Error("failed to clear invalidated session", zap.Error(err))
	}

	m.logger.Info("session invalidated by server", zap.String("session_id", sessionID))

	if prev != model.HandoffStatusBotOnly {
		m.emitStatus(model.StatusChangedEvent{
			SessionID: sessionID,
			Previous:  prev,
			Current:   model.HandoffStatusBotOnly,
		})
	}
}

func (m *Manager) touch(ctx context.Context) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	m.session.LastActivityAt = time.Now()
	sess := *m.session
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, &sess); err != nil {
		m.logger.Error("failed to persist activity timestamp", zap.Error(err))
	}
}
