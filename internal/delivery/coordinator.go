// Package delivery ensures every operator and system message authored
// after the widget last observed the conversation reaches the UI boundary
// exactly once, through a push subscription and a polling fallback.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/api"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/push"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/session"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/store"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/metrics"
)

// Sink is the UI boundary: the consumer of exactly-once inbound messages.
type Sink interface {
	DeliverMessage(msg model.Message)
}

// PollAPI is the slice of the session API used by the polling loop.
type PollAPI interface {
	FetchMessages(ctx context.Context, sessionID string, after time.Time) (*model.PollResponse, error)
}

// Options configures the coordinator.
type Options struct {
	PollInterval      time.Duration
	SubscribeAttempts int
	SubscribeDelay    time.Duration
}

func (o *Options) defaults() {
	if o.PollInterval == 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.SubscribeAttempts == 0 {
		o.SubscribeAttempts = 5
	}
	if o.SubscribeDelay == 0 {
		o.SubscribeDelay = 2 * time.Second
	}
}

type channelName string

const (
	channelPush channelName = "push"
	channelPoll channelName = "poll"
)

// envelope is one inbound message with the session snapshot that rode
// along with it, tagged by the producing channel.
type envelope struct {
	msg      model.Message
	snapshot *model.SessionSnapshot
	channel  channelName
}

// Coordinator runs both inbound channels and deduplicates before the sink.
type Coordinator struct {
	api      PollAPI
	sessions *session.Manager
	sink     Sink
	pusher   *push.Client
	store    store.Store
	logger   *logger.Logger
	opts     Options

	inbound chan envelope

	// processed is the deduplication set; mark-and-forward happens under
	// mu so re-entrant delivery attempts for the same id cannot
	// interleave between the check and the mark.
	mu        sync.Mutex
	processed map[string]struct{}
	cursor    time.Time

	pollMu     sync.Mutex
	pollCancel context.CancelFunc

	subMu sync.Mutex
	sub   *push.Subscription
}

// NewCoordinator creates a delivery coordinator. pusher may be nil when no
// push transport is configured; polling then carries handoff traffic alone.
func NewCoordinator(pollAPI PollAPI, sessions *session.Manager, sink Sink, pusher *push.Client, st store.Store, opts Options, log *logger.Logger) *Coordinator {
	opts.defaults()
	return &Coordinator{
		api:       pollAPI,
		sessions:  sessions,
		sink:      sink,
		pusher:    pusher,
		store:     st,
		logger:    log,
		opts:      opts,
		inbound:   make(chan envelope, 256),
		processed: make(map[string]struct{}),
	}
}

// Start wires the coordinator to session lifecycle events and begins
// consuming inbound envelopes. It returns immediately; all work happens on
// goroutines bound to ctx.
func (c *Coordinator) Start(ctx context.Context) error {
	cursor, err := c.store.LoadCursor(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cursor = cursor
	c.mu.Unlock()

	c.sessions.OnSessionStarted(func(sessionID string) {
		go c.subscribePush(ctx, sessionID)
		if sess := c.sessions.Current(); sess != nil && sess.HandoffStatus.HandoffEngaged() {
			c.ensurePolling(ctx, sessionID)
		}
	})

	c.sessions.OnStatusChange(func(ev model.StatusChangedEvent) {
		if ev.Current.HandoffEngaged() {
			c.ensurePolling(ctx, ev.SessionID)
			return
		}
		// Released back to automation, or resolved: the supplementary
		// channel is no longer needed.
		c.stopPolling()
	})

	go c.consume(ctx)
	return nil
}

// consume is the single deduplicating consumer fed by both producers.
func (c *Coordinator) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stopPolling()
			c.unsubscribePush()
			return
		case env := <-c.inbound:
			c.handle(ctx, env)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, env envelope) {
	if env.snapshot != nil {
		c.sessions.ObserveStatus(ctx, *env.snapshot)
	}

	c.advanceCursor(ctx, env.msg.SentAt)

	// The user's own sends are echoed optimistically by the embedding UI
	// and must never round-trip back through the boundary.
	if !env.msg.SenderType.Inbound() {
		return
	}
	if env.msg.ID == "" {
		return
	}

	c.mu.Lock()
	if _, seen := c.processed[env.msg.ID]; seen {
		c.mu.Unlock()
		metrics.DuplicatesSuppressed.WithLabelValues(string(env.channel)).Inc()
		return
	}
	c.processed[env.msg.ID] = struct{}{}
	c.sink.DeliverMessage(env.msg)
	c.mu.Unlock()

	metrics.DeliveriesTotal.WithLabelValues(string(env.channel), string(env.msg.SenderType)).Inc()
}

func (c *Coordinator) advanceCursor(ctx context.Context, sentAt time.Time) {
	if sentAt.IsZero() {
		return
	}
	c.mu.Lock()
	if !sentAt.After(c.cursor) {
		c.mu.Unlock()
		return
	}
	c.cursor = sentAt
	c.mu.Unlock()

	if err := c.store.SaveCursor(ctx, sentAt); err != nil {
		c.logger.Error("failed to persist poll cursor", zap.Error(err))
	}
}

func (c *Coordinator) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Ingest accepts one envelope from either producer without blocking the
// producer. A full buffer drops the envelope; polling re-fetches anything
// dropped, so correctness is preserved at the cost of latency.
func (c *Coordinator) ingest(env envelope) {
	select {
	case c.inbound <- env:
	default:
		c.logger.Warn("inbound buffer full, dropping envelope",
			zap.String("channel", string(env.channel)),
			zap.String("message_id", env.msg.ID))
	}
}

// subscribePush attaches to the per-session push topic with bounded
// attempts and fixed spacing, then gives up silently: polling remains the
// correctness backstop whenever a handoff is active.
func (c *Coordinator) subscribePush(ctx context.Context, sessionID string) {
	if c.pusher == nil {
		return
	}

	c.subMu.Lock()
	already := c.sub != nil
	c.subMu.Unlock()
	if already {
		return
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(c.opts.SubscribeDelay),
			uint64(c.opts.SubscribeAttempts-1),
		),
		ctx,
	)

	err := backoff.Retry(func() error {
		sub, err := c.pusher.Subscribe(sessionID, func(payload model.PushPayload) {
			c.ingest(envelope{
				msg:      payload.Message,
				snapshot: payload.Session,
				channel:  channelPush,
			})
		})
		if err != nil {
			return err
		}
		c.subMu.Lock()
		c.sub = sub
		c.subMu.Unlock()
		return nil
	}, policy)

	if err != nil {
		c.logger.Warn("push subscription unavailable, relying on polling",
			zap.String("session_id", sessionID),
			zap.Error(err))
		metrics.PushConnected.Set(0)
		return
	}

	metrics.PushConnected.Set(1)
	c.logger.Info("push subscription active", zap.String("session_id", sessionID))
}

func (c *Coordinator) unsubscribePush() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
		metrics.PushConnected.Set(0)
	}
}

// ensurePolling starts the poll loop if not already running.
func (c *Coordinator) ensurePolling(ctx context.Context, sessionID string) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	go c.pollLoop(pollCtx, sessionID)
	c.logger.Info("polling started", zap.String("session_id", sessionID))
}

// stopPolling cancels the poll loop. Future iterations stop immediately;
// an in-flight fetch is abandoned via its context.
func (c *Coordinator) stopPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
		c.logger.Info("polling stopped")
	}
}

func (c *Coordinator) pollLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop := c.pollOnce(ctx, sessionID); stop {
				return
			}
		}
	}
}

// pollOnce fetches messages newer than the cursor plus the session
// snapshot. Returns true when polling must stop for good.
func (c *Coordinator) pollOnce(ctx context.Context, sessionID string) bool {
	resp, err := c.api.FetchMessages(ctx, sessionID, c.lastSeen())
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		if api.IsNotFound(err) {
			// Session deleted server-side: drop everything local and
			// return to an un-sessioned bot_only state.
			metrics.PollCyclesTotal.WithLabelValues("not_found").Inc()
			c.logger.Info("session gone remotely, invalidating",
				zap.String("session_id", sessionID))
			c.unsubscribePush()
			c.sessions.Invalidate(ctx)
			c.stopPolling()
			return true
		}
		metrics.PollCyclesTotal.WithLabelValues("error").Inc()
		c.logger.Debug("poll fetch failed", zap.Error(err))
		return false
	}

	metrics.PollCyclesTotal.WithLabelValues("ok").Inc()

	c.sessions.ObserveStatus(ctx, resp.Conversation)
	for _, msg := range resp.Messages {
		c.ingest(envelope{msg: msg, channel: channelPoll})
	}
	return false
}
