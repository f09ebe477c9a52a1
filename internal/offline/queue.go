// Package offline buffers user messages while the platform is
// unreachable and replays them in order once connectivity returns.
package offline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/store"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/logger"
	"github.com/stefanochermazts/ChatbotPlatform-sub000/pkg/metrics"
)

// SendFunc transmits one queued message. It is wired to the session
// manager's send path so replayed messages go through the same retry and
// classification machinery as live ones. A send that re-buffers the
// content itself must return nil, or the flush would requeue the entry
// next to its copy.
type SendFunc func(ctx context.Context, content string) error

// Queue is the durable offline message buffer. It satisfies the session
// manager's Buffer interface.
type Queue struct {
	store        store.Store
	send         SendFunc
	logger       *logger.Logger
	flushSpacing time.Duration

	mu          sync.Mutex
	offline     bool
	offlineMode bool
	flushing    bool
	progressFns []func(model.QueueEvent)
}

// NewQueue creates the offline queue. flushSpacing is the pause between
// replayed messages so a burst does not trip the platform's rate limiter.
func NewQueue(st store.Store, send SendFunc, flushSpacing time.Duration, log *logger.Logger) *Queue {
	if flushSpacing == 0 {
		flushSpacing = time.Second
	}
	return &Queue{
		store:        st,
		send:         send,
		logger:       log,
		flushSpacing: flushSpacing,
	}
}

// OnProgress registers a flush progress listener.
func (q *Queue) OnProgress(fn func(model.QueueEvent)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progressFns = append(q.progressFns, fn)
}

func (q *Queue) emitProgress(ev model.QueueEvent) {
	q.mu.Lock()
	fns := make([]func(model.QueueEvent), len(q.progressFns))
	copy(fns, q.progressFns)
	q.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Offline reports whether sends should be buffered instead of
// transmitted: either connectivity is down or the user opted into
// offline mode explicitly.
func (q *Queue) Offline() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.offline || q.offlineMode
}

// OfflineMode reports whether the explicit user-selected offline mode
// is active, regardless of connectivity.
func (q *Queue) OfflineMode() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.offlineMode
}

// SetOfflineMode toggles the explicit user-selected offline mode.
// Leaving it while connectivity is up triggers a flush.
func (q *Queue) SetOfflineMode(ctx context.Context, on bool) {
	q.mu.Lock()
	q.offlineMode = on
	connected := !q.offline
	q.mu.Unlock()

	q.logger.Info("offline mode toggled", zap.Bool("enabled", on))
	if !on && connected {
		go q.Flush(ctx)
	}
}

// SetConnectivity records the probe result. A transition to online
// triggers a flush of anything buffered while down.
func (q *Queue) SetConnectivity(ctx context.Context, online bool) {
	q.mu.Lock()
	wasOffline := q.offline
	q.offline = !online
	explicit := q.offlineMode
	q.mu.Unlock()

	if online && wasOffline && !explicit {
		go q.Flush(ctx)
	}
}

// Enqueue appends a message to the durable queue and returns its
// 1-based position.
func (q *Queue) Enqueue(ctx context.Context, content string) (int, error) {
	entry := model.OfflineQueueEntry{
		ID:         uuid.New().String(),
		Content:    content,
		EnqueuedAt: time.Now(),
	}
	if err := q.store.EnqueueOffline(ctx, entry); err != nil {
		return 0, err
	}

	entries, err := q.store.ListOffline(ctx)
	if err != nil {
		return 0, err
	}
	depth := len(entries)
	metrics.OfflineQueueDepth.Set(float64(depth))

	q.logger.Info("message queued offline",
		zap.String("entry_id", entry.ID),
		zap.Int("position", depth))
	q.emitProgress(model.QueueEvent{Remaining: depth, Flushing: false})
	return depth, nil
}

// Depth returns the number of queued entries.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	entries, err := q.store.ListOffline(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Flush replays the queue in enqueue order. A send failure requeues the
// failed entry at the tail and stops the flush; the next connectivity
// recovery retries. Concurrent calls coalesce into one flush.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	entries, err := q.store.ListOffline(ctx)
	if err != nil {
		q.logger.Error("failed to list offline queue", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	q.logger.Info("flushing offline queue", zap.Int("count", len(entries)))

	for i, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if q.Offline() {
			q.logger.Info("connectivity lost mid-flush, stopping",
				zap.Int("remaining", len(entries)-i))
			return
		}

		q.emitProgress(model.QueueEvent{Remaining: len(entries) - i, Flushing: true})

		if err := q.send(ctx, entry.Content); err != nil {
			q.logger.Warn("replay failed, requeueing",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
			if rqErr := q.store.RequeueOffline(ctx, entry); rqErr != nil {
				q.logger.Error("failed to requeue entry", zap.Error(rqErr))
			}
			remaining := len(entries) - i
			metrics.OfflineQueueDepth.Set(float64(remaining))
			q.emitProgress(model.QueueEvent{Remaining: remaining, Flushing: false})
			return
		}

		if err := q.store.DequeueOffline(ctx, entry.ID); err != nil {
			q.logger.Error("failed to dequeue delivered entry", zap.Error(err))
		}
		metrics.OfflineQueueDepth.Set(float64(len(entries) - i - 1))

		if i < len(entries)-1 {
			timer := time.NewTimer(q.flushSpacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}

	q.logger.Info("offline queue flushed", zap.Int("count", len(entries)))
	q.emitProgress(model.QueueEvent{Remaining: 0, Flushing: false})
}
