// Package store persists widget client state across reloads: the cached
// session, the poll cursor, and the offline outgoing-message queue.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
)

// ErrNotFound is returned when no record exists for a lookup.
var ErrNotFound = errors.New("store: not found")

// Store is the durable client state. It is read once at startup and
// written on every state change; no external process shares it.
type Store interface {
	// LoadSession returns the cached session, or ErrNotFound.
	LoadSession(ctx context.Context) (*model.ConversationSession, error)

	// SaveSession persists the session snapshot, replacing any previous one.
	SaveSession(ctx context.Context, session *model.ConversationSession) error

	// ClearSession removes the cached session and the poll cursor, for
	// server-side session invalidation.
	ClearSession(ctx context.Context) error

	// LoadCursor returns the last observed message timestamp, zero when unset.
	LoadCursor(ctx context.Context) (time.Time, error)

	// SaveCursor persists the last observed message timestamp.
	SaveCursor(ctx context.Context, ts time.Time) error

	// EnqueueOffline appends an entry to the tail of the offline queue.
	EnqueueOffline(ctx context.Context, entry model.OfflineQueueEntry) error

	// DequeueOffline removes an entry after successful delivery.
	DequeueOffline(ctx context.Context, id string) error

	// RequeueOffline moves an existing entry to the tail of the queue,
	// preserving its content and original enqueue time.
	RequeueOffline(ctx context.Context, entry model.OfflineQueueEntry) error

	// ListOffline returns queued entries in enqueue order.
	ListOffline(ctx context.Context) ([]model.OfflineQueueEntry, error)

	// Ping verifies the store is usable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
