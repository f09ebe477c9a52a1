package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	sess := &model.ConversationSession{
		SessionID:      "sess-1",
		TenantID:       "tenant-1",
		WidgetConfigID: "widget-1",
		HandoffStatus:  model.HandoffStatusRequested,
		Channel:        "widget",
		CreatedAt:      time.Now().Truncate(time.Millisecond),
		LastActivityAt: time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, got.SessionID)
	assert.Equal(t, sess.TenantID, got.TenantID)
	assert.Equal(t, sess.HandoffStatus, got.HandoffStatus)
	assert.Equal(t, sess.Channel, got.Channel)
	assert.True(t, got.CreatedAt.Equal(sess.CreatedAt))
	assert.True(t, got.LastActivityAt.Equal(sess.LastActivityAt))
}

func TestSaveSessionReplacesSingleton(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.ConversationSession{SessionID: "sess-1", TenantID: "t", WidgetConfigID: "w", HandoffStatus: model.HandoffStatusBotOnly}
	second := &model.ConversationSession{SessionID: "sess-2", TenantID: "t", WidgetConfigID: "w", HandoffStatus: model.HandoffStatusActive}

	require.NoError(t, s.SaveSession(ctx, first))
	require.NoError(t, s.SaveSession(ctx, second))

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-2", got.SessionID)
	assert.Equal(t, model.HandoffStatusActive, got.HandoffStatus)
}

func TestClearSessionAlsoDropsCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, &model.ConversationSession{
		SessionID: "sess-1", TenantID: "t", WidgetConfigID: "w", HandoffStatus: model.HandoffStatusBotOnly,
	}))
	require.NoError(t, s.SaveCursor(ctx, time.Now()))

	require.NoError(t, s.ClearSession(ctx))

	_, err := s.LoadSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())
}

func TestCursorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())

	ts := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.SaveCursor(ctx, ts))

	got, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))

	// Overwrite.
	later := ts.Add(time.Minute)
	require.NoError(t, s.SaveCursor(ctx, later))
	got, err = s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(later))
}

func TestOfflineQueueOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueued := time.Now().Truncate(time.Millisecond)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.EnqueueOffline(ctx, model.OfflineQueueEntry{
			ID:         id,
			Content:    "message " + id,
			EnqueuedAt: enqueued.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.ListOffline(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
	assert.Equal(t, "c", entries[2].ID)
	assert.True(t, entries[0].EnqueuedAt.Equal(enqueued))
}

func TestDequeueOffline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnqueueOffline(ctx, model.OfflineQueueEntry{ID: "a", Content: "x", EnqueuedAt: time.Now()}))
	require.NoError(t, s.EnqueueOffline(ctx, model.OfflineQueueEntry{ID: "b", Content: "y", EnqueuedAt: time.Now()}))

	require.NoError(t, s.DequeueOffline(ctx, "a"))

	entries, err := s.ListOffline(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)
}

func TestRequeueOfflineMovesToTail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueued := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.EnqueueOffline(ctx, model.OfflineQueueEntry{ID: "a", Content: "x", EnqueuedAt: enqueued}))
	require.NoError(t, s.EnqueueOffline(ctx, model.OfflineQueueEntry{ID: "b", Content: "y", EnqueuedAt: enqueued}))

	require.NoError(t, s.RequeueOffline(ctx, model.OfflineQueueEntry{ID: "a", Content: "x", EnqueuedAt: enqueued}))

	entries, err := s.ListOffline(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
	// Original enqueue time survives the move.
	assert.True(t, entries[1].EnqueuedAt.Equal(enqueued))
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(ctx, &model.ConversationSession{
		SessionID: "sess-1", TenantID: "t", WidgetConfigID: "w", HandoffStatus: model.HandoffStatusOperatorActive,
	}))
	ts := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.SaveCursor(ctx, ts))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, model.HandoffStatusOperatorActive, got.HandoffStatus)

	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(ts))
}

func TestNewerSchemaVersionResetsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(ctx, &model.ConversationSession{
		SessionID: "sess-1", TenantID: "t", WidgetConfigID: "w", HandoffStatus: model.HandoffStatusBotOnly,
	}))

	// Pretend a newer agent wrote this database.
	_, err = s.db.Exec(`UPDATE schema_info SET version = ? WHERE id = 1`, schemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LoadSession(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
