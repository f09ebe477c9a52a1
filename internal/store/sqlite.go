package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/model"
)

// schemaVersion is bumped on any on-disk format change. A database written
// by a newer agent is reset rather than partially read.
const schemaVersion = 1

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed store at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	// WAL keeps the poll loop and flush loop from blocking each other.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS schema_info (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		session_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		widget_config_id TEXT NOT NULL,
		handoff_status TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		last_activity_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS poll_cursor (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_seen_unix_ms INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS offline_queue (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var stored int
	err := s.db.QueryRow(`SELECT version FROM schema_info WHERE id = 1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO schema_info (id, version) VALUES (1, ?)`, schemaVersion)
		return err
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case stored > schemaVersion:
		// Written by a newer agent; a partial read would be worse than
		// starting un-sessioned.
		return s.reset()
	}
	return nil
}

func (s *SQLiteStore) reset() error {
	query := `
	DELETE FROM session;
	DELETE FROM poll_cursor;
	DELETE FROM offline_queue;
	DELETE FROM schema_info;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	_, err := s.db.Exec(`INSERT INTO schema_info (id, version) VALUES (1, ?)`, schemaVersion)
	return err
}

// LoadSession returns the cached session, or ErrNotFound.
func (s *SQLiteStore) LoadSession(ctx context.Context) (*model.ConversationSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, tenant_id, widget_config_id, handoff_status, channel, created_at, last_activity_at
		FROM session WHERE id = 1`)

	var sess model.ConversationSession
	var createdAt, lastActivity int64
	err := row.Scan(&sess.SessionID, &sess.TenantID, &sess.WidgetConfigID,
		&sess.HandoffStatus, &sess.Channel, &createdAt, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.LastActivityAt = time.UnixMilli(lastActivity)
	return &sess, nil
}

// SaveSession persists the session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *model.ConversationSession) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO session (id, session_id, tenant_id, widget_config_id, handoff_status, channel, created_at, last_activity_at)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		session_id = excluded.session_id,
		tenant_id = excluded.tenant_id,
		widget_config_id = excluded.widget_config_id,
		handoff_status = excluded.handoff_status,
		channel = excluded.channel,
		created_at = excluded.created_at,
		last_activity_at = excluded.last_activity_at`,
		session.SessionID, session.TenantID, session.WidgetConfigID,
		string(session.HandoffStatus), session.Channel,
		session.CreatedAt.UnixMilli(), session.LastActivityAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ClearSession removes the cached session and the poll cursor.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM poll_cursor WHERE id = 1`); err != nil {
		return fmt.Errorf("clear poll cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the last observed message timestamp.
func (s *SQLiteStore) LoadCursor(ctx context.Context) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen_unix_ms FROM poll_cursor WHERE id = 1`).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("scan poll cursor: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// SaveCursor persists the last observed message timestamp.
func (s *SQLiteStore) SaveCursor(ctx context.Context, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO poll_cursor (id, last_seen_unix_ms) VALUES (1, ?)
	ON CONFLICT(id) DO UPDATE SET last_seen_unix_ms = excluded.last_seen_unix_ms`,
		ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("save poll cursor: %w", err)
	}
	return nil
}

// EnqueueOffline appends an entry to the tail of the offline queue.
func (s *SQLiteStore) EnqueueOffline(ctx context.Context, entry model.OfflineQueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO offline_queue (entry_id, content, enqueued_at) VALUES (?, ?, ?)`,
		entry.ID, entry.Content, entry.EnqueuedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue offline entry: %w", err)
	}
	return nil
}

// DequeueOffline removes an entry after successful delivery.
func (s *SQLiteStore) DequeueOffline(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE entry_id = ?`, id)
	if err != nil {
		return fmt.Errorf("dequeue offline entry: %w", err)
	}
	return nil
}

// RequeueOffline moves an entry to the tail, keeping content and the
// original enqueue time.
func (s *SQLiteStore) RequeueOffline(ctx context.Context, entry model.OfflineQueueEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin requeue: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM offline_queue WHERE entry_id = ?`, entry.ID); err != nil {
		return fmt.Errorf("requeue delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO offline_queue (entry_id, content, enqueued_at) VALUES (?, ?, ?)`,
		entry.ID, entry.Content, entry.EnqueuedAt.UnixMilli()); err != nil {
		return fmt.Errorf("requeue insert: %w", err)
	}
	return tx.Commit()
}

// ListOffline returns queued entries in enqueue order.
func (s *SQLiteStore) ListOffline(ctx context.Context) ([]model.OfflineQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT entry_id, content, enqueued_at FROM offline_queue ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list offline queue: %w", err)
	}
	defer rows.Close()

	var entries []model.OfflineQueueEntry
	for rows.Next() {
		var e model.OfflineQueueEntry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Content, &ms); err != nil {
			return nil, fmt.Errorf("scan offline entry: %w", err)
		}
		e.EnqueuedAt = time.UnixMilli(ms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
