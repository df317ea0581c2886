package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS security_events (
	event_id         TEXT PRIMARY KEY,
	timestamp        INTEGER NOT NULL,
	event_type       TEXT NOT NULL,
	severity         TEXT NOT NULL,
	action_taken     TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	session_id       TEXT NOT NULL,
	input_text       TEXT NOT NULL,
	patterns_matched TEXT NOT NULL,
	fingerprint      TEXT NOT NULL,
	module           TEXT NOT NULL,
	metadata         TEXT NOT NULL,
	cache_hit        INTEGER NOT NULL DEFAULT 0,
	latency_ms       REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_security_events_user ON security_events (user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_security_events_fingerprint ON security_events (fingerprint);
`

const sqliteInsert = `
INSERT OR IGNORE INTO security_events (
	event_id, timestamp, event_type, severity, action_taken,
	user_id, session_id, input_text, patterns_matched,
	fingerprint, module, metadata, cache_hit, latency_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sqliteSelectByUser = `
SELECT event_id, timestamp, event_type, severity, action_taken,
	user_id, session_id, input_text, patterns_matched,
	fingerprint, module, metadata, cache_hit, latency_ms
FROM security_events
WHERE user_id = ?
ORDER BY timestamp DESC
LIMIT ?`

// SQLiteStore is a local, file-backed EventStore and EventReader.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("NewSQLiteStore: path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteStore: %w", err)
	}
	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("NewSQLiteStore: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteStore: create schema: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("sqlite event store initialized", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) InsertEvents(ctx context.Context, events []*SecurityEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SQLiteStore.InsertEvents: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return fmt.Errorf("SQLiteStore.InsertEvents: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		patterns, metadata, err := e.EncodeColumns()
		if err != nil {
			s.logger.Error("sqlite encode event failed", zap.String("event_id", e.EventID), zap.Error(err))
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			e.EventID,
			e.Timestamp.UnixMilli(),
			e.EventType,
			e.Severity,
			e.ActionTaken,
			e.UserID,
			e.SessionID,
			e.InputPreview,
			patterns,
			e.Fingerprint,
			e.Module,
			metadata,
			e.CacheHit,
			e.LatencyMs,
		); err != nil {
			return fmt.Errorf("SQLiteStore.InsertEvents: insert %s: %w", e.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SQLiteStore.InsertEvents: commit: %w", err)
	}
	return nil
}

// EventsByUser returns up to limit of the user's events, newest first.
func (s *SQLiteStore) EventsByUser(ctx context.Context, userID string, limit int) ([]*SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("SQLiteStore.EventsByUser: %w", err)
	}
	defer rows.Close()

	var out []*SecurityEvent
	for rows.Next() {
		var (
			e                  SecurityEvent
			ts                 int64
			patterns, metadata string
		)
		if err := rows.Scan(
			&e.EventID, &ts, &e.EventType, &e.Severity, &e.ActionTaken,
			&e.UserID, &e.SessionID, &e.InputPreview, &patterns,
			&e.Fingerprint, &e.Module, &metadata, &e.CacheHit, &e.LatencyMs,
		); err != nil {
			return nil, fmt.Errorf("SQLiteStore.EventsByUser: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		if err := e.DecodeColumns(patterns, metadata); err != nil {
			return nil, fmt.Errorf("SQLiteStore.EventsByUser: decode %s: %w", e.EventID, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
