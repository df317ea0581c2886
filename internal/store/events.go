package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/storage"
)

const insertEventSQL = `
INSERT INTO security_events (
	event_id, ts, event_type, severity, action_taken,
	user_id, session_id, input_text, patterns_matched,
	fingerprint, module, metadata, cache_hit, latency_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (event_id) DO NOTHING`

const selectEventsByUserSQL = `
SELECT event_id::text, ts, event_type, severity, action_taken,
	user_id, session_id, input_text, patterns_matched::text,
	fingerprint, module, metadata::text, cache_hit, latency_ms
FROM security_events
WHERE user_id = $1
ORDER BY ts DESC
LIMIT $2`

// EventStore persists security events in Postgres. It implements
// storage.EventStore and storage.EventReader.
type EventStore struct {
	s *Store
}

// Events returns the security event view of s.
func (s *Store) Events() *EventStore {
	return &EventStore{s: s}
}

// InsertEvents writes the batch in one round trip. Replayed events are
// ignored by event_id.
func (e *EventStore) InsertEvents(ctx context.Context, events []*storage.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		patterns, metadata, err := ev.EncodeColumns()
		if err != nil {
			e.s.logger.Error("postgres encode event failed", zap.String("event_id", ev.EventID), zap.Error(err))
			continue
		}
		batch.Queue(insertEventSQL,
			ev.EventID,
			ev.Timestamp,
			ev.EventType,
			ev.Severity,
			ev.ActionTaken,
			ev.UserID,
			ev.SessionID,
			ev.InputPreview,
			patterns,
			ev.Fingerprint,
			ev.Module,
			metadata,
			ev.CacheHit,
			ev.LatencyMs,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := e.s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("EventStore.InsertEvents: %w", err)
	}
	return nil
}

// EventsByUser returns up to limit of the user's events, newest first.
func (e *EventStore) EventsByUser(ctx context.Context, userID string, limit int) ([]*storage.SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := e.s.pool.Query(ctx, selectEventsByUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("EventStore.EventsByUser: %w", err)
	}
	defer rows.Close()

	var out []*storage.SecurityEvent
	for rows.Next() {
		var (
			ev                 storage.SecurityEvent
			patterns, metadata string
		)
		if err := rows.Scan(
			&ev.EventID, &ev.Timestamp, &ev.EventType, &ev.Severity, &ev.ActionTaken,
			&ev.UserID, &ev.SessionID, &ev.InputPreview, &patterns,
			&ev.Fingerprint, &ev.Module, &metadata, &ev.CacheHit, &ev.LatencyMs,
		); err != nil {
			return nil, fmt.Errorf("EventStore.EventsByUser: scan: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		if err := ev.DecodeColumns(patterns, metadata); err != nil {
			return nil, fmt.Errorf("EventStore.EventsByUser: decode %s: %w", ev.EventID, err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EventStore.EventsByUser: %w", err)
	}
	return out, nil
}

// Close is a no-op; the pool belongs to Store.
func (e *EventStore) Close() error { return nil }
