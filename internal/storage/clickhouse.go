package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS security_events (
	event_id           UUID,
	timestamp          DateTime64(3),
	event_type         LowCardinality(String),
	severity           LowCardinality(String),
	action_taken       LowCardinality(String),
	user_id            String,
	session_id         String,
	input_preview      String,
	pattern_modules    Array(String),
	pattern_ids        Array(String),
	pattern_severities Array(String),
	fingerprint        String,
	module             LowCardinality(String),
	finding_count      UInt32,
	metadata           String,
	cache_hit          UInt8,
	latency_ms         Float32
) ENGINE = ReplacingMergeTree
ORDER BY (user_id, timestamp, event_id)
`

const clickhouseInsert = `
	INSERT INTO security_events (
		event_id, timestamp, event_type, severity, action_taken,
		user_id, session_id, input_preview,
		pattern_modules, pattern_ids, pattern_severities,
		fingerprint, module, finding_count, metadata,
		cache_hit, latency_ms
	)
`

const clickhouseSelectByUser = `
	SELECT
		event_id, timestamp, event_type, severity, action_taken,
		user_id, session_id, input_preview,
		pattern_modules, pattern_ids, pattern_severities,
		fingerprint, module, finding_count, metadata,
		cache_hit, latency_ms
	FROM security_events FINAL
	WHERE user_id = @user_id
	ORDER BY timestamp DESC
	LIMIT @limit
`

// ClickHouseStore writes security events to ClickHouse in batch inserts.
// The table uses ReplacingMergeTree keyed on event_id so retried batches
// collapse on merge.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseStore connects to dsn and verifies the connection.
func NewClickHouseStore(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseStore, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseStore: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseStore: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("NewClickHouseStore: ping: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

// EnsureSchema creates the security_events table if it does not exist.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, clickhouseSchema); err != nil {
		return fmt.Errorf("ClickHouseStore.EnsureSchema: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) InsertEvents(ctx context.Context, events []*SecurityEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, clickhouseInsert)
	if err != nil {
		return fmt.Errorf("ClickHouseStore.InsertEvents: prepare: %w", err)
	}

	for _, e := range events {
		row, err := clickhouseRow(e)
		if err != nil {
			s.logger.Error("clickhouse encode event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
			continue
		}
		if err := batch.Append(row...); err != nil {
			s.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("ClickHouseStore.InsertEvents: send %d events: %w", len(events), err)
	}
	return nil
}

// clickhouseRow flattens an event into column order. Pattern matches become
// parallel arrays.
func clickhouseRow(e *SecurityEvent) ([]any, error) {
	modules := make([]string, len(e.PatternsMatched))
	ids := make([]string, len(e.PatternsMatched))
	severities := make([]string, len(e.PatternsMatched))
	for i, p := range e.PatternsMatched {
		modules[i] = p.Module
		ids[i] = p.PatternID
		severities[i] = p.Severity
	}

	metadata, err := e.MetadataJSON()
	if err != nil {
		return nil, err
	}

	var cacheHit uint8
	if e.CacheHit {
		cacheHit = 1
	}

	return []any{
		e.EventID,
		e.Timestamp,
		e.EventType,
		e.Severity,
		e.ActionTaken,
		e.UserID,
		e.SessionID,
		e.InputPreview,
		modules,
		ids,
		severities,
		e.Fingerprint,
		e.Module,
		uint32(e.FindingCount),
		metadata,
		cacheHit,
		e.LatencyMs,
	}, nil
}

// EventsByUser returns up to limit of the user's events, newest first.
func (s *ClickHouseStore) EventsByUser(ctx context.Context, userID string, limit int) ([]*SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.Query(ctx, clickhouseSelectByUser,
		clickhouse.Named("user_id", userID),
		clickhouse.Named("limit", uint32(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("ClickHouseStore.EventsByUser: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*SecurityEvent
	for rows.Next() {
		var (
			e                        SecurityEvent
			modules, ids, severities []string
			findingCount             uint32
			metadata                 string
			cacheHit                 uint8
		)
		if err := rows.Scan(
			&e.EventID, &e.Timestamp, &e.EventType, &e.Severity, &e.ActionTaken,
			&e.UserID, &e.SessionID, &e.InputPreview,
			&modules, &ids, &severities,
			&e.Fingerprint, &e.Module, &findingCount, &metadata,
			&cacheHit, &e.LatencyMs,
		); err != nil {
			return nil, fmt.Errorf("ClickHouseStore.EventsByUser: scan: %w", err)
		}
		e.PatternsMatched = patternsFromColumns(modules, ids, severities)
		if err := e.DecodeColumns("", metadata); err != nil {
			return nil, fmt.Errorf("ClickHouseStore.EventsByUser: decode %s: %w", e.EventID, err)
		}
		e.FindingCount = int(findingCount)
		e.CacheHit = cacheHit == 1
		out = append(out, &e)
	}
	return out, rows.Err()
}

// patternsFromColumns zips the parallel pattern arrays back into matches.
// Arrays of unequal length are truncated to the shortest.
func patternsFromColumns(modules, ids, severities []string) []PatternMatch {
	n := min(len(modules), len(ids), len(severities))
	out := make([]PatternMatch, n)
	for i := 0; i < n; i++ {
		out[i] = PatternMatch{Module: modules[i], PatternID: ids[i], Severity: severities[i]}
	}
	return out
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
