package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// LogStore is a fallback EventStore for local development.
// It logs events as structured JSON via zap.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore creates a LogStore that outputs events to the given logger.
func NewLogStore(logger *zap.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) InsertEvents(_ context.Context, events []*SecurityEvent) error {
	for _, e := range events {
		modules := make([]string, 0, len(e.PatternsMatched))
		for _, p := range e.PatternsMatched {
			modules = append(modules, p.Module+"/"+p.PatternID)
		}
		s.logger.Info("security_event",
			zap.String("event_id", e.EventID),
			zap.String("severity", e.Severity),
			zap.String("action", e.ActionTaken),
			zap.String("user_id", e.UserID),
			zap.String("session_id", e.SessionID),
			zap.String("fingerprint", e.Fingerprint),
			zap.String("module", e.Module),
			zap.Strings("patterns", modules),
			zap.Bool("cache_hit", e.CacheHit),
			zap.Float32("latency_ms", e.LatencyMs),
		)
	}
	return nil
}

func (s *LogStore) Close() error { return nil }

// MultiStore fans each batch out to several stores. A failing store does not
// prevent delivery to the others; their errors are joined.
type MultiStore struct {
	stores []EventStore
}

// NewMultiStore returns a store writing to every one of stores.
func NewMultiStore(stores ...EventStore) *MultiStore {
	return &MultiStore{stores: stores}
}

func (m *MultiStore) InsertEvents(ctx context.Context, events []*SecurityEvent) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.InsertEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventsByUser reads from the first store that supports reading.
func (m *MultiStore) EventsByUser(ctx context.Context, userID string, limit int) ([]*SecurityEvent, error) {
	for _, s := range m.stores {
		if r, ok := s.(EventReader); ok {
			return r.EventsByUser(ctx, userID, limit)
		}
	}
	return nil, ErrNotReadable
}

func (m *MultiStore) Close() error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrNotReadable is returned when no configured store supports reads.
var ErrNotReadable = errors.New("storage: no readable event store configured")
