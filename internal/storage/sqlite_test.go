package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "events.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_InsertAndRead(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	older := NewSecurityEvent(testEvaluation())
	newer := NewSecurityEvent(testEvaluation())
	newer.Timestamp = older.Timestamp.Add(time.Minute)
	newer.CacheHit = true
	other := NewSecurityEvent(testEvaluation())
	other.UserID = "user-2"

	require.NoError(t, s.InsertEvents(ctx, []*SecurityEvent{older, newer, other}))

	got, err := s.EventsByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.EventID, got[0].EventID, "newest first")
	assert.True(t, got[0].CacheHit)
	assert.Equal(t, "CRITICAL", got[1].Severity)
	assert.Equal(t, "block_notify", got[1].ActionTaken)
	assert.Equal(t, "prompt_injection", got[1].Module)
	assert.Len(t, got[1].PatternsMatched, 3)
	assert.Equal(t, []string{"command_validator", "prompt_injection"}, got[1].ModulesConcerned)
	assert.Equal(t, "cli", got[1].Context["channel"])
	assert.True(t, got[1].Timestamp.Equal(older.Timestamp))
}

func TestSQLiteStore_DuplicateDeliveryIsIgnored(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	e := NewSecurityEvent(testEvaluation())
	require.NoError(t, s.InsertEvents(ctx, []*SecurityEvent{e}))
	require.NoError(t, s.InsertEvents(ctx, []*SecurityEvent{e}))

	got, err := s.EventsByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStore_Limit(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	batch := make([]*SecurityEvent, 0, 5)
	for i := 0; i < 5; i++ {
		e := NewSecurityEvent(testEvaluation())
		e.Timestamp = e.Timestamp.Add(time.Duration(i) * time.Second)
		batch = append(batch, e)
	}
	require.NoError(t, s.InsertEvents(ctx, batch))

	got, err := s.EventsByUser(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := s.EventsByUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), "", zap.NewNop())
	assert.Error(t, err)
}

func TestNewSQLiteStore_NilLogger(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	e := NewSecurityEvent(testEvaluation())
	e.Context = map[string]any{"score": math.NaN()}
	assert.NoError(t, s.InsertEvents(context.Background(), []*SecurityEvent{e}), "skipping an event logs through the default logger")
}
