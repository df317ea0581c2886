package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/triage-ai/warden/internal/engine"
	"github.com/triage-ai/warden/internal/queue"
	"go.uber.org/zap"
)

// Writer is the orchestrator's event sink: it converts evaluations to
// SecurityEvents and persists them in batches through an async queue.
// Enqueue never blocks the caller.
type Writer struct {
	store  EventStore
	queue  *queue.Queue[*SecurityEvent]
	logger *zap.Logger
}

// NewWriter starts a Writer delivering to store.
func NewWriter(store EventStore, cfg queue.Config, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{store: store, logger: logger}
	w.queue = queue.New(cfg, w.insert, logger.Named("event_queue"))
	return w
}

func (w *Writer) insert(ctx context.Context, batch []*SecurityEvent) error {
	return w.store.InsertEvents(ctx, batch)
}

// Enqueue implements engine.EventSink.
func (w *Writer) Enqueue(ev engine.Evaluation) error {
	if err := w.queue.Enqueue(NewSecurityEvent(ev)); err != nil {
		if errors.Is(err, queue.ErrFull) {
			w.logger.Warn("event queue full, dropping event",
				zap.String("fingerprint", ev.Result.Fingerprint),
			)
		}
		return fmt.Errorf("Writer.Enqueue: %w", err)
	}
	return nil
}

// Flush synchronously persists everything queued so far.
func (w *Writer) Flush(ctx context.Context) error {
	return w.queue.Flush(ctx)
}

// Stop drains the queue and closes the store.
func (w *Writer) Stop(ctx context.Context) error {
	qErr := w.queue.Stop(ctx)
	cErr := w.store.Close()
	return errors.Join(qErr, cErr)
}

// Pending returns events accepted but not yet written.
func (w *Writer) Pending() int64 { return w.queue.Pending() }

// Dropped returns events lost because the queue was full.
func (w *Writer) Dropped() int64 { return w.queue.Dropped() }

// Failed returns events lost because their batch could not be written.
func (w *Writer) Failed() int64 { return w.queue.Failed() }
