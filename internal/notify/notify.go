// Package notify delivers alerts for validations that end in BLOCK_NOTIFY.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/engine"
	"github.com/triage-ai/warden/internal/queue"
)

// Alert is the notification payload. It never carries the input text.
type Alert struct {
	AlertID      string    `json:"alert_id"`
	Timestamp    time.Time `json:"timestamp"`
	Severity     string    `json:"severity"`
	Action       string    `json:"action"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Fingerprint  string    `json:"fingerprint"`
	Modules      []string  `json:"modules"`
	PatternIDs   []string  `json:"pattern_ids"`
	FindingCount int       `json:"finding_count"`
}

// NewAlert builds the alert for a completed validation.
func NewAlert(ev engine.Evaluation) Alert {
	a := Alert{
		AlertID:      uuid.NewString(),
		Timestamp:    ev.Result.Timestamp,
		Severity:     ev.Result.Severity.String(),
		Action:       ev.Result.Action.String(),
		UserID:       ev.Metadata.UserID,
		SessionID:    ev.Metadata.SessionID,
		Fingerprint:  ev.Result.Fingerprint,
		FindingCount: len(ev.Result.Findings),
	}
	for _, f := range ev.Result.Findings {
		if !slices.Contains(a.Modules, f.Module) {
			a.Modules = append(a.Modules, f.Module)
		}
		if f.PatternID != "" {
			a.PatternIDs = append(a.PatternIDs, f.PatternID)
		}
	}
	slices.Sort(a.Modules)
	return a
}

// Notifier delivers a batch of alerts. It may be called again with the same
// batch after a failure.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
	Close() error
}

// Dispatcher is the orchestrator's alert sink. It turns BLOCK_NOTIFY
// evaluations into alerts and delivers them through a Notifier off the
// request path.
type Dispatcher struct {
	notifier Notifier
	queue    *queue.Queue[Alert]
	logger   *zap.Logger
}

// NewDispatcher starts a Dispatcher delivering to n.
func NewDispatcher(n Notifier, cfg queue.Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{notifier: n, logger: logger}
	d.queue = queue.New[Alert](cfg, n.Notify, logger.Named("alert_queue"))
	return d
}

// Enqueue implements engine.EventSink. Evaluations below BLOCK_NOTIFY are
// ignored.
func (d *Dispatcher) Enqueue(ev engine.Evaluation) error {
	if ev.Result.Action != engine.ActionBlockNotify {
		return nil
	}
	if err := d.queue.Enqueue(NewAlert(ev)); err != nil {
		if errors.Is(err, queue.ErrFull) {
			d.logger.Warn("alert queue full, dropping alert",
				zap.String("fingerprint", ev.Result.Fingerprint),
				zap.String("user_id", ev.Metadata.UserID),
			)
		}
		return fmt.Errorf("Dispatcher.Enqueue: %w", err)
	}
	return nil
}

// Flush synchronously delivers everything queued so far.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.queue.Flush(ctx)
}

// Stop drains pending alerts and closes the notifier.
func (d *Dispatcher) Stop(ctx context.Context) error {
	qErr := d.queue.Stop(ctx)
	nErr := d.notifier.Close()
	return errors.Join(qErr, nErr)
}

func (d *Dispatcher) Pending() int64 { return d.queue.Pending() }
func (d *Dispatcher) Dropped() int64 { return d.queue.Dropped() }
func (d *Dispatcher) Failed() int64  { return d.queue.Failed() }

// LogNotifier writes alerts to the logger. It is the default when no
// broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alerts []Alert) error {
	for _, a := range alerts {
		n.logger.Warn("security alert",
			zap.String("alert_id", a.AlertID),
			zap.String("severity", a.Severity),
			zap.String("action", a.Action),
			zap.String("user_id", a.UserID),
			zap.String("session_id", a.SessionID),
			zap.String("fingerprint", a.Fingerprint),
			zap.Strings("modules", a.Modules),
			zap.Int("finding_count", a.FindingCount),
		)
	}
	return nil
}

func (n *LogNotifier) Close() error { return nil }
