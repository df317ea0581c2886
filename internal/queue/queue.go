// Package queue provides a bounded, batching, asynchronous work queue.
//
// Items are delivered to a Handler in batches of up to BatchSize, triggered by
// whichever comes first: a full batch or FlushInterval elapsed since the
// oldest undelivered item arrived. Enqueue never blocks; when the buffer is
// full the overflow policy decides which item is dropped.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

var (
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("queue: stopped")
	// ErrFull is returned by Enqueue when an item was dropped for lack of space.
	ErrFull = errors.New("queue: full")
)

// OverflowPolicy selects which item is lost when the buffer is full.
type OverflowPolicy int

const (
	// DropNewest rejects the item being enqueued.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the oldest buffered item to make room.
	DropOldest
)

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return "drop_oldest"
	}
	return "drop_newest"
}

// ParseOverflowPolicy converts "drop_newest" or "drop_oldest".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_newest":
		return DropNewest, nil
	case "drop_oldest":
		return DropOldest, nil
	default:
		return DropNewest, fmt.Errorf("ParseOverflowPolicy: unknown policy %q", s)
	}
}

// Config controls batching, buffering and retry.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	Capacity      int
	Overflow      OverflowPolicy
	// MaxRetries is how many times a failed batch is retried before it is dropped.
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns the default queue settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     50,
		FlushInterval: 100 * time.Millisecond,
		Capacity:      10000,
		Overflow:      DropNewest,
		MaxRetries:    3,
		RetryInterval: 50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	return c
}

// Handler persists one batch. It may be called again with the same batch
// after a failure.
type Handler[T any] func(ctx context.Context, batch []T) error

// Queue buffers items and hands them to a Handler in the background.
type Queue[T any] struct {
	cfg     Config
	handler Handler[T]
	logger  *zap.Logger

	items    chan T
	flushReq chan chan struct{}
	done     chan struct{}
	exited   chan struct{}

	// mu orders Enqueue against Stop so nothing lands after the final drain.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	pending atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// New starts a queue delivering to handler.
func New[T any](cfg Config, handler Handler[T], logger *zap.Logger) *Queue[T] {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		cfg:      cfg,
		handler:  handler,
		logger:   logger,
		items:    make(chan T, cfg.Capacity),
		flushReq: make(chan chan struct{}),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go q.run()
	return q
}

// Enqueue buffers item without blocking. It returns ErrFull when an item was
// dropped by the overflow policy and ErrStopped after Stop.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrStopped
	}

	select {
	case q.items <- item:
		q.pending.Add(1)
		return nil
	default:
	}

	if q.cfg.Overflow == DropOldest {
		select {
		case <-q.items:
			q.pending.Add(-1)
			q.dropped.Add(1)
		default:
		}
		select {
		case q.items <- item:
			q.pending.Add(1)
			return ErrFull
		default:
		}
	}
	q.dropped.Add(1)
	return ErrFull
}

// Flush synchronously delivers everything buffered at the time of the call.
func (q *Queue[T]) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case q.flushReq <- ack:
	case <-q.exited:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new items, delivers everything buffered, then halts the
// background loop. If ctx expires first, in-flight retries are abandoned.
// Stop is idempotent.
func (q *Queue[T]) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()

	select {
	case <-q.exited:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.exited
		return fmt.Errorf("queue.Stop: %w", ctx.Err())
	}
}

// Pending returns the number of items accepted but not yet delivered.
func (q *Queue[T]) Pending() int64 { return q.pending.Load() }

// Dropped returns the number of items lost to the overflow policy.
func (q *Queue[T]) Dropped() int64 { return q.dropped.Load() }

// Failed returns the number of items in batches that exhausted their retries.
func (q *Queue[T]) Failed() int64 { return q.failed.Load() }

func (q *Queue[T]) run() {
	defer close(q.exited)

	batch := make([]T, 0, q.cfg.BatchSize)
	timer := time.NewTimer(q.cfg.FlushInterval)
	timer.Stop()
	var timerC <-chan time.Time

	flush := func() {
		timer.Stop()
		timerC = nil
		if len(batch) == 0 {
			return
		}
		q.deliver(batch)
		batch = make([]T, 0, q.cfg.BatchSize)
	}
	add := func(item T) {
		batch = append(batch, item)
		if len(batch) == 1 {
			timer.Reset(q.cfg.FlushInterval)
			timerC = timer.C
		}
		if len(batch) >= q.cfg.BatchSize {
			flush()
		}
	}
	drain := func() {
		for {
			select {
			case item := <-q.items:
				add(item)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case item := <-q.items:
			add(item)
		case <-timerC:
			flush()
		case ack := <-q.flushReq:
			drain()
			close(ack)
		case <-q.done:
			drain()
			return
		}
	}
}

// deliver hands batch to the handler, retrying with backoff. A batch that
// still fails is logged and dropped.
func (q *Queue[T]) deliver(batch []T) {
	n := int64(len(batch))
	defer q.pending.Add(-n)

	attempts := 0
	op := func() error {
		attempts++
		return q.handler(q.ctx, batch)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.RetryInterval
	b.MaxInterval = 10 * q.cfg.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.cfg.MaxRetries)), q.ctx)

	if err := backoff.Retry(op, policy); err != nil {
		q.failed.Add(n)
		q.logger.Error("batch delivery failed, dropping batch",
			zap.Int("batch_size", len(batch)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
}
