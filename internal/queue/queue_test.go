package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// spyHandler records every delivered batch.
type spyHandler struct {
	mu      sync.Mutex
	batches [][]int
	calls   atomic.Int32
	failN   int32 // fail the first failN calls
	block   chan struct{}
}

func (s *spyHandler) handle(ctx context.Context, batch []int) error {
	n := s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= s.failN {
		return errors.New("transient")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]int(nil), batch...))
	return nil
}

func (s *spyHandler) delivered() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *spyHandler) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestQueue_FlushesFullBatches(t *testing.T) {
	spy := &spyHandler{}
	q := New(Config{BatchSize: 3, FlushInterval: time.Hour}, spy.handle, zap.NewNop())
	defer q.Stop(context.Background())

	for i := 0; i < 6; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.Eventually(t, func() bool { return spy.batchCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, spy.delivered(), "enqueue order is preserved")
}

func TestQueue_FlushesOnInterval(t *testing.T) {
	spy := &spyHandler{}
	q := New(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, spy.handle, zap.NewNop())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(7))
	assert.Eventually(t, func() bool { return spy.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{7}, spy.delivered())
}

func TestQueue_FlushIsSynchronous(t *testing.T) {
	spy := &spyHandler{}
	q := New(Config{BatchSize: 100, FlushInterval: time.Hour}, spy.handle, zap.NewNop())
	defer q.Stop(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	require.NoError(t, q.Flush(context.Background()))
	assert.Len(t, spy.delivered(), 10)
	assert.Zero(t, q.Pending())
}

func TestQueue_StopDrainsEverything(t *testing.T) {
	spy := &spyHandler{}
	q := New(Config{BatchSize: 4, FlushInterval: time.Hour}, spy.handle, zap.NewNop())

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	require.NoError(t, q.Stop(context.Background()))

	assert.Len(t, spy.delivered(), 10)
	assert.Equal(t, 3, spy.batchCount(), "4 + 4 + 2")
	assert.Zero(t, q.Pending())
	assert.ErrorIs(t, q.Enqueue(11), ErrStopped)
	assert.NoError(t, q.Stop(context.Background()), "Stop is idempotent")
	assert.ErrorIs(t, q.Flush(context.Background()), ErrStopped)
}

func TestQueue_RetriesFailedBatch(t *testing.T) {
	spy := &spyHandler{failN: 2}
	q := New(Config{BatchSize: 1, FlushInterval: time.Hour, MaxRetries: 3, RetryInterval: time.Millisecond}, spy.handle, zap.NewNop())

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, []int{1}, spy.delivered())
	assert.Equal(t, int32(3), spy.calls.Load())
	assert.Zero(t, q.Failed())
}

func TestQueue_DropsBatchAfterRetries(t *testing.T) {
	spy := &spyHandler{failN: 100}
	q := New(Config{BatchSize: 2, FlushInterval: time.Hour, MaxRetries: 1, RetryInterval: time.Millisecond}, spy.handle, zap.NewNop())

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, int32(2), spy.calls.Load(), "one try plus one retry")
	assert.Equal(t, int64(2), q.Failed())

	// The queue keeps accepting work after a failed batch.
	assert.NoError(t, q.Enqueue(3))
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_DropNewestWhenFull(t *testing.T) {
	spy := &spyHandler{block: make(chan struct{})}
	q := New(Config{BatchSize: 1, FlushInterval: time.Hour, Capacity: 2}, spy.handle, zap.NewNop())

	// First item is picked up by the loop and blocks in the handler.
	require.NoError(t, q.Enqueue(0))
	require.Eventually(t, func() bool { return spy.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.ErrorIs(t, q.Enqueue(3), ErrFull)
	assert.Equal(t, int64(1), q.Dropped())

	close(spy.block)
	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, spy.delivered())
}

func TestQueue_DropOldestWhenFull(t *testing.T) {
	spy := &spyHandler{block: make(chan struct{})}
	q := New(Config{BatchSize: 1, FlushInterval: time.Hour, Capacity: 2, Overflow: DropOldest}, spy.handle, zap.NewNop())

	require.NoError(t, q.Enqueue(0))
	require.Eventually(t, func() bool { return spy.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.ErrorIs(t, q.Enqueue(3), ErrFull)
	assert.Equal(t, int64(1), q.Dropped())

	close(spy.block)
	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, []int{0, 2, 3}, spy.delivered())
}

func TestQueue_StopTimeoutAbandonsRetries(t *testing.T) {
	spy := &spyHandler{failN: 1000}
	q := New(Config{BatchSize: 1, FlushInterval: time.Hour, MaxRetries: 1000, RetryInterval: 50 * time.Millisecond}, spy.handle, zap.NewNop())
	require.NoError(t, q.Enqueue(1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, q.Pending())
}

func TestQueue_ConcurrentEnqueueAndStop(t *testing.T) {
	var delivered atomic.Int64
	q := New(Config{BatchSize: 16, FlushInterval: time.Millisecond}, func(_ context.Context, b []int) error {
		delivered.Add(int64(len(b)))
		return nil
	}, zap.NewNop())

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if q.Enqueue(i) == nil {
					accepted.Add(1)
				}
			}
		}()
	}
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, q.Stop(context.Background()))
	wg.Wait()

	assert.Equal(t, accepted.Load(), delivered.Load(), "every accepted item is delivered")
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("drop_oldest")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	p, err = ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropNewest, p)

	_, err = ParseOverflowPolicy("block")
	assert.Error(t, err)
}
