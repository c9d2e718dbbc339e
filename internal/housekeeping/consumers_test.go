package housekeeping

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/queue"
	"github.com/housekeeper/internal/worker"
)

func TestConsumerDispatchesEveryScoreToPool(t *testing.T) {
	q := queue.NewChannelQueue("fresh", 8)
	pool := worker.NewPool(worker.SanitizationWorker, 2, 4, time.Second, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(5)
	c := NewSanitizationConsumer(q, pool, func(_ context.Context, s domain.Score) error {
		mu.Lock()
		seen[s.ID] = true
		mu.Unlock()
		wg.Done()
		return nil
	}, testLogger())
	assert.Equal(t, "score_sanitization", c.Name())

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, q.Enqueue(ctx, domain.Score{ID: id}))
	}
	q.Close()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)

	wg.Wait()
	assert.Len(t, seen, 5)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestConsumerStopsWhenPoolCloses(t *testing.T) {
	q := queue.NewChannelQueue("suspect", 1)
	pool := worker.NewPool(worker.AnalysisWorker, 1, 0, time.Second, testLogger())
	pool.Start(context.Background())
	require.NoError(t, pool.Shutdown(context.Background()))

	c := NewSuspectReplayConsumer(q, pool, func(context.Context, domain.Score) error { return nil }, testLogger())
	require.NoError(t, q.Enqueue(context.Background(), domain.Score{ID: 1}))

	assert.ErrorIs(t, c.Run(context.Background()), domain.ErrPoolClosed)
}

func TestConsumerReturnsOnCancel(t *testing.T) {
	q := queue.NewChannelQueue("suspect", 1)
	pool := worker.NewPool(worker.AnalysisWorker, 1, 1, time.Second, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	c := NewSuspectReplayConsumer(q, pool, func(context.Context, domain.Score) error { return nil }, testLogger())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	require.NoError(t, pool.Shutdown(context.Background()))
}
