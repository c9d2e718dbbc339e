package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housekeeper/internal/domain"
)

func TestPoolRunsEverySubmittedTask(t *testing.T) {
	p := NewPool(AnalysisWorker, 3, 4, time.Second, testLogger())
	p.Start(context.Background())

	var done atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			done.Add(1)
			return nil
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.EqualValues(t, 50, done.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 2
	p := NewPool(SanitizationWorker, workers, 8, time.Second, testLogger())
	p.Start(context.Background())

	var active, peak atomic.Int64
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			n := active.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int64(workers))
}

func TestPoolSubmitBlocksWhenBacklogFull(t *testing.T) {
	p := NewPool(AnalysisWorker, 1, 1, 0, testLogger())
	p.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := func(context.Context) error {
		close(started)
		<-release
		return nil
	}
	require.NoError(t, p.Submit(context.Background(), blocker))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.Stats().Backlog)
	assert.Equal(t, 1, p.Stats().InFlight)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolRecoversPanickingTask(t *testing.T) {
	p := NewPool(AnalysisWorker, 1, 2, 0, testLogger())
	p.Start(context.Background())

	var after atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		panic("malformed replay")
	}))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		after.Store(true)
		return nil
	}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, after.Load())
}

func TestPoolTaskTimeout(t *testing.T) {
	p := NewPool(AnalysisWorker, 1, 1, 10*time.Millisecond, testLogger())
	p.Start(context.Background())

	errCh := make(chan error, 1)
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled by the pool timeout")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p := NewPool(SanitizationWorker, 1, 1, 0, testLogger())
	p.Start(context.Background())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrPoolClosed)
	assert.Equal(t, SanitizationWorker, p.Kind())
}
