package queue

import (
	"context"
	"sync"

	"github.com/housekeeper/internal/domain"
)

// ChannelQueue is an in-process FIFO of scores. It backs the pipelines when
// Kafka is disabled and is what the admin API enqueues audits onto.
type ChannelQueue struct {
	name  string
	items chan domain.Score

	done     chan struct{}
	doneOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewChannelQueue creates a queue holding up to buffer pending scores
func NewChannelQueue(name string, buffer int) *ChannelQueue {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelQueue{
		name:  name,
		items: make(chan domain.Score, buffer),
		done:  make(chan struct{}),
	}
}

// Name returns the queue name used in logs and metrics
func (q *ChannelQueue) Name() string {
	return q.name
}

// Enqueue appends a score, blocking while the buffer is full
func (q *ChannelQueue) Enqueue(ctx context.Context, score domain.Score) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrQueueClosed
	}

	select {
	case q.items <- score:
		return nil
	case <-q.done:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a score is available. Once the queue is closed and
// drained it returns domain.ErrQueueClosed.
func (q *ChannelQueue) Dequeue(ctx context.Context) (domain.Score, error) {
	select {
	case score, ok := <-q.items:
		if !ok {
			return domain.Score{}, domain.ErrQueueClosed
		}
		return score, nil
	case <-ctx.Done():
		return domain.Score{}, ctx.Err()
	}
}

// Len returns the number of pending scores
func (q *ChannelQueue) Len() int {
	return len(q.items)
}

// Close stops accepting scores; pending ones can still be dequeued
func (q *ChannelQueue) Close() {
	// release blocked producers before waiting for the write lock
	q.doneOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}
