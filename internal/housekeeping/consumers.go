package housekeeping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/metrics"
)

// depthReporter is implemented by queues that can report pending items
type depthReporter interface {
	Len() int
}

// ScoreHandler processes one dequeued score
type ScoreHandler func(ctx context.Context, score domain.Score) error

// Consumer feeds scores from a queue into a bounded pool. Dequeue order is
// preserved; completion order is not.
type Consumer struct {
	name   string
	queue  ScoreQueue
	pool   Submitter
	handle ScoreHandler
	logger *slog.Logger
}

// NewConsumer creates a consumer named name
func NewConsumer(name string, queue ScoreQueue, pool Submitter, handle ScoreHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		name:   name,
		queue:  queue,
		pool:   pool,
		handle: handle,
		logger: logger.With("consumer", name),
	}
}

// Name returns the consumer name
func (c *Consumer) Name() string {
	return c.name
}

// Run blocks on the queue until ctx ends, the queue closes or the pool
// stops accepting work
func (c *Consumer) Run(ctx context.Context) error {
	for {
		score, err := c.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if d, ok := c.queue.(depthReporter); ok {
			metrics.QueueDepth.WithLabelValues(c.name).Set(float64(d.Len()))
		}

		task := func(taskCtx context.Context) error {
			return c.handle(taskCtx, score)
		}
		if err := c.pool.Submit(ctx, task); err != nil {
			return fmt.Errorf("submitting score %d: %w", score.ID, err)
		}
		c.logger.Debug("score dispatched", "score_id", score.ID)
	}
}

// NewSanitizationConsumer wires the fresh-score pipeline
func NewSanitizationConsumer(queue ScoreQueue, pool Submitter, sanitize ScoreHandler, logger *slog.Logger) *Consumer {
	return NewConsumer("score_sanitization", queue, pool, sanitize, logger)
}

// NewSuspectReplayConsumer wires the anti-cheat pipeline
func NewSuspectReplayConsumer(queue ScoreQueue, pool Submitter, analyze ScoreHandler, logger *slog.Logger) *Consumer {
	return NewConsumer("suspect_replay", queue, pool, analyze, logger)
}
