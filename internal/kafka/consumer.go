package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
)

// ScoreQueue consumes scores from one Kafka topic and exposes them through a
// blocking Dequeue, so a pipeline consumer can treat Kafka like any queue
type ScoreQueue struct {
	topic         string
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	scores        chan domain.Score
	startTimeout  time.Duration
	retryBackoff  time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	// started is closed by the first session Setup and never reassigned
	started   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	launched  atomic.Bool
}

// NewScoreQueue creates a consumer-group backed queue for topic
func NewScoreQueue(cfg *config.KafkaConfig, topic string, logger *slog.Logger) (*ScoreQueue, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	// one group per topic so the two pipelines rebalance independently
	groupID := cfg.GroupID + "." + topic
	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return newScoreQueue(consumerGroup, topic, cfg, logger), nil
}

func newScoreQueue(group sarama.ConsumerGroup, topic string, cfg *config.KafkaConfig, logger *slog.Logger) *ScoreQueue {
	ctx, cancel := context.WithCancel(context.Background())

	return &ScoreQueue{
		topic:         topic,
		logger:        logger.With("topic", topic),
		consumerGroup: group,
		scores:        make(chan domain.Score, cfg.Buffer),
		startTimeout:  cfg.StartTimeout,
		retryBackoff:  cfg.RetryBackoff,
		ctx:           ctx,
		cancel:        cancel,
		started:       make(chan struct{}),
	}
}

// Name returns the topic this queue reads
func (q *ScoreQueue) Name() string {
	return q.topic
}

// Start joins the consumer group and waits for the first session. It fails
// when no session is set up within the start timeout; the caller must still
// Stop the queue in that case.
func (q *ScoreQueue) Start() error {
	q.logger.Info("starting Kafka score queue")

	q.launched.Store(true)
	q.wg.Add(2)
	go q.consume()
	go q.drainErrors()

	var timeout <-chan time.Time
	if q.startTimeout > 0 {
		timer := time.NewTimer(q.startTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-q.started:
		q.logger.Info("Kafka score queue ready")
		return nil
	case <-timeout:
		return fmt.Errorf("no consumer group session for %s within %s", q.topic, q.startTimeout)
	case <-q.ctx.Done():
		return q.ctx.Err()
	}
}

func (q *ScoreQueue) consume() {
	defer q.wg.Done()
	defer close(q.scores)

	handler := &consumerGroupHandler{queue: q}
	for {
		if err := q.consumerGroup.Consume(q.ctx, []string{q.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			q.logger.Error("error from consumer", "error", err)
			if !q.sleep(q.retryBackoff) {
				return
			}
		}

		if q.ctx.Err() != nil {
			return
		}
	}
}

func (q *ScoreQueue) drainErrors() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case err, ok := <-q.consumerGroup.Errors():
			if !ok {
				return
			}
			q.logger.Error("consumer group error", "error", err)
		}
	}
}

// sleep waits d or until the queue stops, reporting whether it may go on
func (q *ScoreQueue) sleep(d time.Duration) bool {
	if d <= 0 {
		return q.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}

func (q *ScoreQueue) markStarted() {
	q.startOnce.Do(func() { close(q.started) })
}

// Dequeue blocks until a score arrives. After Stop it returns
// domain.ErrQueueClosed.
func (q *ScoreQueue) Dequeue(ctx context.Context) (domain.Score, error) {
	select {
	case score, ok := <-q.scores:
		if !ok {
			return domain.Score{}, domain.ErrQueueClosed
		}
		return score, nil
	case <-ctx.Done():
		return domain.Score{}, ctx.Err()
	}
}

// Len returns the number of decoded scores waiting to be dequeued
func (q *ScoreQueue) Len() int {
	return len(q.scores)
}

// Stop leaves the consumer group
func (q *ScoreQueue) Stop() error {
	var err error
	q.stopOnce.Do(func() {
		q.logger.Info("stopping Kafka score queue")
		q.cancel()
		q.wg.Wait()
		if !q.launched.Load() {
			close(q.scores)
		}
		err = q.consumerGroup.Close()
	})
	return err
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	queue *ScoreQueue
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.queue.markStarted()
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim hands decoded scores to Dequeue callers. A message is marked
// as soon as its score is buffered, so delivery is at-most-once: scores still
// in the buffer or a pool backlog are lost on a crash.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	logger := h.queue.logger
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			score, err := DecodeScore(message.Value)
			if err != nil {
				logger.Warn("dropping undecodable score message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			select {
			case h.queue.scores <- score:
				session.MarkMessage(message, "")
			case <-session.Context().Done():
				return nil
			}
		}
	}
}

// DecodeScore parses a score message and rejects ones without identity
func DecodeScore(data []byte) (domain.Score, error) {
	var score domain.Score
	if err := json.Unmarshal(data, &score); err != nil {
		return domain.Score{}, fmt.Errorf("unmarshalling score: %w", err)
	}
	if score.ID <= 0 || score.Player.ID <= 0 {
		return domain.Score{}, fmt.Errorf("score %d player %d: %w", score.ID, score.Player.ID, domain.ErrInvalidRequest)
	}
	return score, nil
}
