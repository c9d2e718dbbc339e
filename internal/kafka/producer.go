package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
)

// Producer publishes scores onto a pipeline topic
type Producer struct {
	topic    string
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewProducer creates a synchronous producer for topic
func NewProducer(cfg *config.KafkaConfig, topic string, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return newProducer(topic, producer, logger), nil
}

func newProducer(topic string, producer sarama.SyncProducer, logger *slog.Logger) *Producer {
	return &Producer{
		topic:    topic,
		producer: producer,
		logger:   logger.With("topic", topic),
	}
}

// Enqueue publishes score, keyed by player so one player's scores stay ordered
func (p *Producer) Enqueue(ctx context.Context, score domain.Score) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshalling score: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(score.Player.ID, 10)),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("publishing score %d: %w", score.ID, err)
	}

	p.logger.Debug("published score", "score_id", score.ID, "partition", partition, "offset", offset)
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
