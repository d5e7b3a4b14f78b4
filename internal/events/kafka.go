package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/pkg/exception"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes trade events keyed by portfolio so a portfolio's
// trades keep their order within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "events.kafka.brokers is empty")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = TopicTrades
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
	return NewKafkaPublisherWithWriter(w, topic, logger), nil
}

func NewKafkaPublisherWithWriter(w MessageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (k *KafkaPublisher) Publish(ctx context.Context, events ...TradeEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		data, err := sonic.Marshal(evt)
		if err != nil {
			return errors.Wrapf(err, "marshal trade event %s", evt.ID)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.Portfolio),
			Value: data,
			Time:  evt.Timestamp,
			Headers: []kafka.Header{
				{Key: "event-id", Value: []byte(evt.ID.String())},
				{Key: "job-id", Value: []byte(evt.JobID.String())},
				{Key: "action", Value: []byte(evt.Trade.Action)},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrapf(err, "write %d messages to %s", len(msgs), k.topic)
	}
	k.logger.Debug("published trade events", zap.String("topic", k.topic), zap.Int("count", len(msgs)))
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
