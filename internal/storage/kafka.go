package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaConfig holds the producer settings for KafkaStore.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewKafkaProducer builds a synchronous producer that waits for all
// in-sync replicas and hashes on the message key.
func NewKafkaProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V3_6_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("NewKafkaProducer: %w", err)
	}
	return producer, nil
}

// KafkaStore publishes each security event as a JSON message keyed by user
// id, so one user's events stay ordered within a partition.
type KafkaStore struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaStore wraps an existing producer.
func NewKafkaStore(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaStore{producer: producer, topic: topic, logger: logger}
}

func (s *KafkaStore) InsertEvents(_ context.Context, events []*SecurityEvent) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			s.logger.Error("kafka encode event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(e.UserID),
			Value: sarama.ByteEncoder(payload),
			Headers: []sarama.RecordHeader{
				{Key: []byte("event_id"), Value: []byte(e.EventID)},
				{Key: []byte("severity"), Value: []byte(e.Severity)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := s.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return fmt.Errorf("KafkaStore.InsertEvents: %d of %d messages failed: %w", len(perrs), len(msgs), err)
		}
		return fmt.Errorf("KafkaStore.InsertEvents: %w", err)
	}
	return nil
}

func (s *KafkaStore) Close() error {
	return s.producer.Close()
}
