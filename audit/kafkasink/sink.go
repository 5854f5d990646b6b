// Package kafkasink publishes security events to a Kafka topic.
//
// Each event becomes one message: the key is the user id, so a user's
// events keep their order within a partition, and the value is the event's
// JSON document. Publishing is synchronous; run the sink behind the engine's
// audit dispatcher so request paths never wait on the broker.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/IBM/sarama"
)

// Config holds the producer settings.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Sink is a goGuard.SecuritySink backed by a sarama SyncProducer.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// New dials the brokers and returns a ready sink.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: brokers required")
	}

	pc := ProducerConfig(cfg.ClientID)
	producer, err := sarama.NewSyncProducer(cfg.Brokers, pc)
	if err != nil {
		return nil, fmt.Errorf("kafkasink: create producer: %w", err)
	}
	sink, err := NewWithProducer(producer, cfg.Topic, logger)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	return sink, nil
}

// ProducerConfig is the sarama configuration New uses: idempotent, acks from
// all in-sync replicas, bounded retries.
func ProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// NewWithProducer wraps an existing producer. The sink owns it and closes
// it in Close.
func NewWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) (*Sink, error) {
	if producer == nil {
		return nil, errors.New("kafkasink: producer required")
	}
	if topic == "" {
		return nil, errors.New("kafkasink: topic required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{producer: producer, topic: topic, logger: logger}, nil
}

// Emit publishes ev. Failures are logged and counted; the event is already
// persisted in the store.
func (s *Sink) Emit(ctx context.Context, ev goGuard.SecurityEvent) {
	if s == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.failed.Add(1)
		s.logger.ErrorContext(ctx, "security event encode failed", "event_type", ev.Type, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Key:       sarama.StringEncoder(ev.UserID),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: ev.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("severity"), Value: []byte(ev.Severity)},
		},
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		s.failed.Add(1)
		s.logger.ErrorContext(ctx, "kafka publish failed",
			"topic", s.topic,
			"user_id", ev.UserID,
			"event_type", ev.Type,
			"error", err,
		)
		return
	}
	s.published.Add(1)
}

// Published returns how many events reached the broker.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns how many events could not be published.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	if s == nil || s.producer == nil {
		return nil
	}
	return s.producer.Close()
}
