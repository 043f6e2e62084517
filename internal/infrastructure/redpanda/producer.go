// Package redpanda provides Kafka-compatible streaming with franz-go.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/event"
)

// Record headers set on every event
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderCorrelationID = "correlation_id"
)

// ProducerConfig holds configuration for the Redpanda producer
type ProducerConfig struct {
	// Brokers is a list of broker addresses
	Brokers []string
	// LingerMS is the time to wait before sending a batch
	LingerMS int64
	// Compression is the compression codec to use
	Compression string
	// RequiredAcks sets the required acks level (-1 for all, 1 for leader)
	RequiredAcks int16
	// MaxRetries is the maximum number of retries for failed sends
	MaxRetries int
	// RetryBackoffMS is the backoff time between retries
	RetryBackoffMS int64
}

// DefaultProducerConfig returns defaults tuned for low-volume, durable events
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:        []string{"localhost:9092"},
		LingerMS:       5,
		Compression:    "lz4",
		RequiredAcks:   -1, // Wait for all replicas
		MaxRetries:     3,
		RetryBackoffMS: 100,
	}
}

// Producer sends records to Redpanda and waits for acknowledgement
type Producer struct {
	client *kgo.Client
	config ProducerConfig
	logger *zap.Logger
	tracer trace.Tracer
}

// NewProducer creates a new Redpanda producer
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
	}

	switch cfg.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case 1:
		// idempotent writes require all-ISR acks
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch cfg.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// Publish sends one record and blocks until it is acknowledged
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.produce(ctx, &kgo.Record{Topic: topic, Key: []byte(key), Value: value})
}

func (p *Producer) produce(ctx context.Context, record *kgo.Record) error {
	ctx, span := p.tracer.Start(ctx, "produce_message",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.String("key", string(record.Key)),
			attribute.Int("value_size", len(record.Value)),
		))
	defer span.End()

	injectTraceHeaders(ctx, record)

	result := p.client.ProduceSync(ctx, record)
	r, err := result.First()
	if err != nil {
		p.logger.Error("failed to produce message",
			zap.String("topic", record.Topic),
			zap.String("key", string(record.Key)),
			zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("produce to %s: %w", record.Topic, err)
	}

	p.logger.Debug("message produced",
		zap.String("topic", r.Topic),
		zap.Int32("partition", r.Partition),
		zap.Int64("offset", r.Offset))
	return nil
}

// Flush blocks until all buffered records are sent
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}

	p.client.Close()
	return nil
}

// EventRecord builds the record for a domain event: JSON value, aggregate id
// as key, routing and correlation headers
func EventRecord(evt *event.Event) (*kgo.Record, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}

	record := &kgo.Record{
		Topic: TopicFor(evt),
		Key:   []byte(evt.AggregateID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(evt.EventType)},
			{Key: HeaderEventID, Value: []byte(evt.ID)},
		},
	}
	if evt.CorrelationID != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: HeaderCorrelationID, Value: []byte(evt.CorrelationID)})
	}
	return record, nil
}

// EventPublisher publishes domain events straight to Redpanda. Used when
// there is no outbox table to stage them in.
type EventPublisher struct {
	producer *Producer
}

var _ event.Publisher = (*EventPublisher)(nil)

// NewEventPublisher wraps a producer
func NewEventPublisher(p *Producer) *EventPublisher {
	return &EventPublisher{producer: p}
}

// Publish implements event.Publisher
func (e *EventPublisher) Publish(ctx context.Context, evt *event.Event) error {
	record, err := EventRecord(evt)
	if err != nil {
		return err
	}
	return e.producer.produce(ctx, record)
}
