// Package redpanda provides Kafka-compatible streaming with franz-go.
// Carries intake lifecycle events from the outbox relay to downstream
// consumers.
package redpanda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/observability/metrics"
)

// ProducerConfig holds configuration for the Redpanda producer
type ProducerConfig struct {
	// Brokers is a list of broker addresses
	Brokers []string
	// BatchMaxBytes is the maximum batch size
	BatchMaxBytes int32
	// LingerMS is the time to wait before sending a batch
	LingerMS int64
	// MaxBufferedRecords is the maximum number of records to buffer
	MaxBufferedRecords int
	// Compression is the compression codec to use
	Compression string
	// RequiredAcks sets the required acks level (-1 for all, 1 for leader)
	RequiredAcks int16
	// MaxRetries is the maximum number of retries for failed sends
	MaxRetries int
	// RetryBackoffMS is the backoff time between retries
	RetryBackoffMS int64
}

// DefaultProducerConfig returns defaults tuned for intake event volume
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:            []string{"localhost:9092"},
		BatchMaxBytes:      16 * 1024 * 1024,
		LingerMS:           50,
		MaxBufferedRecords: 1_000_000,
		Compression:        "lz4",
		RequiredAcks:       -1, // Wait for all replicas (durability)
		MaxRetries:         3,
		RetryBackoffMS:     100,
	}
}

// Producer publishes outbox entries to Redpanda. The relay produces one
// message at a time and relies on the client's batching for throughput.
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
		kgo.ProducerBatchMaxBytes(cfg.BatchMaxBytes),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
	}

	// Set required acks
	switch cfg.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case 0:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()))
	case 1:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()))
	}

	// Set compression
	switch cfg.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
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

// ProduceMessage sends a single message and waits for the broker ack. The
// outbox relay marks an entry processed only after this returns nil.
func (p *Producer) ProduceMessage(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "produce_message",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("key", key),
			attribute.Int("value_size", len(value)),
		))
	defer span.End()

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	// Inject trace context into record headers
	injectTraceHeaders(ctx, record)

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			produceErr = err
			p.logger.Error("failed to produce message",
				zap.String("topic", topic),
				zap.String("key", key),
				zap.Error(err))
			span.RecordError(err)
		} else {
			metrics.Default().KafkaMessagesProduced.Inc()
			p.logger.Debug("message produced",
				zap.String("topic", r.Topic),
				zap.Int32("partition", r.Partition),
				zap.Int64("offset", r.Offset))
		}
	})

	wg.Wait()
	return produceErr
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

// injectTraceHeaders adds OpenTelemetry trace context to record headers
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	sc := span.SpanContext()
	record.Headers = append(record.Headers,
		kgo.RecordHeader{Key: "traceparent", Value: []byte(fmt.Sprintf("00-%s-%s-%02x",
			sc.TraceID().String(),
			sc.SpanID().String(),
			sc.TraceFlags()))},
	)
}
