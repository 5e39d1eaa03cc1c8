package kafka

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/collapse"
	"github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/consumer"
	"github.com/jittakal/kafeventavro/pkg/event"
)

var (
	_ consumer.DLQPublisher = (*DLQPublisher)(nil)
	_ collapse.Rejecter     = (*DLQPublisher)(nil)
)

// Dead-letter headers added to the original event headers.
const (
	HeaderFailureReason     = "failure_reason"
	HeaderFailureDetail     = "failure_detail"
	HeaderFailureTimestamp  = "failure_timestamp"
	HeaderOriginalTopic     = "original_topic"
	HeaderOriginalPartition = "original_partition"
	HeaderOriginalOffset    = "original_offset"
	HeaderProcessorID       = "processor_id"
)

// DLQConfig contains DLQ configuration.
type DLQConfig struct {
	Enabled     bool
	TopicSuffix string
	MaxRetries  int
}

// Validate checks an enabled configuration.
func (c DLQConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TopicSuffix == "" {
		return fmt.Errorf("topic suffix is required when DLQ is enabled")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// DLQMetricsCollector records dead-lettered events.
type DLQMetricsCollector interface {
	IncDeadLettered(topic string, reason string)
}

// DLQPublisher publishes raw failed events to <topic><suffix>. The body and
// key are kept as consumed so the record can be replayed; the failure is
// described in headers.
type DLQPublisher struct {
	producer    sarama.SyncProducer
	config      DLQConfig
	logger      *zap.Logger
	metrics     DLQMetricsCollector
	processorID string
	now         func() time.Time
	mu          sync.RWMutex
	closed      bool
}

// NewDLQPublisher creates a DLQ publisher with its own sync producer. A
// disabled publisher accepts and drops every event.
func NewDLQPublisher(
	producerCfg ProducerConfig,
	dlqCfg DLQConfig,
	logger *zap.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) (*DLQPublisher, error) {
	if err := dlqCfg.Validate(); err != nil {
		return nil, err
	}
	if !dlqCfg.Enabled {
		logger.Info("DLQ is disabled")
		return NewDLQPublisherWithProducer(nil, dlqCfg, logger, metrics, processorID), nil
	}

	producerCfg.RetryMax = dlqCfg.MaxRetries
	saramaConfig, err := newProducerConfig(producerCfg, logger)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(producerCfg.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("DLQ publisher created",
		zap.Strings("bootstrap_servers", producerCfg.BootstrapServers),
		zap.String("topic_suffix", dlqCfg.TopicSuffix),
	)

	return NewDLQPublisherWithProducer(producer, dlqCfg, logger, metrics, processorID), nil
}

// NewDLQPublisherWithProducer creates a DLQ publisher on an existing producer.
func NewDLQPublisherWithProducer(
	producer sarama.SyncProducer,
	dlqCfg DLQConfig,
	logger *zap.Logger,
	metrics DLQMetricsCollector,
	processorID string,
) *DLQPublisher {
	return &DLQPublisher{
		producer:    producer,
		config:      dlqCfg,
		logger:      logger,
		metrics:     metrics,
		processorID: processorID,
		now:         time.Now,
	}
}

// Topic returns the DLQ topic for events consumed from topic.
func (p *DLQPublisher) Topic(topic string) string {
	return topic + p.config.TopicSuffix
}

// Reject dead-letters a record dropped by the collapser.
func (p *DLQPublisher) Reject(ctx context.Context, e *event.Event, cause error) error {
	return p.Publish(ctx, e, errors.Kind(cause), cause)
}

// Publish publishes a failed event to the DLQ.
func (p *DLQPublisher) Publish(ctx context.Context, e *event.Event, reason string, cause error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrProducerClosed
	}
	if !p.config.Enabled {
		p.logger.Debug("DLQ disabled, dropping event",
			zap.String("topic", e.Kafka.Topic),
			zap.Int64("offset", e.Kafka.Offset),
			zap.String("reason", reason),
		)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := p.message(e, reason, cause)
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to publish to DLQ",
			zap.String("dlq_topic", msg.Topic),
			zap.Int64("original_offset", e.Kafka.Offset),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send message to DLQ: %w", err)
	}

	if p.metrics != nil {
		p.metrics.IncDeadLettered(e.Kafka.Topic, reason)
	}

	p.logger.Info("published event to DLQ",
		zap.String("dlq_topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Int64("original_offset", e.Kafka.Offset),
		zap.String("reason", reason),
	)
	return nil
}

func (p *DLQPublisher) message(e *event.Event, reason string, cause error) *sarama.ProducerMessage {
	now := p.now()

	headers := make([]sarama.RecordHeader, 0, len(e.Headers)+7)
	for _, key := range slices.Sorted(maps.Keys(e.Headers)) {
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(e.Headers[key])})
	}

	meta := [][2]string{
		{HeaderFailureReason, reason},
		{HeaderFailureTimestamp, now.UTC().Format(time.RFC3339Nano)},
		{HeaderOriginalTopic, e.Kafka.Topic},
		{HeaderOriginalPartition, strconv.FormatInt(int64(e.Kafka.Partition), 10)},
		{HeaderOriginalOffset, strconv.FormatInt(e.Kafka.Offset, 10)},
		{HeaderProcessorID, p.processorID},
	}
	if cause != nil {
		meta = append(meta, [2]string{HeaderFailureDetail, cause.Error()})
	}
	for _, kv := range meta {
		headers = append(headers, sarama.RecordHeader{Key: []byte(kv[0]), Value: []byte(kv[1])})
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.Topic(e.Kafka.Topic),
		Value:     sarama.ByteEncoder(e.Body),
		Headers:   headers,
		Timestamp: now,
	}
	if e.Kafka.Key != nil {
		msg.Key = sarama.ByteEncoder(e.Kafka.Key)
	}
	return msg
}

// Close closes the DLQ publisher.
func (p *DLQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing DLQ producer", zap.Error(err))
			return err
		}
	}

	p.logger.Info("DLQ publisher closed")
	return nil
}
