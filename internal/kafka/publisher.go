package kafka

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/event"
)

// Defaults for output CloudEvent attributes.
const (
	DefaultEventType   = "com.jittakal.kafeventavro.batch"
	DefaultEventSource = "kafeventavro"
)

// PublisherConfig configures the output publisher.
type PublisherConfig struct {
	// Topic receives every unit. When empty the unit goes to its source
	// topic plus TopicSuffix.
	Topic       string
	TopicSuffix string
	EventType   string
	EventSource string
}

// PublisherMetricsCollector records published units.
type PublisherMetricsCollector interface {
	IncUnitsPublished(topic string, status string)
}

// Publisher produces output units as binary-mode CloudEvents: the container
// is the message value and the attributes travel as ce_* headers, together
// with the headers inherited from the first event of the batch.
type Publisher struct {
	producer sarama.SyncProducer
	config   PublisherConfig
	logger   *zap.Logger
	metrics  PublisherMetricsCollector
	newID    func() string
	mu       sync.RWMutex
	closed   bool
}

// NewPublisher creates an output publisher with its own sync producer.
func NewPublisher(producerCfg ProducerConfig, cfg PublisherConfig, logger *zap.Logger, metrics PublisherMetricsCollector) (*Publisher, error) {
	if cfg.Topic == "" && cfg.TopicSuffix == "" {
		return nil, fmt.Errorf("output topic or topic suffix is required")
	}

	saramaConfig, err := newProducerConfig(producerCfg, logger)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(producerCfg.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("output publisher created",
		zap.Strings("bootstrap_servers", producerCfg.BootstrapServers),
		zap.String("topic", cfg.Topic),
		zap.String("topic_suffix", cfg.TopicSuffix),
	)

	return NewPublisherWithProducer(producer, cfg, logger, metrics), nil
}

// NewPublisherWithProducer creates an output publisher on an existing producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, cfg PublisherConfig, logger *zap.Logger, metrics PublisherMetricsCollector) *Publisher {
	if cfg.EventType == "" {
		cfg.EventType = DefaultEventType
	}
	if cfg.EventSource == "" {
		cfg.EventSource = DefaultEventSource
	}
	return &Publisher{
		producer: producer,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		newID:    func() string { return uuid.New().String() },
	}
}

// Topic returns the output topic for a unit collapsed from topic.
func (p *Publisher) Topic(topic string) string {
	if p.config.Topic != "" {
		return p.config.Topic
	}
	return topic + p.config.TopicSuffix
}

// Message builds the producer message for unit.
func (p *Publisher) Message(unit *event.Event) (*sarama.ProducerMessage, error) {
	ts := unit.Time()
	if ts.IsZero() {
		ts = time.Now()
	}

	ce := cloudevents.NewEvent()
	ce.SetID(p.newID())
	ce.SetType(p.config.EventType)
	ce.SetSource(p.config.EventSource)
	ce.SetTime(ts)
	ce.SetDataContentType(event.ContentTypeAvro)

	schemaURL := unit.Header(event.HeaderSchemaURL)
	if u, err := url.Parse(schemaURL); err == nil && u.IsAbs() {
		ce.SetDataSchema(schemaURL)
	}

	if err := ce.Validate(); err != nil {
		return nil, fmt.Errorf("invalid output cloud event: %w", err)
	}

	headers := make([]sarama.RecordHeader, 0, len(unit.Headers)+7)
	for _, key := range slices.Sorted(maps.Keys(unit.Headers)) {
		// Attributes of the input events describe a single record.
		if strings.HasPrefix(key, "ce_") || key == event.HeaderContentType {
			continue
		}
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(unit.Headers[key])})
	}

	attrs := [][2]string{
		{event.HeaderCESpecVersion, ce.SpecVersion()},
		{event.HeaderCEID, ce.ID()},
		{event.HeaderCESource, ce.Source()},
		{event.HeaderCEType, ce.Type()},
		{event.HeaderCETime, ce.Time().UTC().Format(time.RFC3339Nano)},
		{event.HeaderContentType, ce.DataContentType()},
	}
	if ds := ce.DataSchema(); ds != "" {
		attrs = append(attrs, [2]string{event.HeaderCEDataSchema, ds})
	}
	for _, kv := range attrs {
		headers = append(headers, sarama.RecordHeader{Key: []byte(kv[0]), Value: []byte(kv[1])})
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.Topic(unit.Kafka.Topic),
		Value:     sarama.ByteEncoder(unit.Body),
		Headers:   headers,
		Timestamp: ts,
	}
	if unit.Kafka.Key != nil {
		msg.Key = sarama.ByteEncoder(unit.Kafka.Key)
	}
	return msg, nil
}

// Deliver publishes unit and waits for the broker acknowledgement. It
// returns the location as kafka://topic/partition/offset.
func (p *Publisher) Deliver(ctx context.Context, unit *event.Event) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return "", errors.ErrProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg, err := p.Message(unit)
	if err != nil {
		return "", err
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.record(msg.Topic, "failure")
		return "", fmt.Errorf("failed to send unit to %s: %w", msg.Topic, err)
	}
	p.record(msg.Topic, "success")

	p.logger.Info("published container",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Int("container_size", len(unit.Body)),
		zap.String("source_topic", unit.Kafka.Topic),
		zap.Int64("first_offset", unit.Kafka.Offset),
	)
	return fmt.Sprintf("kafka://%s/%d/%d", msg.Topic, partition, offset), nil
}

func (p *Publisher) record(topic, status string) {
	if p.metrics != nil {
		p.metrics.IncUnitsPublished(topic, status)
	}
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
