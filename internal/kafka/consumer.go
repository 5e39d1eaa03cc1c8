// Package kafka implements the Kafka transport: a consumer group that turns
// messages into events, a dead-letter publisher and the output publisher for
// collapsed containers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/consumer"
	"github.com/jittakal/kafeventavro/pkg/event"
)

var _ consumer.Consumer = (*SaramaConsumer)(nil)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	SecurityConfig

	BootstrapServers    []string
	GroupID             string
	AutoOffsetReset     string
	EnableAutoCommit    bool
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	// CloudEvents parses each value as a structured-mode CloudEvent.
	CloudEvents bool
}

// MetricsCollector defines metrics operations for Kafka consumer.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	SetConsumerLag(topic string, partition int32, lag float64)
	IncRebalances(groupID string)
	IncOffsetCommits(topic string, partition int32, status string)
	ObserveRebalanceDuration(groupID string, duration float64)
	ObserveCommitLatency(topic string, partition int32, duration float64)
	SetPartitionsAssigned(topic string, count float64)
}

// SaramaConsumer implements consumer.Consumer with a sarama consumer group.
// Offsets are marked through each ConsumedEvent's CommitFunc.
type SaramaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	logger        *zap.Logger
	metrics       MetricsCollector
	topics        []string
	ready         chan struct{}
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaConsumer creates a new Kafka consumer using Sarama library.
func NewSaramaConsumer(config ConsumerConfig, logger *zap.Logger, metrics MetricsCollector) (*SaramaConsumer, error) {
	if len(config.BootstrapServers) == 0 {
		return nil, fmt.Errorf("bootstrap servers are required")
	}
	if config.GroupID == "" {
		return nil, fmt.Errorf("consumer group id is required")
	}

	saramaConfig, err := newConsumerConfig(config, logger)
	if err != nil {
		return nil, err
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.BootstrapServers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		zap.String("group_id", config.GroupID),
		zap.Strings("bootstrap_servers", config.BootstrapServers),
		zap.Int("session_timeout_ms", config.SessionTimeoutMS),
		zap.Int("max_poll_interval_ms", config.MaxPollIntervalMS),
		zap.Bool("cloudevents", config.CloudEvents),
	)

	return newSaramaConsumer(consumerGroup, config, logger, metrics), nil
}

func newSaramaConsumer(group sarama.ConsumerGroup, config ConsumerConfig, logger *zap.Logger, metrics MetricsCollector) *SaramaConsumer {
	return &SaramaConsumer{
		consumerGroup: group,
		config:        config,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan struct{}),
	}
}

// newConsumerConfig builds the sarama configuration for a consumer group.
func newConsumerConfig(config ConsumerConfig, logger *zap.Logger) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = config.EnableAutoCommit
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}

	// A batch may stay buffered until the flush schedule fires.
	saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	}

	if err := configureSecurity(saramaConfig, config.SecurityConfig, logger); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return saramaConfig, nil
}

// Subscribe subscribes to the specified topics.
func (c *SaramaConsumer) Subscribe(ctx context.Context, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrConsumerClosed
	}
	if len(topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}

	c.topics = topics
	c.logger.Info("subscribed to topics", zap.Strings("topics", topics))
	return nil
}

// Consume starts the consumer group loop and blocks until the first session
// is set up or ctx is done.
func (c *SaramaConsumer) Consume(ctx context.Context) (<-chan *event.ConsumedEvent, <-chan error, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, nil, errors.ErrConsumerClosed
	}
	topics := c.topics
	c.mu.RUnlock()

	eventChan := make(chan *event.ConsumedEvent, 100)
	errorChan := make(chan error, 10)

	handler := &consumerGroupHandler{
		consumer:  c,
		eventChan: eventChan,
		ready:     c.ready,
	}

	go func() {
		defer close(eventChan)
		defer close(errorChan)

		for {
			if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
				c.logger.Error("consumer group error", zap.Error(err))
				errorChan <- err
				return
			}
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled")
				return
			}
		}
	}()

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Warn("consumer group reported error", zap.Error(err))
		}
	}()

	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	c.logger.Info("kafka consumer started and ready")
	return eventChan, errorChan, nil
}

// Close closes the consumer and releases resources.
func (c *SaramaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("error closing consumer group", zap.Error(err))
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	consumer       *SaramaConsumer
	eventChan      chan<- *event.ConsumedEvent
	ready          chan struct{}
	readyOnce      sync.Once
	rebalanceStart time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.rebalanceStart = time.Now()

	h.consumer.logger.Info("consumer group session setup",
		zap.String("member_id", session.MemberID()),
		zap.Int32("generation_id", session.GenerationID()),
		zap.Any("claims", session.Claims()),
	)

	if m := h.consumer.metrics; m != nil {
		m.IncRebalances(h.consumer.config.GroupID)
		for topic, partitions := range session.Claims() {
			m.SetPartitionsAssigned(topic, float64(len(partitions)))
		}
	}

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	if h.consumer.metrics != nil && !h.rebalanceStart.IsZero() {
		h.consumer.metrics.ObserveRebalanceDuration(h.consumer.config.GroupID, time.Since(h.rebalanceStart).Seconds())
	}

	h.consumer.logger.Info("consumer group session cleanup", zap.String("member_id", session.MemberID()))
	return nil
}

// ConsumeClaim converts the messages of one partition into events.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.consumer.logger.Info("started consuming partition",
		zap.String("topic", claim.Topic()),
		zap.Int32("partition", claim.Partition()),
		zap.Int64("initial_offset", claim.InitialOffset()),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			consumed := &event.ConsumedEvent{
				Event:      h.consumer.toEvent(message),
				CommitFunc: h.commitFunc(session, message),
			}

			select {
			case h.eventChan <- consumed:
				if m := h.consumer.metrics; m != nil {
					m.IncMessagesConsumed(message.Topic, message.Partition)
					m.SetConsumerLag(message.Topic, message.Partition, float64(claim.HighWaterMarkOffset()-message.Offset-1))
				}
			case <-session.Context().Done():
				return nil
			}

		case <-session.Context().Done():
			h.consumer.logger.Info("session context done, stopping partition consumption",
				zap.String("topic", claim.Topic()),
				zap.Int32("partition", claim.Partition()),
			)
			return nil
		}
	}
}

func (h *consumerGroupHandler) commitFunc(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) func() error {
	return func() error {
		startTime := time.Now()
		session.MarkMessage(message, "")
		if m := h.consumer.metrics; m != nil {
			m.ObserveCommitLatency(message.Topic, message.Partition, time.Since(startTime).Seconds())
			m.IncOffsetCommits(message.Topic, message.Partition, "success")
		}
		return nil
	}
}

// toEvent converts a Kafka message into an event. In CloudEvents mode a
// value that does not parse is passed through unchanged and left to the
// validator.
func (c *SaramaConsumer) toEvent(message *sarama.ConsumerMessage) *event.Event {
	e := &event.Event{
		Headers: extractHeaders(message.Headers),
		Body:    message.Value,
		Kafka: event.KafkaMetadata{
			Topic:     message.Topic,
			Partition: message.Partition,
			Offset:    message.Offset,
			Key:       message.Key,
			Timestamp: message.Timestamp,
		},
	}

	if !c.config.CloudEvents {
		return e
	}

	if err := applyStructuredCloudEvent(e, message.Value); err != nil {
		c.logger.Warn("failed to parse cloud event",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
	}
	return e
}

// applyStructuredCloudEvent replaces the body of e with the data of the
// structured-mode CloudEvent in value and copies its attributes to headers.
// The dataschema attribute becomes the schema locator unless one is set.
func applyStructuredCloudEvent(e *event.Event, value []byte) error {
	var ce cloudevents.Event
	if err := json.Unmarshal(value, &ce); err != nil {
		return fmt.Errorf("failed to unmarshal cloud event: %w", err)
	}

	e.Body = ce.Data()
	e.Headers[event.HeaderCESpecVersion] = ce.SpecVersion()
	e.Headers[event.HeaderCEID] = ce.ID()
	e.Headers[event.HeaderCESource] = ce.Source()
	e.Headers[event.HeaderCEType] = ce.Type()
	if !ce.Time().IsZero() {
		e.Headers[event.HeaderCETime] = ce.Time().UTC().Format(time.RFC3339Nano)
	}
	if schemaURL := ce.DataSchema(); schemaURL != "" {
		e.Headers[event.HeaderCEDataSchema] = schemaURL
		if e.Headers[event.HeaderSchemaURL] == "" {
			e.Headers[event.HeaderSchemaURL] = schemaURL
		}
	}
	return nil
}

// extractHeaders extracts headers from Kafka message.
func extractHeaders(headers []*sarama.RecordHeader) map[string]string {
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		if header == nil {
			continue
		}
		result[string(header.Key)] = string(header.Value)
	}
	return result
}
