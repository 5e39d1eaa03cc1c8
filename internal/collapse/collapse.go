// Package collapse turns a batch of raw events into a single output event
// whose body is an Avro object container holding every record of the batch.
package collapse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/internal/payload"
	"github.com/jittakal/kafeventavro/internal/transcoder"
	"github.com/jittakal/kafeventavro/pkg/encoder"
	"github.com/jittakal/kafeventavro/pkg/event"
	"github.com/jittakal/kafeventavro/pkg/record"
	"github.com/jittakal/kafeventavro/pkg/schema"
)

// FailurePolicy decides what happens to a batch when one record fails.
type FailurePolicy string

const (
	// PolicyAbort fails the whole batch on the first record failure.
	PolicyAbort FailurePolicy = "abort"
	// PolicySkip hands failed records to the Rejecter and keeps the rest.
	PolicySkip FailurePolicy = "skip"
)

// SchemaResolver resolves the schema of a batch.
type SchemaResolver interface {
	Resolve(ctx context.Context, locator string) (*schema.Schema, error)
}

// Extractor pulls the payload out of an event body.
type Extractor interface {
	Extract(body []byte, envelopeKey string) (*payload.Node, error)
}

// Transcoder maps a payload onto a schema.
type Transcoder interface {
	Transcode(p *payload.Node, s *schema.Schema) (*record.Record, error)
}

// Rejecter receives records dropped under PolicySkip.
type Rejecter interface {
	Reject(ctx context.Context, e *event.Event, cause error) error
}

// MetricsCollector defines the interface for collapse metrics.
type MetricsCollector interface {
	IncBatchesCollapsed(topic string, status string)
	IncRecordsTranscoded(topic string, count int)
	IncRecordFailures(topic string, kind string)
	ObserveCollapseDuration(topic string, duration float64)
	ObserveContainerSize(topic string, size float64)
}

// Config contains collapse configuration.
type Config struct {
	// EnvelopeKey is the top-level body key holding the record payload.
	EnvelopeKey string
	// LocatorHeader is the header of the first event naming the schema.
	LocatorHeader string
	// DefaultLocator is used when the first event carries no locator header.
	DefaultLocator string
	FailurePolicy  FailurePolicy
}

// Collapser drives batches through extraction, transcoding and encoding.
type Collapser struct {
	cfg        Config
	cache      SchemaResolver
	extractor  Extractor
	transcoder Transcoder
	encoder    encoder.Encoder
	rejecter   Rejecter
	logger     *zap.Logger
	metrics    MetricsCollector
}

// Option configures a Collapser.
type Option func(*Collapser)

// WithRejecter sets the destination of records dropped under PolicySkip.
func WithRejecter(r Rejecter) Option {
	return func(c *Collapser) { c.rejecter = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collapser) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Collapser) { c.metrics = m }
}

// WithTranscoder replaces the default transcoder.
func WithTranscoder(t Transcoder) Option {
	return func(c *Collapser) { c.transcoder = t }
}

// New creates a Collapser.
func New(cfg Config, cache SchemaResolver, enc encoder.Encoder, opts ...Option) (*Collapser, error) {
	if cache == nil || enc == nil {
		return nil, errors.New("collapser requires a schema resolver and an encoder")
	}
	if cfg.LocatorHeader == "" {
		cfg.LocatorHeader = event.HeaderSchemaURL
	}
	if cfg.EnvelopeKey == "" {
		cfg.EnvelopeKey = payload.DefaultEnvelopeKey
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyAbort
	}

	c := &Collapser{
		cfg:        cfg,
		cache:      cache,
		extractor:  payload.NewExtractor(),
		transcoder: transcoder.New(),
		encoder:    enc,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	switch cfg.FailurePolicy {
	case PolicyAbort:
	case PolicySkip:
		if c.rejecter == nil {
			return nil, errors.New("skip failure policy requires a rejecter")
		}
	default:
		return nil, fmt.Errorf("unsupported failure policy: %s (supported: abort, skip)", cfg.FailurePolicy)
	}
	return c, nil
}

// Locator returns the schema locator carried by the first event of a batch.
func (c *Collapser) Locator(first *event.Event) string {
	if l := first.Header(c.cfg.LocatorHeader); l != "" {
		return l
	}
	return c.cfg.DefaultLocator
}

// EnvelopeKey returns the envelope key for a batch whose first event is first.
func (c *Collapser) EnvelopeKey(first *event.Event) string {
	if k := first.Header(event.HeaderEnvelopeKey); k != "" {
		return k
	}
	return c.cfg.EnvelopeKey
}

// CollapseBatch collapses batch using the locator and envelope key derived
// from its first non-nil event.
func (c *Collapser) CollapseBatch(ctx context.Context, batch []*event.Event) ([]*event.Event, error) {
	if len(batch) == 0 {
		return []*event.Event{}, nil
	}
	head := firstEvent(batch)
	return c.Collapse(ctx, batch, c.Locator(head), c.EnvelopeKey(head))
}

// Collapse transcodes every event of batch against the schema named by
// locator and returns one event holding the container. The output copies the
// headers and Kafka metadata of the first non-nil event. An empty batch yields
// an empty slice. A nil event fails with a payload format error. Under
// PolicyAbort any failure fails the call and no output is produced. The batch
// is never modified.
func (c *Collapser) Collapse(ctx context.Context, batch []*event.Event, locator, envelopeKey string) ([]*event.Event, error) {
	if len(batch) == 0 {
		return []*event.Event{}, nil
	}

	start := time.Now()
	head := firstEvent(batch)
	topic := ""
	if head != nil {
		topic = head.Kafka.Topic
	}

	s, err := c.cache.Resolve(ctx, locator)
	if err != nil {
		c.recordFailure(topic, err)
		return nil, err
	}

	w, err := c.encoder.Open(s)
	if err != nil {
		c.recordFailure(topic, err)
		return nil, fmt.Errorf("failed to open container: %w", err)
	}

	rejected := 0
	for i, e := range batch {
		if err := ctx.Err(); err != nil {
			c.recordFailure(topic, err)
			return nil, err
		}

		if err := c.appendEvent(w, e, s, envelopeKey); err != nil {
			recErr := &apperrors.RecordError{Index: i, Offset: offsetOf(e), Err: err}
			if c.metrics != nil {
				c.metrics.IncRecordFailures(topic, apperrors.Kind(err))
			}

			if c.cfg.FailurePolicy == PolicySkip && !errors.Is(err, apperrors.ErrEncoderState) {
				// A nil event carries nothing to dead-letter.
				if e == nil {
					rejected++
					continue
				}
				if rerr := c.rejecter.Reject(ctx, e, recErr); rerr != nil {
					c.recordFailure(topic, recErr)
					return nil, fmt.Errorf("failed to reject record %d: %w", i, rerr)
				}
				rejected++
				c.logger.Warn("record rejected",
					zap.String("topic", topic),
					zap.Int("index", i),
					zap.Int64("offset", e.Kafka.Offset),
					zap.Error(err),
				)
				continue
			}

			c.recordFailure(topic, recErr)
			c.logger.Warn("batch aborted",
				zap.String("topic", topic),
				zap.Int("records", len(batch)),
				zap.Int("index", i),
				zap.Error(err),
			)
			return nil, recErr
		}
	}

	if w.Count() == 0 {
		if c.metrics != nil {
			c.metrics.IncBatchesCollapsed(topic, "empty")
		}
		return []*event.Event{}, nil
	}

	blob, err := w.Finish()
	if err != nil {
		c.recordFailure(topic, err)
		return nil, fmt.Errorf("failed to finish container: %w", err)
	}

	if c.metrics != nil {
		c.metrics.IncBatchesCollapsed(topic, "success")
		c.metrics.IncRecordsTranscoded(topic, w.Count())
		c.metrics.ObserveContainerSize(topic, float64(len(blob)))
		c.metrics.ObserveCollapseDuration(topic, time.Since(start).Seconds())
	}
	c.logger.Debug("batch collapsed",
		zap.String("topic", topic),
		zap.Int("records", w.Count()),
		zap.Int("rejected", rejected),
		zap.Int("bytes", len(blob)),
		zap.String("schema", s.Name()),
	)

	return []*event.Event{head.WithBody(blob)}, nil
}

// firstEvent returns the first non-nil event of batch.
func firstEvent(batch []*event.Event) *event.Event {
	for _, e := range batch {
		if e != nil {
			return e
		}
	}
	return nil
}

// offsetOf returns the Kafka offset of e, or -1 for a nil event.
func offsetOf(e *event.Event) int64 {
	if e == nil {
		return -1
	}
	return e.Kafka.Offset
}

func (c *Collapser) appendEvent(w encoder.ContainerWriter, e *event.Event, s *schema.Schema, envelopeKey string) error {
	if e == nil {
		return &apperrors.PayloadFormatError{Err: errors.New("nil event")}
	}
	p, err := c.extractor.Extract(e.Body, envelopeKey)
	if err != nil {
		return err
	}
	rec, err := c.transcoder.Transcode(p, s)
	if err != nil {
		return err
	}
	return w.Append(rec)
}

func (c *Collapser) recordFailure(topic string, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.IncBatchesCollapsed(topic, "failed")
	if apperrors.Kind(err) == "schema_load" {
		c.metrics.IncRecordFailures(topic, apperrors.Kind(err))
	}
}
