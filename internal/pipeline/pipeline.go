// Package pipeline moves consumed events through validation, per-partition
// buffering and batch collapse to a sink, committing offsets only after a
// batch has been delivered or dead-lettered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/audit"
	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/buffer"
	"github.com/jittakal/kafeventavro/pkg/consumer"
	"github.com/jittakal/kafeventavro/pkg/event"
	"github.com/jittakal/kafeventavro/pkg/storage"
)

// Validator rejects events that must not enter a batch.
type Validator interface {
	Validate(e *event.Event) error
}

// Collapser turns a batch into its output units.
type Collapser interface {
	CollapseBatch(ctx context.Context, batch []*event.Event) ([]*event.Event, error)
}

// Sink delivers an output unit and returns where it was delivered.
type Sink interface {
	Deliver(ctx context.Context, unit *event.Event) (string, error)
}

// AuditLog records one row per flushed batch.
type AuditLog interface {
	Record(ctx context.Context, row audit.BatchAudit) error
}

// MetricsCollector defines the interface for pipeline metrics.
type MetricsCollector interface {
	IncEventsProcessed(topic string, partition int32, status string)
	ObserveProcessingDuration(topic string, operation string, duration float64)
	SetBufferStats(topic string, partition int32, records int, size int64)
}

// Config contains pipeline configuration.
type Config struct {
	// FlushSchedule is a cron expression or descriptor such as "@every 1m".
	// Every non-empty buffer is flushed when it fires. Empty disables it.
	FlushSchedule string
}

// Components are the collaborators a Pipeline drives. DLQ and Audit are
// optional.
type Components struct {
	Validator Validator
	Buffers   buffer.Manager
	Policy    storage.RotationPolicy
	Collapser Collapser
	Sink      Sink
	DLQ       consumer.DLQPublisher
	Audit     AuditLog
}

// Pipeline is the single processing loop. It owns every buffer; the
// consumer, the flush schedule and the caller talk to it through channels.
type Pipeline struct {
	Components
	schedule cron.Schedule
	ticks    chan struct{}
	logger   *zap.Logger
	metrics  MetricsCollector
	newID    func() string
}

// New creates a Pipeline.
func New(cfg Config, c Components, logger *zap.Logger, metrics MetricsCollector) (*Pipeline, error) {
	if c.Validator == nil || c.Buffers == nil || c.Policy == nil || c.Collapser == nil || c.Sink == nil {
		return nil, errors.New("pipeline requires a validator, buffers, a rotation policy, a collapser and a sink")
	}

	p := &Pipeline{
		Components: c,
		ticks:      make(chan struct{}, 1),
		logger:     logger,
		metrics:    metrics,
		newID:      func() string { return uuid.New().String() },
	}

	if cfg.FlushSchedule != "" {
		schedule, err := cron.ParseStandard(cfg.FlushSchedule)
		if err != nil {
			return nil, fmt.Errorf("invalid flush schedule %q: %w", cfg.FlushSchedule, err)
		}
		p.schedule = schedule
	}
	return p, nil
}

// Run processes events until ctx is cancelled or events is closed. Buffered
// events are flushed before it returns.
func (p *Pipeline) Run(ctx context.Context, events <-chan *event.ConsumedEvent, errs <-chan error) error {
	if p.schedule != nil {
		c := cron.New()
		c.Schedule(p.schedule, cron.FuncJob(p.Tick))
		c.Start()
		defer c.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, flushing buffers")
			p.FlushAll(context.WithoutCancel(ctx))
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("consumer error", zap.Error(err))

		case <-p.ticks:
			p.FlushAll(ctx)

		case ce, ok := <-events:
			if !ok {
				p.logger.Info("event channel closed, flushing buffers")
				p.FlushAll(context.WithoutCancel(ctx))
				return nil
			}
			p.handle(ctx, ce)
		}
	}
}

// Tick requests a flush of every buffer. It never blocks; a tick arriving
// while one is pending is dropped.
func (p *Pipeline) Tick() {
	select {
	case p.ticks <- struct{}{}:
	default:
	}
}

func (p *Pipeline) handle(ctx context.Context, ce *event.ConsumedEvent) {
	if ce == nil || ce.Event == nil {
		p.logger.Warn("dropping empty consumed event")
		commit(ce, p.logger)
		return
	}

	start := time.Now()
	e := ce.Event
	pid := e.PartitionID()

	if err := p.Validator.Validate(e); err != nil {
		p.logger.Warn("invalid event",
			zap.String("topic", pid.Topic),
			zap.Int32("partition", pid.Partition),
			zap.Int64("offset", e.Kafka.Offset),
			zap.Error(err),
		)
		p.recordEvents(pid, "invalid", 1)
		p.deadLetter(ctx, e, err)
		commit(ce, p.logger)
		return
	}

	buf := p.Buffers.GetOrCreate(pid)
	if err := buf.Add(ce); err != nil {
		if !errors.Is(err, apperrors.ErrBufferFull) {
			p.logger.Error("failed to buffer event", zap.String("partition", pid.String()), zap.Error(err))
			p.deadLetter(ctx, e, err)
			commit(ce, p.logger)
			return
		}
		p.flush(ctx, pid, buf)
		if err := buf.Add(ce); err != nil {
			p.logger.Error("failed to buffer event after flush", zap.String("partition", pid.String()), zap.Error(err))
			p.deadLetter(ctx, e, err)
			commit(ce, p.logger)
			return
		}
	}
	p.recordEvents(pid, "buffered", 1)

	stats := buf.Stats()
	if p.metrics != nil {
		p.metrics.SetBufferStats(pid.Topic, pid.Partition, stats.RecordCount, stats.SizeBytes)
	}
	if p.Policy.ShouldRotate(stats) {
		p.flush(ctx, pid, buf)
	}

	if p.metrics != nil {
		p.metrics.ObserveProcessingDuration(pid.Topic, "handle", time.Since(start).Seconds())
	}
}

// FlushAll flushes every non-empty buffer in partition order.
func (p *Pipeline) FlushAll(ctx context.Context) {
	for _, pid := range p.Buffers.Partitions() {
		buf := p.Buffers.GetOrCreate(pid)
		if !buf.IsEmpty() {
			p.flush(ctx, pid, buf)
		}
	}
}

// flush collapses the buffered batch, delivers its unit and commits every
// offset. A failed batch is dead-lettered record by record before commit.
func (p *Pipeline) flush(ctx context.Context, pid event.PartitionID, buf buffer.Buffer) {
	batch := buf.Drain()
	if p.metrics != nil {
		p.metrics.SetBufferStats(pid.Topic, pid.Partition, 0, 0)
	}
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	events := make([]*event.Event, len(batch))
	for i, ce := range batch {
		events[i] = ce.Event
	}

	row := audit.BatchAudit{
		BatchID:     p.newID(),
		Topic:       pid.Topic,
		Partition:   pid.Partition,
		FirstOffset: events[0].Kafka.Offset,
		LastOffset:  events[len(events)-1].Kafka.Offset,
		Records:     int32(len(events)),
	}

	location, size, err := p.deliver(ctx, events)
	switch {
	case err != nil:
		kind := apperrors.Kind(err)
		row.Status = audit.StatusDeadLettered
		row.ErrorKind = &kind

		p.logger.Error("batch failed, dead-lettering records",
			zap.String("topic", pid.Topic),
			zap.Int32("partition", pid.Partition),
			zap.Int("records", len(events)),
			zap.String("kind", kind),
			zap.Error(err),
		)
		for _, e := range events {
			p.deadLetter(ctx, e, err)
		}
		p.recordEvents(pid, "dead_lettered", len(events))

	case location == "":
		row.Status = audit.StatusEmpty
		p.recordEvents(pid, "empty", len(events))

	default:
		row.Status = audit.StatusDelivered
		row.Location = &location
		row.SizeBytes = size
		p.logger.Info("delivered batch",
			zap.String("topic", pid.Topic),
			zap.Int32("partition", pid.Partition),
			zap.Int("records", len(events)),
			zap.Int64("bytes", size),
			zap.String("location", location),
		)
		p.recordEvents(pid, "delivered", len(events))
	}

	for _, ce := range batch {
		commit(ce, p.logger)
	}

	duration := time.Since(start)
	row.DurationMS = duration.Milliseconds()
	if p.metrics != nil {
		p.metrics.ObserveProcessingDuration(pid.Topic, "flush", duration.Seconds())
	}

	if p.Audit != nil {
		if err := p.Audit.Record(ctx, row); err != nil {
			p.logger.Warn("failed to record batch audit", zap.String("batch_id", row.BatchID), zap.Error(err))
		}
	}
}

// deliver collapses events and hands the unit to the sink. An empty
// collapse result yields an empty location.
func (p *Pipeline) deliver(ctx context.Context, events []*event.Event) (string, int64, error) {
	units, err := p.Collapser.CollapseBatch(ctx, events)
	if err != nil {
		return "", 0, err
	}

	var location string
	var size int64
	for _, unit := range units {
		location, err = p.Sink.Deliver(ctx, unit)
		if err != nil {
			var storageErr *apperrors.StorageError
			if !errors.As(err, &storageErr) {
				err = &apperrors.StorageError{Operation: "deliver", Err: err}
			}
			return "", 0, err
		}
		size += int64(len(unit.Body))
	}
	return location, size, nil
}

func (p *Pipeline) deadLetter(ctx context.Context, e *event.Event, cause error) {
	if p.DLQ == nil {
		return
	}
	if err := p.DLQ.Publish(ctx, e, apperrors.Kind(cause), cause); err != nil {
		p.logger.Error("failed to publish to DLQ",
			zap.String("topic", e.Kafka.Topic),
			zap.Int32("partition", e.Kafka.Partition),
			zap.Int64("offset", e.Kafka.Offset),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) recordEvents(pid event.PartitionID, status string, count int) {
	if p.metrics == nil {
		return
	}
	for i := 0; i < count; i++ {
		p.metrics.IncEventsProcessed(pid.Topic, pid.Partition, status)
	}
}

func commit(ce *event.ConsumedEvent, logger *zap.Logger) {
	if ce == nil || ce.CommitFunc == nil {
		return
	}
	if err := ce.CommitFunc(); err != nil {
		var e event.Event
		if ce.Event != nil {
			e = *ce.Event
		}
		logger.Error("failed to commit offset", zap.Error(&apperrors.CommitError{
			PartitionID: e.PartitionID(),
			Offset:      e.Kafka.Offset,
			Err:         err,
		}))
	}
}
