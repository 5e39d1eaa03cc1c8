package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/audit"
	"github.com/jittakal/kafeventavro/internal/buffer"
	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/internal/storage"
	"github.com/jittakal/kafeventavro/internal/validator"
	"github.com/jittakal/kafeventavro/pkg/event"
)

type fakeCollapser struct {
	err   error
	empty bool
	calls [][]int64
}

func (c *fakeCollapser) CollapseBatch(_ context.Context, batch []*event.Event) ([]*event.Event, error) {
	offsets := make([]int64, len(batch))
	for i, e := range batch {
		offsets[i] = e.Kafka.Offset
	}
	c.calls = append(c.calls, offsets)

	if c.err != nil {
		return nil, c.err
	}
	if c.empty {
		return []*event.Event{}, nil
	}
	return []*event.Event{batch[0].WithBody([]byte("Obj\x01container"))}, nil
}

type fakeSink struct {
	mu    sync.Mutex
	err   error
	units []*event.Event
}

func (s *fakeSink) Deliver(_ context.Context, unit *event.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.units = append(s.units, unit)
	return fmt.Sprintf("file://out/%s/%d.avro", unit.Kafka.Topic, unit.Kafka.Offset), nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

type deadLetter struct {
	offset int64
	reason string
}

type fakeDLQ struct {
	records []deadLetter
	err     error
}

func (d *fakeDLQ) Publish(_ context.Context, e *event.Event, reason string, _ error) error {
	d.records = append(d.records, deadLetter{offset: e.Kafka.Offset, reason: reason})
	return d.err
}

func (d *fakeDLQ) Close() error { return nil }

type fakeAudit struct{ rows []audit.BatchAudit }

func (a *fakeAudit) Record(_ context.Context, row audit.BatchAudit) error {
	a.rows = append(a.rows, row)
	return nil
}

type fakePipelineMetrics struct {
	statuses map[string]int
	buffered []int
}

func newFakePipelineMetrics() *fakePipelineMetrics {
	return &fakePipelineMetrics{statuses: map[string]int{}}
}

func (m *fakePipelineMetrics) IncEventsProcessed(_ string, _ int32, status string) {
	m.statuses[status]++
}
func (m *fakePipelineMetrics) ObserveProcessingDuration(string, string, float64) {}
func (m *fakePipelineMetrics) SetBufferStats(_ string, _ int32, records int, _ int64) {
	m.buffered = append(m.buffered, records)
}

type harness struct {
	collapser *fakeCollapser
	sink      *fakeSink
	dlq       *fakeDLQ
	audit     *fakeAudit
	metrics   *fakePipelineMetrics
	pipeline  *Pipeline

	mu        sync.Mutex
	committed []int64
}

func newHarness(t *testing.T, maxRecords int, policy storage.PolicyConfig) *harness {
	t.Helper()
	h := &harness{
		collapser: &fakeCollapser{},
		sink:      &fakeSink{},
		dlq:       &fakeDLQ{},
		audit:     &fakeAudit{},
		metrics:   newFakePipelineMetrics(),
	}

	p, err := New(Config{}, Components{
		Validator: validator.New(false),
		Buffers:   buffer.NewManager(0, maxRecords),
		Policy:    storage.NewPolicy(policy),
		Collapser: h.collapser,
		Sink:      h.sink,
		DLQ:       h.dlq,
		Audit:     h.audit,
	}, zap.NewNop(), h.metrics)
	require.NoError(t, err)

	id := 0
	p.newID = func() string {
		id++
		return fmt.Sprintf("batch-%d", id)
	}
	h.pipeline = p
	return h
}

func (h *harness) event(partition int32, offset int64, body string) *event.ConsumedEvent {
	return &event.ConsumedEvent{
		Event: &event.Event{
			Body:  []byte(body),
			Kafka: event.KafkaMetadata{Topic: "gps-events", Partition: partition, Offset: offset},
		},
		CommitFunc: func() error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.committed = append(h.committed, offset)
			return nil
		},
	}
}

// run feeds events through the pipeline and waits for it to drain.
func (h *harness) run(t *testing.T, events ...*event.ConsumedEvent) {
	t.Helper()
	ch := make(chan *event.ConsumedEvent, len(events))
	for _, ce := range events {
		ch <- ce
	}
	close(ch)
	require.NoError(t, h.pipeline.Run(context.Background(), ch, nil))
}

const body = `{"gpsrecord":{"satellite":"sat-7"}}`

func TestPipeline_RotatesOnPolicyAndFlushesOnClose(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{MaxRecords: 2})

	h.run(t, h.event(0, 10, body), h.event(0, 11, body), h.event(0, 12, body))

	assert.Equal(t, [][]int64{{10, 11}, {12}}, h.collapser.calls)
	require.Len(t, h.sink.units, 2)
	assert.Equal(t, []int64{10, 11, 12}, h.committed)
	assert.Empty(t, h.dlq.records)

	require.Len(t, h.audit.rows, 2)
	first := h.audit.rows[0]
	assert.Equal(t, "batch-1", first.BatchID)
	assert.Equal(t, audit.StatusDelivered, first.Status)
	assert.Equal(t, int64(10), first.FirstOffset)
	assert.Equal(t, int64(11), first.LastOffset)
	assert.Equal(t, int32(2), first.Records)
	assert.Equal(t, "file://out/gps-events/10.avro", *first.Location)
	assert.Equal(t, int64(len("Obj\x01container")), first.SizeBytes)
	assert.Nil(t, first.ErrorKind)

	assert.Equal(t, 3, h.metrics.statuses["buffered"])
	assert.Equal(t, 3, h.metrics.statuses["delivered"])
}

func TestPipeline_PartitionsBatchIndependently(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})

	h.run(t, h.event(1, 5, body), h.event(0, 7, body), h.event(1, 6, body))

	assert.Equal(t, [][]int64{{7}, {5, 6}}, h.collapser.calls)
	assert.ElementsMatch(t, []int64{5, 6, 7}, h.committed)
}

func TestPipeline_InvalidEventIsDeadLettered(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})

	h.run(t, h.event(0, 1, ""), h.event(0, 2, body))

	assert.Equal(t, []deadLetter{{offset: 1, reason: "validation"}}, h.dlq.records)
	assert.Equal(t, [][]int64{{2}}, h.collapser.calls)
	assert.Equal(t, []int64{1, 2}, h.committed)
	assert.Equal(t, 1, h.metrics.statuses["invalid"])
}

func TestPipeline_CollapseFailureDeadLettersWholeBatch(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{MaxRecords: 3})
	h.collapser.err = &apperrors.RecordError{Index: 1, Offset: 21, Err: &apperrors.MissingFieldError{Path: "satellite"}}

	h.run(t, h.event(0, 20, body), h.event(0, 21, `{"gpsrecord":{}}`), h.event(0, 22, body))

	assert.Empty(t, h.sink.units)
	assert.Equal(t, []deadLetter{
		{offset: 20, reason: "missing_field"},
		{offset: 21, reason: "missing_field"},
		{offset: 22, reason: "missing_field"},
	}, h.dlq.records)
	assert.Equal(t, []int64{20, 21, 22}, h.committed)

	require.Len(t, h.audit.rows, 1)
	assert.Equal(t, audit.StatusDeadLettered, h.audit.rows[0].Status)
	assert.Equal(t, "missing_field", *h.audit.rows[0].ErrorKind)
	assert.Nil(t, h.audit.rows[0].Location)
}

func TestPipeline_SinkFailureDeadLettersAsStorage(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})
	h.sink.err = errors.New("broker unavailable")

	h.run(t, h.event(0, 1, body), h.event(0, 2, body))

	assert.Equal(t, []deadLetter{
		{offset: 1, reason: "storage"},
		{offset: 2, reason: "storage"},
	}, h.dlq.records)
	assert.Equal(t, []int64{1, 2}, h.committed)
}

func TestPipeline_DLQFailureStillCommits(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})
	h.collapser.err = &apperrors.SchemaLoadError{Locator: "", Err: errors.New("empty locator")}
	h.dlq.err = errors.New("dlq down")

	h.run(t, h.event(0, 1, body))

	assert.Len(t, h.dlq.records, 1)
	assert.Equal(t, []int64{1}, h.committed)
}

func TestPipeline_EmptyCollapseResult(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})
	h.collapser.empty = true

	h.run(t, h.event(0, 1, body))

	assert.Empty(t, h.sink.units)
	assert.Equal(t, []int64{1}, h.committed)
	require.Len(t, h.audit.rows, 1)
	assert.Equal(t, audit.StatusEmpty, h.audit.rows[0].Status)
}

func TestPipeline_FullBufferFlushesBeforeAdding(t *testing.T) {
	h := newHarness(t, 2, storage.PolicyConfig{})

	h.run(t, h.event(0, 1, body), h.event(0, 2, body), h.event(0, 3, body))

	assert.Equal(t, [][]int64{{1, 2}, {3}}, h.collapser.calls)
	assert.Equal(t, []int64{1, 2, 3}, h.committed)
}

func TestPipeline_CancelFlushesBufferedEvents(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	events := make(chan *event.ConsumedEvent)
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx, events, nil) }()

	events <- h.event(0, 1, body)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	assert.Equal(t, 1, h.sink.count())
	assert.Equal(t, []int64{1}, h.committed)
}

func TestPipeline_TickFlushesAllPartitions(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *event.ConsumedEvent)
	errs := make(chan error)
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx, events, errs) }()

	events <- h.event(0, 1, body)
	events <- h.event(1, 1, body)
	errs <- errors.New("transient consumer error")
	h.pipeline.Tick()

	require.Eventually(t, func() bool { return h.sink.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	close(events)
	require.NoError(t, <-done)
	assert.Equal(t, 2, h.sink.count())
}

func TestPipeline_TickNeverBlocks(t *testing.T) {
	h := newHarness(t, 0, storage.PolicyConfig{})

	h.pipeline.Tick()
	h.pipeline.Tick()

	assert.Len(t, h.pipeline.ticks, 1)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, Components{}, zap.NewNop(), nil)
	assert.Error(t, err)

	h := newHarness(t, 0, storage.PolicyConfig{})
	_, err = New(Config{FlushSchedule: "not a schedule"}, h.pipeline.Components, zap.NewNop(), nil)
	assert.Error(t, err)

	p, err := New(Config{FlushSchedule: "@every 30s"}, h.pipeline.Components, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.NotNil(t, p.schedule)
}
