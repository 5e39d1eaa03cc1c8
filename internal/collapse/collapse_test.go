package collapse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/encoder"
	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/internal/generator"
	"github.com/jittakal/kafeventavro/internal/payload"
	"github.com/jittakal/kafeventavro/internal/schema"
	"github.com/jittakal/kafeventavro/internal/transcoder"
	"github.com/jittakal/kafeventavro/pkg/event"
	"github.com/jittakal/kafeventavro/pkg/record"
)

const gpsLocator = "schemas/gpsrecord.avsc"

const examplePayload = `{"gpsrecord": {"accessid": 5, "accessnetwork": 1, "beamid": 2,
 "position": {"latitude": {"position": 12.5, "sense": "N"}, "longitude": {"position": 3.1, "sense": "E"}},
 "sassite": "A", "satelliteid": "S1", "time": {"capture": 1000}}}`

type fakeRejecter struct {
	mu       sync.Mutex
	rejected []*event.Event
	causes   []error
	err      error
}

func (r *fakeRejecter) Reject(_ context.Context, e *event.Event, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rejected = append(r.rejected, e)
	r.causes = append(r.causes, cause)
	return nil
}

type fakeMetrics struct {
	batches  map[string]int
	records  int
	failures map[string]int
	sizes    int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{batches: map[string]int{}, failures: map[string]int{}}
}

func (m *fakeMetrics) IncBatchesCollapsed(_ string, status string) { m.batches[status]++ }
func (m *fakeMetrics) IncRecordsTranscoded(_ string, count int)    { m.records += count }
func (m *fakeMetrics) IncRecordFailures(_ string, kind string)     { m.failures[kind]++ }
func (m *fakeMetrics) ObserveCollapseDuration(string, float64)     {}
func (m *fakeMetrics) ObserveContainerSize(string, float64)        { m.sizes++ }

func gpsCache() *schema.Cache {
	return schema.NewCache(schema.StaticLoader{gpsLocator: generator.GPSSchemaJSON()}, nil, nil)
}

func newCollapser(t *testing.T, cfg Config, opts ...Option) *Collapser {
	t.Helper()
	enc, err := encoder.NewAvroEncoder(encoder.AvroConfig{Codec: "deflate", BlockLength: 2})
	require.NoError(t, err)
	c, err := New(cfg, gpsCache(), enc, opts...)
	require.NoError(t, err)
	return c
}

func rawEvent(body string, offset int64) *event.Event {
	return &event.Event{
		Headers: map[string]string{event.HeaderSchemaURL: gpsLocator},
		Body:    []byte(body),
		Kafka: event.KafkaMetadata{
			Topic:     "gps-events",
			Partition: 3,
			Offset:    offset,
			Key:       []byte("sat-1"),
			Timestamp: time.Unix(1700000000, 0),
		},
	}
}

func generatedBatch(t *testing.T, n int) []*event.Event {
	t.Helper()
	gen := generator.NewGenerator(generator.Config{SchemaURL: gpsLocator, OptionalPercent: 50}, zap.NewNop())
	batch, err := gen.Batch(n)
	require.NoError(t, err)
	for i, e := range batch {
		e.Kafka.Topic = "gps-events"
		e.Kafka.Offset = int64(100 + i)
	}
	return batch
}

func transcodeAll(t *testing.T, batch []*event.Event) []*record.Record {
	t.Helper()
	var out []*record.Record
	for _, e := range batch {
		node, err := payload.NewExtractor().Extract(e.Body, payload.DefaultEnvelopeKey)
		require.NoError(t, err)
		rec, err := transcoder.New().Transcode(node, generator.GPSSchema())
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestNew(t *testing.T) {
	enc, err := encoder.NewAvroEncoder(encoder.AvroConfig{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     Config
		opts    []Option
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "abort", cfg: Config{FailurePolicy: PolicyAbort}},
		{name: "skip with rejecter", cfg: Config{FailurePolicy: PolicySkip}, opts: []Option{WithRejecter(&fakeRejecter{})}},
		{name: "skip without rejecter", cfg: Config{FailurePolicy: PolicySkip}, wantErr: true},
		{name: "unknown policy", cfg: Config{FailurePolicy: "retry"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, gpsCache(), enc, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}

	_, err = New(Config{}, nil, enc)
	assert.Error(t, err)
}

func TestCollapse_ThreeRecords(t *testing.T) {
	metrics := newFakeMetrics()
	c := newCollapser(t, Config{}, WithMetrics(metrics))
	batch := generatedBatch(t, 3)

	out, err := c.Collapse(context.Background(), batch, gpsLocator, payload.DefaultEnvelopeKey)
	require.NoError(t, err)
	require.Len(t, out, 1)

	container, err := encoder.Decode(out[0].Body)
	require.NoError(t, err)
	assert.Equal(t, generator.GPSSchema().Fingerprint(), container.Schema.Fingerprint())
	assert.Equal(t, "deflate", container.Codec)

	want := transcodeAll(t, batch)
	require.Len(t, container.Records, 3)
	for i := range want {
		assert.True(t, want[i].Equal(container.Records[i]), "record %d", i)
	}

	assert.Equal(t, 1, metrics.batches["success"])
	assert.Equal(t, 3, metrics.records)
	assert.Equal(t, 1, metrics.sizes)
}

func TestCollapse_PreservesOrderAndCount(t *testing.T) {
	c := newCollapser(t, Config{})

	for _, n := range []int{1, 2, 7, 50} {
		batch := generatedBatch(t, n)
		out, err := c.CollapseBatch(context.Background(), batch)
		require.NoError(t, err)
		require.Len(t, out, 1)

		container, err := encoder.Decode(out[0].Body)
		require.NoError(t, err)
		require.Len(t, container.Records, n)

		want := transcodeAll(t, batch)
		for i := range want {
			assert.True(t, want[i].Equal(container.Records[i]), "batch %d record %d", n, i)
		}
	}
}

func TestCollapse_OutputMetadataFromFirstEvent(t *testing.T) {
	c := newCollapser(t, Config{})
	first := rawEvent(examplePayload, 10)
	first.Headers["trace-id"] = "abc"
	second := rawEvent(examplePayload, 11)
	second.Kafka.Key = []byte("sat-2")
	batch := []*event.Event{first, second}

	out, err := c.CollapseBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, first.Headers, out[0].Headers)
	assert.Equal(t, first.Kafka, out[0].Kafka)
	assert.NotEqual(t, first.Body, out[0].Body)

	out[0].Headers["trace-id"] = "changed"
	out[0].Kafka.Key[0] = 'X'
	assert.Equal(t, "abc", first.Headers["trace-id"])
	assert.Equal(t, []byte("sat-1"), first.Kafka.Key)
	assert.Equal(t, []byte(examplePayload), first.Body)
	assert.Len(t, batch, 2)
}

func TestCollapse_ExamplePayload(t *testing.T) {
	c := newCollapser(t, Config{})

	out, err := c.CollapseBatch(context.Background(), []*event.Event{rawEvent(examplePayload, 1)})
	require.NoError(t, err)
	require.Len(t, out, 1)

	container, err := encoder.Decode(out[0].Body)
	require.NoError(t, err)
	require.Len(t, container.Records, 1)
	rec := container.Records[0]

	assert.False(t, rec.Has("accessclass"))
	assert.False(t, rec.Has("sac"))
	assert.False(t, rec.Has("updatereason"))

	options, ok := rec.Nested("options")
	require.True(t, ok)
	assert.Equal(t, 0, options.Len())

	position, ok := rec.Nested("position")
	require.True(t, ok)
	altitude, ok := position.Nested("altitude")
	require.True(t, ok)
	assert.Equal(t, 0, altitude.Len())
	quality, ok := position.Nested("quality")
	require.True(t, ok)
	assert.Equal(t, 0, quality.Len())

	assert.Equal(t, map[string]any{
		"accessid":      int64(5),
		"accessnetwork": int32(1),
		"beamid":        int32(2),
		"options":       map[string]any{},
		"position": map[string]any{
			"altitude":  map[string]any{},
			"latitude":  map[string]any{"position": 12.5, "sense": "N"},
			"longitude": map[string]any{"position": 3.1, "sense": "E"},
			"quality":   map[string]any{},
		},
		"sassite":     "A",
		"satelliteid": "S1",
		"time":        map[string]any{"capture": int64(1000)},
	}, rec.Map())
}

func TestCollapse_EmptyBatch(t *testing.T) {
	c := newCollapser(t, Config{})

	out, err := c.Collapse(context.Background(), nil, gpsLocator, "gpsrecord")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)

	out, err = c.CollapseBatch(context.Background(), []*event.Event{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCollapse_AbortsBatch(t *testing.T) {
	withBody := func(body string) []*event.Event {
		return []*event.Event{rawEvent(examplePayload, 20), rawEvent(body, 21), rawEvent(examplePayload, 22)}
	}

	tests := []struct {
		name       string
		batch      []*event.Event
		sentinel   error
		wantIndex  int
		wantOffset int64
	}{
		{
			name:       "missing required field",
			batch:      withBody(`{"gpsrecord": {"accessnetwork": 1, "beamid": 2, "position": {"latitude": {"position": 1, "sense": "N"}, "longitude": {"position": 1, "sense": "E"}}, "sassite": "A", "satelliteid": "S", "time": {"capture": 1}}}`),
			sentinel:   apperrors.ErrMissingField,
			wantIndex:  1,
			wantOffset: 21,
		},
		{
			name:       "type coercion",
			batch:      withBody(`{"gpsrecord": {"accessid": "five", "accessnetwork": 1, "beamid": 2, "position": {"latitude": {"position": 1, "sense": "N"}, "longitude": {"position": 1, "sense": "E"}}, "sassite": "A", "satelliteid": "S", "time": {"capture": 1}}}`),
			sentinel:   apperrors.ErrTypeCoercion,
			wantIndex:  1,
			wantOffset: 21,
		},
		{
			name:       "malformed body",
			batch:      withBody(`{"gpsrecord": `),
			sentinel:   apperrors.ErrPayloadFormat,
			wantIndex:  1,
			wantOffset: 21,
		},
		{
			name:       "missing envelope",
			batch:      withBody(`{"other": {}}`),
			sentinel:   apperrors.ErrEnvelopeKeyMissing,
			wantIndex:  1,
			wantOffset: 21,
		},
		{
			name:       "required child of absent nested record",
			batch:      withBody(`{"gpsrecord": {"accessid": 5, "accessnetwork": 1, "beamid": 2, "sassite": "A", "satelliteid": "S", "time": {"capture": 1}}}`),
			sentinel:   apperrors.ErrMissingField,
			wantIndex:  1,
			wantOffset: 21,
		},
		{
			name:       "nil first event",
			batch:      []*event.Event{nil, rawEvent(examplePayload, 21)},
			sentinel:   apperrors.ErrPayloadFormat,
			wantIndex:  0,
			wantOffset: -1,
		},
		{
			name:       "nil event after a valid one",
			batch:      []*event.Event{rawEvent(examplePayload, 20), nil, rawEvent(examplePayload, 22)},
			sentinel:   apperrors.ErrPayloadFormat,
			wantIndex:  1,
			wantOffset: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := newFakeMetrics()
			c := newCollapser(t, Config{}, WithMetrics(metrics))

			out, err := c.CollapseBatch(context.Background(), tt.batch)
			assert.Nil(t, out)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var recErr *apperrors.RecordError
			require.ErrorAs(t, err, &recErr)
			assert.Equal(t, tt.wantIndex, recErr.Index)
			assert.Equal(t, tt.wantOffset, recErr.Offset)

			assert.Equal(t, 1, metrics.batches["failed"])
			assert.Equal(t, 1, metrics.failures[apperrors.Kind(tt.sentinel)])
		})
	}
}

func TestCollapse_SkipPolicyNilEvent(t *testing.T) {
	rejecter := &fakeRejecter{}
	c := newCollapser(t, Config{FailurePolicy: PolicySkip}, WithRejecter(rejecter))

	out, err := c.CollapseBatch(context.Background(), []*event.Event{nil, rawEvent(examplePayload, 41)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(41), out[0].Kafka.Offset)
	assert.Empty(t, rejecter.rejected)

	container, err := encoder.Decode(out[0].Body)
	require.NoError(t, err)
	assert.Len(t, container.Records, 1)
}

func TestCollapse_SkipPolicy(t *testing.T) {
	rejecter := &fakeRejecter{}
	c := newCollapser(t, Config{FailurePolicy: PolicySkip}, WithRejecter(rejecter))
	bad := rawEvent(`{"gpsrecord": {"accessid": 1}}`, 31)
	batch := []*event.Event{rawEvent(examplePayload, 30), bad, rawEvent(examplePayload, 32)}

	out, err := c.CollapseBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(30), out[0].Kafka.Offset)

	container, err := encoder.Decode(out[0].Body)
	require.NoError(t, err)
	assert.Len(t, container.Records, 2)

	require.Len(t, rejecter.rejected, 1)
	assert.Same(t, bad, rejecter.rejected[0])
	assert.ErrorIs(t, rejecter.causes[0], apperrors.ErrMissingField)
}

func TestCollapse_SkipPolicyAllRejected(t *testing.T) {
	rejecter := &fakeRejecter{}
	c := newCollapser(t, Config{FailurePolicy: PolicySkip}, WithRejecter(rejecter))

	out, err := c.CollapseBatch(context.Background(), []*event.Event{rawEvent(`{}`, 1), rawEvent(`[]`, 2)})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, rejecter.rejected, 2)
}

func TestCollapse_SkipPolicyRejecterFailure(t *testing.T) {
	boom := errors.New("dlq unavailable")
	c := newCollapser(t, Config{FailurePolicy: PolicySkip}, WithRejecter(&fakeRejecter{err: boom}))

	out, err := c.CollapseBatch(context.Background(), []*event.Event{rawEvent(`{}`, 1)})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, boom)
}

func TestCollapse_SchemaLoadFailureThenRetry(t *testing.T) {
	metrics := newFakeMetrics()
	c := newCollapser(t, Config{}, WithMetrics(metrics))
	batch := []*event.Event{rawEvent(examplePayload, 1)}

	out, err := c.Collapse(context.Background(), batch, "", "gpsrecord")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperrors.ErrSchemaLoad)

	out, err = c.Collapse(context.Background(), batch, "unreachable.avsc", "gpsrecord")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperrors.ErrSchemaLoad)

	out, err = c.Collapse(context.Background(), batch, gpsLocator, "gpsrecord")
	require.NoError(t, err)
	assert.Len(t, out, 1)

	assert.Equal(t, 2, metrics.batches["failed"])
	assert.Equal(t, 2, metrics.failures["schema_load"])
}

func TestCollapse_FirstResolvedSchemaWins(t *testing.T) {
	c := newCollapser(t, Config{})
	batch := []*event.Event{rawEvent(examplePayload, 1)}

	_, err := c.Collapse(context.Background(), batch, gpsLocator, "gpsrecord")
	require.NoError(t, err)

	out, err := c.Collapse(context.Background(), batch, "", "gpsrecord")
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestCollapseBatch_HeaderDerivation(t *testing.T) {
	c := newCollapser(t, Config{DefaultLocator: gpsLocator, EnvelopeKey: "gps"})

	e := rawEvent(`{"gps": {"accessid": 5, "accessnetwork": 1, "beamid": 2, "position": {"latitude": {"position": 12.5, "sense": "N"}, "longitude": {"position": 3.1, "sense": "E"}}, "sassite": "A", "satelliteid": "S1", "time": {"capture": 1000}}}`, 1)
	delete(e.Headers, event.HeaderSchemaURL)
	assert.Equal(t, gpsLocator, c.Locator(e))
	assert.Equal(t, "gps", c.EnvelopeKey(e))

	out, err := c.CollapseBatch(context.Background(), []*event.Event{e})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	e.Headers[event.HeaderEnvelopeKey] = "gpsrecord"
	assert.Equal(t, "gpsrecord", c.EnvelopeKey(e))
	_, err = c.CollapseBatch(context.Background(), []*event.Event{e})
	assert.ErrorIs(t, err, apperrors.ErrEnvelopeKeyMissing)
}

func TestCollapse_CancelledContext(t *testing.T) {
	metrics := newFakeMetrics()
	c := newCollapser(t, Config{}, WithMetrics(metrics))
	_, err := c.CollapseBatch(context.Background(), []*event.Event{rawEvent(examplePayload, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CollapseBatch(ctx, []*event.Event{rawEvent(examplePayload, 1)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, metrics.batches["failed"])
}

func TestCollapse_ConcurrentBatches(t *testing.T) {
	c := newCollapser(t, Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		batch := generatedBatch(t, 5)
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.CollapseBatch(context.Background(), batch)
			if err == nil && len(out) != 1 {
				err = errors.New("expected one output unit")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
