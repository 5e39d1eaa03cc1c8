package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Put(_ context.Context, location string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.objects[location] = data
	return nil
}

func (s *memStore) Backend() string { return "memory" }
func (s *memStore) Close() error    { return nil }

type fakeAuditMetrics struct{ rows map[string]int }

func (m *fakeAuditMetrics) IncAuditRows(status string, count int) { m.rows[status] += count }

var flushTime = time.Date(2025, 12, 18, 10, 30, 0, 0, time.UTC)

func fixedLog(store *memStore, cfg Config, metrics MetricsCollector) *Log {
	l := New(store, cfg, zap.NewNop(), metrics)
	l.now = func() time.Time { return flushTime }
	l.newID = func() string { return "a1" }
	return l
}

func row(offset int64, status string) BatchAudit {
	return BatchAudit{
		BatchID:     "batch-1",
		Topic:       "gps-events",
		Partition:   3,
		FirstOffset: offset,
		LastOffset:  offset + 2,
		Records:     3,
		Status:      status,
		SizeBytes:   512,
		DurationMS:  4,
	}
}

func TestEncodeDecode(t *testing.T) {
	kind := "missing_field"
	location := "s3://lake/raw/gps-events/dt=2025-12-18/pid=3/batch_1.avro"
	delivered := row(10, StatusDelivered)
	delivered.Location = &location
	delivered.FlushedAt = flushTime
	failed := row(13, StatusDeadLettered)
	failed.ErrorKind = &kind
	failed.FlushedAt = flushTime

	for _, codec := range []string{"snappy", "gzip", "zstd", "lz4", "none"} {
		t.Run(codec, func(t *testing.T) {
			data, err := Encode([]BatchAudit{delivered, failed}, codec)
			require.NoError(t, err)

			rows, err := Decode(data)
			require.NoError(t, err)
			require.Len(t, rows, 2)

			assert.Equal(t, location, *rows[0].Location)
			assert.Nil(t, rows[0].ErrorKind)
			assert.Equal(t, kind, *rows[1].ErrorKind)
			assert.Nil(t, rows[1].Location)
			assert.Equal(t, int64(13), rows[1].FirstOffset)
			assert.True(t, flushTime.Equal(rows[1].FlushedAt))
		})
	}
}

func TestLog_FlushWritesOneFile(t *testing.T) {
	store := newMemStore()
	metrics := &fakeAuditMetrics{rows: map[string]int{}}
	l := fixedLog(store, Config{Path: "/audit/"}, metrics)

	require.NoError(t, l.Record(context.Background(), row(0, StatusDelivered)))
	require.NoError(t, l.Record(context.Background(), row(3, StatusEmpty)))
	assert.Empty(t, store.objects)

	require.NoError(t, l.Flush(context.Background()))

	data, ok := store.objects["audit/dt=2025-12-18/audit_20251218_103000_a1.parquet"]
	require.True(t, ok, "unexpected locations: %v", store.objects)

	rows, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusEmpty, rows[1].Status)
	assert.True(t, flushTime.Equal(rows[0].FlushedAt))
	assert.Equal(t, 2, metrics.rows["success"])
}

func TestLog_FlushEmptyIsNoop(t *testing.T) {
	store := newMemStore()
	l := fixedLog(store, Config{}, nil)

	require.NoError(t, l.Flush(context.Background()))
	assert.Empty(t, store.objects)
}

func TestLog_AutoFlushAtMaxRows(t *testing.T) {
	store := newMemStore()
	l := fixedLog(store, Config{MaxRows: 2}, nil)

	require.NoError(t, l.Record(context.Background(), row(0, StatusDelivered)))
	assert.Empty(t, store.objects)
	require.NoError(t, l.Record(context.Background(), row(3, StatusDelivered)))
	assert.Len(t, store.objects, 1)
	assert.Empty(t, l.rows)
}

func TestLog_StoreFailureKeepsRows(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("bucket unavailable")
	metrics := &fakeAuditMetrics{rows: map[string]int{}}
	l := fixedLog(store, Config{}, metrics)

	require.NoError(t, l.Record(context.Background(), row(0, StatusDelivered)))
	err := l.Flush(context.Background())

	var storageErr *apperrors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "audit", storageErr.Operation)
	assert.Len(t, l.rows, 1)
	assert.Equal(t, 1, metrics.rows["failure"])

	store.err = nil
	require.NoError(t, l.Flush(context.Background()))
	assert.Len(t, store.objects, 1)
}

func TestLog_Close(t *testing.T) {
	store := newMemStore()
	l := fixedLog(store, Config{}, nil)

	require.NoError(t, l.Record(context.Background(), row(0, StatusDelivered)))
	require.NoError(t, l.Close(context.Background()))
	assert.Len(t, store.objects, 1)

	assert.ErrorIs(t, l.Record(context.Background(), row(3, StatusDelivered)), apperrors.ErrWriterClosed)
	assert.ErrorIs(t, l.Flush(context.Background()), apperrors.ErrWriterClosed)
	assert.NoError(t, l.Close(context.Background()))
}

func TestNew_Defaults(t *testing.T) {
	l := New(newMemStore(), Config{}, zap.NewNop(), nil)

	assert.Equal(t, "_audit", l.config.Path)
	assert.Equal(t, 1000, l.config.MaxRows)
}
