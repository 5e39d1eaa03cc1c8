// Package audit records one row per collapsed batch and stores the rows as
// Parquet files next to the containers they describe.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/storage"
)

// ContentTypeParquet is the content type of stored audit files.
const ContentTypeParquet = "application/vnd.apache.parquet"

// Batch statuses.
const (
	StatusDelivered    = "delivered"
	StatusDeadLettered = "dead_lettered"
	StatusEmpty        = "empty"
)

// BatchAudit is the Parquet row written for every flushed batch.
type BatchAudit struct {
	BatchID     string    `parquet:"batch_id"`
	Topic       string    `parquet:"topic,dict"`
	Partition   int32     `parquet:"partition"`
	FirstOffset int64     `parquet:"first_offset"`
	LastOffset  int64     `parquet:"last_offset"`
	Records     int32     `parquet:"records"`
	Status      string    `parquet:"status,dict"`
	ErrorKind   *string   `parquet:"error_kind,dict,optional"`
	Location    *string   `parquet:"location,optional"`
	SizeBytes   int64     `parquet:"size_bytes"`
	DurationMS  int64     `parquet:"duration_ms"`
	FlushedAt   time.Time `parquet:"flushed_at,timestamp(microsecond)"`
}

// Config configures the audit log.
type Config struct {
	// Path is the location prefix audit files are written under.
	Path string
	// Compression is the Parquet page codec: snappy, gzip, lz4, zstd or none.
	Compression string
	// MaxRows flushes the pending rows once this many are recorded.
	MaxRows int
}

// MetricsCollector defines metrics operations for the audit log.
type MetricsCollector interface {
	IncAuditRows(status string, count int)
}

// Log buffers audit rows and writes them to an object store.
type Log struct {
	store   storage.ObjectStore
	config  Config
	logger  *zap.Logger
	metrics MetricsCollector
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	rows   []BatchAudit
	closed bool
}

// New creates an audit log writing through store.
func New(store storage.ObjectStore, config Config, logger *zap.Logger, metrics MetricsCollector) *Log {
	if config.Path == "" {
		config.Path = "_audit"
	}
	if config.MaxRows <= 0 {
		config.MaxRows = 1000
	}
	return &Log{
		store:   store,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Record appends row and flushes once MaxRows rows are pending.
func (l *Log) Record(ctx context.Context, row BatchAudit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.ErrWriterClosed
	}
	if row.FlushedAt.IsZero() {
		row.FlushedAt = l.now()
	}
	l.rows = append(l.rows, row)

	if len(l.rows) < l.config.MaxRows {
		return nil
	}
	return l.flush(ctx)
}

// Flush writes the pending rows as one Parquet file.
func (l *Log) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.ErrWriterClosed
	}
	return l.flush(ctx)
}

// Close flushes the pending rows. Later calls to Record fail with
// errors.ErrWriterClosed.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.flush(ctx)
}

func (l *Log) flush(ctx context.Context) error {
	if len(l.rows) == 0 {
		return nil
	}

	rows := l.rows
	data, err := Encode(rows, l.config.Compression)
	if err != nil {
		l.recordRows("failure", len(rows))
		return err
	}

	location := l.location()
	if err := l.store.Put(ctx, location, data, ContentTypeParquet); err != nil {
		l.recordRows("failure", len(rows))
		return &errors.StorageError{Operation: "audit", Path: location, Err: err}
	}

	l.rows = nil
	l.recordRows("success", len(rows))
	l.logger.Debug("wrote audit file",
		zap.String("location", location),
		zap.Int("rows", len(rows)),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (l *Log) location() string {
	now := l.now().UTC()
	return fmt.Sprintf("%s/dt=%s/audit_%s_%s.parquet",
		strings.Trim(l.config.Path, "/"),
		now.Format("2006-01-02"),
		now.Format("20060102_150405"),
		l.newID(),
	)
}

func (l *Log) recordRows(status string, count int) {
	if l.metrics != nil {
		l.metrics.IncAuditRows(status, count)
	}
}

// Encode serializes rows as a Parquet file.
func Encode(rows []BatchAudit, compression string) ([]byte, error) {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[BatchAudit](
		&buf,
		compressionCodec(compression),
		parquet.CreatedBy("kafeventavro", "1.0", "0"),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write audit rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close audit writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads rows back from a Parquet file.
func Decode(data []byte) ([]BatchAudit, error) {
	rows, err := parquet.Read[BatchAudit](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read audit rows: %w", err)
	}
	return rows, nil
}

func compressionCodec(compression string) parquet.WriterOption {
	switch strings.ToLower(compression) {
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}
