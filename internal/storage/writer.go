package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/compress"
	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/event"
	"github.com/jittakal/kafeventavro/pkg/storage"
)

// ContentTypeAvro is the content type of stored containers.
const ContentTypeAvro = "application/avro"

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(topic string, partition int32, format string, status string)
	ObserveFileSize(topic string, partition int32, format string, size float64)
	ObserveStorageWriteDuration(topic string, partition int32, duration float64)
	IncStorageErrors(backend string, operation string)
}

// Writer stores output units as container objects laid out by a Router.
// Object names are batch_<YYYYMMDD_HHMMSS>_<uuid><ext><compression ext>.
type Writer struct {
	store     storage.ObjectStore
	router    storage.Router
	codec     compress.Codec
	extension string
	logger    *zap.Logger
	metrics   MetricsCollector
	now       func() time.Time
	newID     func() string
}

// NewWriter creates a Writer. extension is the container file extension,
// such as ".avro".
func NewWriter(
	store storage.ObjectStore,
	router storage.Router,
	codec compress.Codec,
	extension string,
	logger *zap.Logger,
	metrics MetricsCollector,
) *Writer {
	if codec == nil {
		codec = compress.NewNoOpCodec()
	}
	return &Writer{
		store:     store,
		router:    router,
		codec:     codec,
		extension: extension,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Location returns a fresh object location for unit.
func (w *Writer) Location(unit *event.Event) string {
	now := w.now()
	ts := unit.Time()
	if ts.IsZero() {
		ts = now
	}

	dir := w.router.Route(unit.PartitionID(), ts.Unix())
	name := fmt.Sprintf("batch_%s_%s%s%s",
		now.UTC().Format("20060102_150405"),
		w.newID(),
		w.extension,
		w.codec.Extension(),
	)
	return dir + name
}

// Write compresses the unit body and stores it. It returns the object
// location and the number of bytes stored.
func (w *Writer) Write(ctx context.Context, unit *event.Event) (string, int64, error) {
	startTime := time.Now()
	topic, partition := unit.Kafka.Topic, unit.Kafka.Partition
	location := w.Location(unit)

	data, err := w.codec.Compress(unit.Body)
	if err != nil {
		w.recordError(topic, partition, "compress")
		return "", 0, &apperrors.StorageError{Operation: "compress", Path: location, Err: err}
	}

	if err := w.store.Put(ctx, location, data, ContentTypeAvro); err != nil {
		w.recordError(topic, partition, "upload")
		return "", 0, &apperrors.StorageError{Operation: "upload", Path: location, Err: err}
	}

	duration := time.Since(startTime)
	size := int64(len(data))

	w.logger.Info("wrote container to storage",
		zap.String("backend", w.store.Backend()),
		zap.String("location", location),
		zap.Int("container_size", len(unit.Body)),
		zap.Int64("file_size", size),
		zap.String("compression", w.codec.Name()),
		zap.Int64("total_duration_ms", duration.Milliseconds()),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(topic, partition, "avro", "success")
		w.metrics.ObserveFileSize(topic, partition, "avro", float64(size))
		w.metrics.ObserveStorageWriteDuration(topic, partition, duration.Seconds())
	}

	return location, size, nil
}

// Deliver stores unit and returns its location.
func (w *Writer) Deliver(ctx context.Context, unit *event.Event) (string, error) {
	location, _, err := w.Write(ctx, unit)
	return location, err
}

// Close closes the underlying store.
func (w *Writer) Close() error {
	return w.store.Close()
}

func (w *Writer) recordError(topic string, partition int32, operation string) {
	if w.metrics == nil {
		return
	}
	w.metrics.IncFilesWritten(topic, partition, "avro", "failure")
	w.metrics.IncStorageErrors(w.store.Backend(), operation)
}
