package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed   *prometheus.CounterVec
	ConsumerLag        *prometheus.GaugeVec
	OffsetCommits      *prometheus.CounterVec
	Rebalances         *prometheus.CounterVec
	RebalanceDuration  *prometheus.HistogramVec
	PartitionsAssigned *prometheus.GaugeVec
	CommitLatency      *prometheus.HistogramVec

	// Processing metrics
	EventsProcessed    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	BufferSize         *prometheus.GaugeVec
	BufferRecordCount  *prometheus.GaugeVec

	// Schema metrics
	SchemaResolutions  *prometheus.CounterVec
	SchemaLoadDuration *prometheus.HistogramVec

	// Collapse metrics
	BatchesCollapsed  *prometheus.CounterVec
	RecordsTranscoded *prometheus.CounterVec
	RecordFailures    *prometheus.CounterVec
	CollapseDuration  *prometheus.HistogramVec
	ContainerSize     *prometheus.HistogramVec

	// Output metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec
	UnitsPublished       *prometheus.CounterVec
	DeadLettered         *prometheus.CounterVec
	AuditRows            *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		ConsumerLag: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_consumer_lag",
				Help: "Current consumer lag",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),
		RebalanceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_rebalance_duration_seconds",
				Help:    "Duration of consumer group rebalances",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"group"},
		),
		PartitionsAssigned: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kafka_partitions_assigned",
				Help: "Number of partitions currently assigned to this consumer",
			},
			[]string{"topic"},
		),
		CommitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_commit_latency_seconds",
				Help:    "Latency of offset commit operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic", "partition"},
		),

		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_processed_total",
				Help: "Total number of events processed",
			},
			[]string{"topic", "partition", "status"},
		),
		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "processing_duration_seconds",
				Help:    "Duration of event processing operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic", "operation"},
		),
		BufferSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "buffer_size_bytes",
				Help: "Current buffer size in bytes",
			},
			[]string{"topic", "partition"},
		),
		BufferRecordCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "buffer_record_count",
				Help: "Current number of records in buffer",
			},
			[]string{"topic", "partition"},
		),

		SchemaResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resolutions_total",
				Help: "Total number of schema resolution attempts",
			},
			[]string{"scheme", "status"},
		),
		SchemaLoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schema_load_duration_seconds",
				Help:    "Duration of schema load operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scheme"},
		),

		BatchesCollapsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batches_collapsed_total",
				Help: "Total number of batches collapsed into containers",
			},
			[]string{"topic", "status"},
		),
		RecordsTranscoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_transcoded_total",
				Help: "Total number of records written into containers",
			},
			[]string{"topic"},
		),
		RecordFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_failures_total",
				Help: "Total number of records that failed to transcode or encode",
			},
			[]string{"topic", "kind"},
		),
		CollapseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collapse_duration_seconds",
				Help:    "Duration of batch collapse operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		ContainerSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "container_size_bytes",
				Help:    "Size of encoded Avro containers",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"topic"},
		),

		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"topic", "partition", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic", "partition"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"topic", "partition", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
		UnitsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_units_published_total",
				Help: "Total number of containers published to the output topic",
			},
			[]string{"topic", "status"},
		),
		DeadLettered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_dead_lettered_total",
				Help: "Total number of events sent to the dead-letter topic",
			},
			[]string{"topic", "reason"},
		),
		AuditRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_rows_total",
				Help: "Total number of batch audit rows flushed",
			},
			[]string{"status"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// SetConsumerLag sets the consumer lag gauge.
func (m *Metrics) SetConsumerLag(topic string, partition int32, lag float64) {
	m.ConsumerLag.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Set(lag)
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveRebalanceDuration observes rebalance duration.
func (m *Metrics) ObserveRebalanceDuration(groupID string, duration float64) {
	m.RebalanceDuration.WithLabelValues(groupID).Observe(duration)
}

// ObserveCommitLatency observes commit latency.
func (m *Metrics) ObserveCommitLatency(topic string, partition int32, duration float64) {
	m.CommitLatency.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// SetPartitionsAssigned sets partitions assigned gauge.
func (m *Metrics) SetPartitionsAssigned(topic string, count float64) {
	m.PartitionsAssigned.WithLabelValues(topic).Set(count)
}

// IncEventsProcessed increments events processed counter.
func (m *Metrics) IncEventsProcessed(topic string, partition int32, status string) {
	m.EventsProcessed.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// ObserveProcessingDuration observes the duration of a pipeline stage.
func (m *Metrics) ObserveProcessingDuration(topic string, operation string, duration float64) {
	m.ProcessingDuration.WithLabelValues(topic, operation).Observe(duration)
}

// SetBufferStats sets the buffer gauges of a partition.
func (m *Metrics) SetBufferStats(topic string, partition int32, records int, size int64) {
	p := fmt.Sprintf("%d", partition)
	m.BufferRecordCount.WithLabelValues(topic, p).Set(float64(records))
	m.BufferSize.WithLabelValues(topic, p).Set(float64(size))
}

// IncSchemaResolutions increments schema resolutions counter.
func (m *Metrics) IncSchemaResolutions(scheme string, status string) {
	m.SchemaResolutions.WithLabelValues(scheme, status).Inc()
}

// ObserveSchemaLoadDuration observes schema load duration.
func (m *Metrics) ObserveSchemaLoadDuration(scheme string, duration float64) {
	m.SchemaLoadDuration.WithLabelValues(scheme).Observe(duration)
}

// IncBatchesCollapsed increments batches collapsed counter.
func (m *Metrics) IncBatchesCollapsed(topic string, status string) {
	m.BatchesCollapsed.WithLabelValues(topic, status).Inc()
}

// IncRecordsTranscoded adds count to the records transcoded counter.
func (m *Metrics) IncRecordsTranscoded(topic string, count int) {
	m.RecordsTranscoded.WithLabelValues(topic).Add(float64(count))
}

// IncRecordFailures increments record failures counter.
func (m *Metrics) IncRecordFailures(topic string, kind string) {
	m.RecordFailures.WithLabelValues(topic, kind).Inc()
}

// ObserveCollapseDuration observes collapse duration.
func (m *Metrics) ObserveCollapseDuration(topic string, duration float64) {
	m.CollapseDuration.WithLabelValues(topic).Observe(duration)
}

// ObserveContainerSize observes container size.
func (m *Metrics) ObserveContainerSize(topic string, size float64) {
	m.ContainerSize.WithLabelValues(topic).Observe(size)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(topic string, partition int32, format string, status string) {
	m.FilesWritten.WithLabelValues(topic, fmt.Sprintf("%d", partition), format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(topic string, partition int32, format string, size float64) {
	m.FileSize.WithLabelValues(topic, fmt.Sprintf("%d", partition), format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(topic string, partition int32, duration float64) {
	m.StorageWriteDuration.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncUnitsPublished increments units published counter.
func (m *Metrics) IncUnitsPublished(topic string, status string) {
	m.UnitsPublished.WithLabelValues(topic, status).Inc()
}

// IncDeadLettered increments dead-lettered counter.
func (m *Metrics) IncDeadLettered(topic string, reason string) {
	m.DeadLettered.WithLabelValues(topic, reason).Inc()
}

// IncAuditRows adds count to the audit rows counter.
func (m *Metrics) IncAuditRows(status string, count int) {
	m.AuditRows.WithLabelValues(status).Add(float64(count))
}
