package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafeventavro/internal/compress"
	"github.com/jittakal/kafeventavro/internal/config/dto"
	"github.com/jittakal/kafeventavro/internal/encoder"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only values containing ${...} are expanded
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafeventavro")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "SASL_SSL")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.enable_auto_commit", false)
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.consumer.cloudevents", false)
	l.v.SetDefault("kafka.producer.compression", "none")
	l.v.SetDefault("kafka.producer.retry_max", 5)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")
	l.v.SetDefault("kafka.dlq.max_retries", 3)

	// Schema defaults
	l.v.SetDefault("schema.locator_header", "avro.schema.url")
	l.v.SetDefault("schema.http_timeout_seconds", 10)

	// Avro defaults
	l.v.SetDefault("avro.codec", "deflate")
	l.v.SetDefault("avro.block_length", 100)

	// Collapse defaults
	l.v.SetDefault("collapse.envelope_key", "gpsrecord")
	l.v.SetDefault("collapse.failure_policy", "abort")

	// Rotation defaults
	l.v.SetDefault("file_rotation.max_file_size_mb", 128)
	l.v.SetDefault("file_rotation.max_records_per_file", 100000)
	l.v.SetDefault("file_rotation.max_duration_seconds", 300)
	l.v.SetDefault("file_rotation.flush_schedule", "")

	// Processing defaults
	l.v.SetDefault("processing.buffer_size_mb", 64)

	// Output defaults
	l.v.SetDefault("output.sink", "storage")
	l.v.SetDefault("output.event_type", "com.jittakal.kafeventavro.batch")
	l.v.SetDefault("output.event_source", "kafeventavro")

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.compression", "none")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// Audit defaults
	l.v.SetDefault("audit.enabled", false)
	l.v.SetDefault("audit.path", "_audit")
	l.v.SetDefault("audit.compression", "snappy")
	l.v.SetDefault("audit.max_rows", 1000)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Kafka validation
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	if config.Kafka.DLQ.Enabled && config.Kafka.DLQ.TopicSuffix == "" {
		return errors.New("kafka.dlq.topic_suffix is required when the DLQ is enabled")
	}

	// Core validation
	if _, err := encoder.NormalizeCodec(config.Avro.Codec); err != nil {
		return fmt.Errorf("avro.codec: %w", err)
	}
	if !slices.Contains([]string{"abort", "skip"}, config.Collapse.FailurePolicy) {
		return fmt.Errorf("unsupported collapse failure policy: %s", config.Collapse.FailurePolicy)
	}
	if config.Collapse.FailurePolicy == "skip" && !config.Kafka.DLQ.Enabled {
		return errors.New("collapse.failure_policy skip requires kafka.dlq.enabled")
	}

	// Output validation
	switch config.Output.Sink {
	case "kafka":
		if config.Output.Topic == "" && config.Output.TopicSuffix == "" {
			return errors.New("output.topic or output.topic_suffix is required for kafka sink")
		}
		if config.Audit.Enabled {
			if err := validateStorage(&config.Storage); err != nil {
				return fmt.Errorf("audit log: %w", err)
			}
		}
	case "storage":
		if err := validateStorage(&config.Storage); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output sink: %s", config.Output.Sink)
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}

func validateStorage(cfg *dto.StorageConfig) error {
	switch cfg.Backend {
	case "s3":
		if cfg.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for S3 backend")
		}
		if cfg.S3.Region == "" {
			return errors.New("storage.s3.region is required for S3 backend")
		}
	case "azure":
		if cfg.Azure.AccountName == "" {
			return errors.New("storage.azure.account_name is required for Azure backend")
		}
		if cfg.Azure.Container == "" {
			return errors.New("storage.azure.container is required for Azure backend")
		}
	case "gcs":
		if cfg.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required for GCS backend")
		}
	case "file":
		if cfg.File.BasePath == "" {
			return errors.New("storage.file.base_path is required for file backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}

	if _, err := compress.GetCodec(cfg.Compression); err != nil {
		return fmt.Errorf("storage.compression: %w", err)
	}
	return nil
}
