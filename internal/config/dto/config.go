package dto

import (
	"fmt"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Avro          AvroConfig          `mapstructure:"avro"`
	Collapse      CollapseConfig      `mapstructure:"collapse"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Output        OutputConfig        `mapstructure:"output"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	Region           string         `mapstructure:"region"`
	TLS              TLSConfig      `mapstructure:"tls"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	Producer         ProducerConfig `mapstructure:"producer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
}

// TLSConfig contains client TLS settings for SSL and SASL_SSL
type TLSConfig struct {
	CACertFile         string `mapstructure:"ca_cert_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	EnableAutoCommit    bool     `mapstructure:"enable_auto_commit"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
	CloudEvents         bool     `mapstructure:"cloudevents"`
}

// ProducerConfig contains settings shared by the output and DLQ producers
type ProducerConfig struct {
	Compression     string `mapstructure:"compression"`
	MaxMessageBytes int    `mapstructure:"max_message_bytes"`
	RetryMax        int    `mapstructure:"retry_max"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// SchemaConfig contains schema resolution settings
type SchemaConfig struct {
	DefaultLocator     string            `mapstructure:"default_locator"`
	LocatorHeader      string            `mapstructure:"locator_header"`
	HTTPTimeoutSeconds int               `mapstructure:"http_timeout_seconds"`
	S3                 SchemaS3Config    `mapstructure:"s3"`
	GCS                SchemaGCSConfig   `mapstructure:"gcs"`
	Azure              SchemaAzureConfig `mapstructure:"azure"`
}

// SchemaS3Config enables s3:// schema locators
type SchemaS3Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// SchemaGCSConfig enables gs:// schema locators
type SchemaGCSConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	ProjectID            string `mapstructure:"project_id"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// SchemaAzureConfig enables wasbs:// schema locators
type SchemaAzureConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Endpoint    string `mapstructure:"endpoint"`
}

// AvroConfig contains Avro container settings
type AvroConfig struct {
	Codec       string `mapstructure:"codec"`
	BlockLength int    `mapstructure:"block_length"`
}

// CollapseConfig contains batch collapse settings
type CollapseConfig struct {
	EnvelopeKey   string `mapstructure:"envelope_key"`
	FailurePolicy string `mapstructure:"failure_policy"`
}

// FileRotationConfig contains batch rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB      int64  `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int    `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	FlushSchedule      string `mapstructure:"flush_schedule"`
}

// ProcessingConfig contains processing settings
type ProcessingConfig struct {
	BufferSizeMB int `mapstructure:"buffer_size_mb"`
}

// OutputConfig selects where collapsed containers are delivered
type OutputConfig struct {
	// Sink is storage or kafka.
	Sink        string `mapstructure:"sink"`
	Topic       string `mapstructure:"topic"`
	TopicSuffix string `mapstructure:"topic_suffix"`
	EventType   string `mapstructure:"event_type"`
	EventSource string `mapstructure:"event_source"`
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	BasePath    string `mapstructure:"base_path"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// AuditConfig contains batch audit log settings
type AuditConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Path        string `mapstructure:"path"`
	Compression string `mapstructure:"compression"`
	MaxRows     int    `mapstructure:"max_rows"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if len(c.Kafka.BootstrapServers) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Kafka.Consumer.GroupID == "" {
		return fmt.Errorf("kafka consumer group ID is required")
	}
	if c.Output.Sink == "storage" && c.Storage.Backend == "" {
		return fmt.Errorf("storage backend is required")
	}
	return nil
}

// Protocol returns the location scheme of the storage backend.
func (c *StorageConfig) Protocol() string {
	switch c.Backend {
	case "s3":
		return "s3"
	case "azure":
		return "wasbs"
	case "gcs":
		return "gs"
	default:
		return "file"
	}
}

// Bucket returns the bucket or container of the storage backend. The file
// backend has none.
func (c *StorageConfig) Bucket() string {
	switch c.Backend {
	case "s3":
		return c.S3.Bucket
	case "azure":
		return c.Azure.Container
	case "gcs":
		return c.GCS.Bucket
	default:
		return ""
	}
}

// BasePath returns the key prefix containers are written under. The file
// backend roots its paths at File.BasePath instead.
func (c *StorageConfig) BasePath() string {
	switch c.Backend {
	case "s3":
		return c.S3.BasePath
	case "azure":
		return c.Azure.BasePath
	case "gcs":
		return c.GCS.BasePath
	default:
		return ""
	}
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates GCS configuration.
func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("gcs bucket is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}
