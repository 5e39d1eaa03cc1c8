package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const defaultMSKRegion = "us-east-1"

// SecurityConfig contains broker authentication and transport settings
// shared by the consumer and the producers.
type SecurityConfig struct {
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	// Region signs AWS MSK IAM tokens.
	Region string
	TLS    TLSConfig
}

// TLSConfig contains certificate settings for SSL and SASL_SSL.
type TLSConfig struct {
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
}

// ProducerConfig contains settings shared by the DLQ and output producers.
type ProducerConfig struct {
	BootstrapServers []string
	Security         SecurityConfig
	// Compression is one of none, gzip, snappy, lz4 or zstd.
	Compression string
	// MaxMessageBytes bounds a produced message. Containers of large
	// batches need more than the sarama default.
	MaxMessageBytes int
	RetryMax        int
}

// newProducerConfig builds an idempotent, acks=all sarama configuration.
func newProducerConfig(cfg ProducerConfig, logger *zap.Logger) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = parseCompressionType(cfg.Compression)
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Net.MaxOpenRequests = 1

	if cfg.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = cfg.RetryMax
	}
	if cfg.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}

	if err := configureSecurity(saramaConfig, cfg.Security, logger); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	return saramaConfig, nil
}

// configureSecurity configures SASL and TLS settings.
func configureSecurity(config *sarama.Config, sec SecurityConfig, logger *zap.Logger) error {
	switch sec.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT":
		return configureSASL(config, sec, logger)

	case "SASL_SSL":
		if err := configureSASL(config, sec, logger); err != nil {
			return err
		}
		return configureTLS(config, sec.TLS, logger)

	case "SSL":
		return configureTLS(config, sec.TLS, logger)

	default:
		return fmt.Errorf("unsupported security protocol: %s", sec.SecurityProtocol)
	}
}

// configureSASL configures SASL authentication.
func configureSASL(config *sarama.Config, sec SecurityConfig, logger *zap.Logger) error {
	config.Net.SASL.Enable = true

	switch sec.SASLMechanism {
	case "PLAIN":
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = sec.SASLUsername
		config.Net.SASL.Password = sec.SASLPassword

	case "SCRAM-SHA-256":
		config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		config.Net.SASL.User = sec.SASLUsername
		config.Net.SASL.Password = sec.SASLPassword
		config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
		}

	case "SCRAM-SHA-512":
		config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		config.Net.SASL.User = sec.SASLUsername
		config.Net.SASL.Password = sec.SASLPassword
		config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
		}

	case "AWS_MSK_IAM":
		region := sec.Region
		if region == "" {
			region = defaultMSKRegion
			logger.Warn("no region configured for MSK IAM, using default", zap.String("region", region))
		}
		config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
		config.Net.SASL.TokenProvider = newMskTokenProvider(region)

	default:
		return fmt.Errorf("unsupported SASL mechanism: %s", sec.SASLMechanism)
	}

	logger.Info("configured SASL authentication", zap.String("mechanism", sec.SASLMechanism))
	return nil
}

// configureTLS configures TLS settings.
func configureTLS(config *sarama.Config, cfg TLSConfig, logger *zap.Logger) error {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to parse CA certificate %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
		logger.Info("loaded CA certificate", zap.String("file", cfg.CACertFile))
	}

	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		logger.Info("loaded client certificate", zap.String("cert_file", cfg.ClientCertFile))
	}

	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification is disabled")
	}

	config.Net.TLS.Enable = true
	config.Net.TLS.Config = tlsConfig
	return nil
}

// parseCompressionType parses a compression type string.
func parseCompressionType(compressionType string) sarama.CompressionCodec {
	switch compressionType {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}
