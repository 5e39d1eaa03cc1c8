package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/audit"
	"github.com/jittakal/kafeventavro/internal/buffer"
	"github.com/jittakal/kafeventavro/internal/cloud"
	"github.com/jittakal/kafeventavro/internal/collapse"
	"github.com/jittakal/kafeventavro/internal/compress"
	"github.com/jittakal/kafeventavro/internal/config"
	"github.com/jittakal/kafeventavro/internal/config/dto"
	"github.com/jittakal/kafeventavro/internal/encoder"
	"github.com/jittakal/kafeventavro/internal/kafka"
	"github.com/jittakal/kafeventavro/internal/observability"
	"github.com/jittakal/kafeventavro/internal/pipeline"
	"github.com/jittakal/kafeventavro/internal/schema"
	"github.com/jittakal/kafeventavro/internal/server"
	"github.com/jittakal/kafeventavro/internal/storage"
	"github.com/jittakal/kafeventavro/internal/validator"
	pkgstorage "github.com/jittakal/kafeventavro/pkg/storage"
)

// Health components.
const (
	componentKafka    = "kafka"
	componentPipeline = "pipeline"
)

type cleanup struct {
	name string
	fn   func() error
}

// serve runs the consumer pipeline until ctx is cancelled or the consumer
// stops, then flushes every buffer and releases components in reverse order.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting kafeventavro",
		zap.String("version", cfg.Application.Version),
		zap.String("build", version),
		zap.String("environment", cfg.Application.Environment),
		zap.String("sink", cfg.Output.Sink),
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	status := server.NewStatus(componentKafka, componentPipeline)

	var cleanups []cleanup
	addCleanup := func(name string, fn func() error) {
		cleanups = append(cleanups, cleanup{name: name, fn: fn})
		logger.Debug("registered cleanup", zap.String("component", name))
	}
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i].fn(); cerr != nil {
				logger.Error("cleanup failed", zap.String("component", cleanups[i].name), zap.Error(cerr))
			}
		}
		logger.Info("application stopped")
	}()

	security := securityConfig(cfg.Kafka)
	producerCfg := kafka.ProducerConfig{
		BootstrapServers: cfg.Kafka.BootstrapServers,
		Security:         security,
		Compression:      cfg.Kafka.Producer.Compression,
		MaxMessageBytes:  cfg.Kafka.Producer.MaxMessageBytes,
		RetryMax:         cfg.Kafka.Producer.RetryMax,
	}

	consumer, err := kafka.NewSaramaConsumer(kafka.ConsumerConfig{
		SecurityConfig:      security,
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		GroupID:             cfg.Kafka.Consumer.GroupID,
		AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
		EnableAutoCommit:    cfg.Kafka.Consumer.EnableAutoCommit,
		MaxPollIntervalMS:   cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
		CloudEvents:         cfg.Kafka.Consumer.CloudEvents,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", consumer.Close)

	dlq, err := kafka.NewDLQPublisher(producerCfg, kafka.DLQConfig{
		Enabled:     cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
		MaxRetries:  cfg.Kafka.DLQ.MaxRetries,
	}, logger, metrics, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlq.Close)

	loader, err := newSchemaLoader(ctx, cfg.Schema, logger, addCleanup)
	if err != nil {
		return err
	}
	cache := schema.NewCache(loader, logger, metrics)

	enc, err := encoder.NewAvroEncoder(encoder.AvroConfig{
		Codec:       cfg.Avro.Codec,
		BlockLength: cfg.Avro.BlockLength,
	})
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	opts := []collapse.Option{collapse.WithLogger(logger), collapse.WithMetrics(metrics)}
	if collapse.FailurePolicy(cfg.Collapse.FailurePolicy) == collapse.PolicySkip {
		opts = append(opts, collapse.WithRejecter(dlq))
	}
	collapser, err := collapse.New(collapse.Config{
		EnvelopeKey:    cfg.Collapse.EnvelopeKey,
		LocatorHeader:  cfg.Schema.LocatorHeader,
		DefaultLocator: cfg.Schema.DefaultLocator,
		FailurePolicy:  collapse.FailurePolicy(cfg.Collapse.FailurePolicy),
	}, cache, enc, opts...)
	if err != nil {
		return fmt.Errorf("failed to create collapser: %w", err)
	}

	var store pkgstorage.ObjectStore
	if cfg.Output.Sink == "storage" || cfg.Audit.Enabled {
		store, err = newStore(ctx, cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("failed to create %s store: %w", cfg.Storage.Backend, err)
		}
	}

	var sink pipeline.Sink
	switch cfg.Output.Sink {
	case "kafka":
		publisher, err := kafka.NewPublisher(producerCfg, kafka.PublisherConfig{
			Topic:       cfg.Output.Topic,
			TopicSuffix: cfg.Output.TopicSuffix,
			EventType:   cfg.Output.EventType,
			EventSource: cfg.Output.EventSource,
		}, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to create output publisher: %w", err)
		}
		addCleanup("output-publisher", publisher.Close)
		if store != nil {
			addCleanup("object-store", store.Close)
		}
		sink = publisher
	default:
		codec, err := compress.GetCodec(cfg.Storage.Compression)
		if err != nil {
			return err
		}
		router := storage.NewRouter(cfg.Storage.Protocol(), cfg.Storage.Bucket(), cfg.Storage.BasePath())
		writer := storage.NewWriter(store, router, codec, enc.FileExtension(), logger, metrics)
		addCleanup("storage-writer", writer.Close)
		sink = writer
	}

	components := pipeline.Components{
		Validator: validator.New(cfg.Kafka.Consumer.CloudEvents),
		Buffers:   buffer.NewManager(int64(cfg.Processing.BufferSizeMB)*1024*1024, cfg.FileRotation.MaxRecordsPerFile),
		Policy: storage.NewPolicy(storage.PolicyConfig{
			MaxSizeMB:          cfg.FileRotation.MaxFileSizeMB,
			MaxRecords:         cfg.FileRotation.MaxRecordsPerFile,
			MaxDurationSeconds: cfg.FileRotation.MaxDurationSeconds,
		}),
		Collapser: collapser,
		Sink:      sink,
		DLQ:       dlq,
	}
	if cfg.Audit.Enabled {
		auditLog := audit.New(store, audit.Config{
			Path:        cfg.Audit.Path,
			Compression: cfg.Audit.Compression,
			MaxRows:     cfg.Audit.MaxRows,
		}, logger, metrics)
		addCleanup("audit-log", func() error { return auditLog.Close(context.Background()) })
		components.Audit = auditLog
	}

	p, err := pipeline.New(pipeline.Config{FlushSchedule: cfg.FileRotation.FlushSchedule}, components, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	httpServer := server.NewServer(server.Config{
		HealthPort:    cfg.Observability.Health.Port,
		MetricsPort:   cfg.Observability.Metrics.Port,
		LivenessPath:  cfg.Observability.Health.LivenessPath,
		ReadinessPath: cfg.Observability.Health.ReadinessPath,
		MetricsPath:   cfg.Observability.Metrics.Path,
	}, status, registry, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.GracePeriodSeconds)*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := consumer.Subscribe(ctx, cfg.Kafka.Consumer.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	events, errs, err := consumer.Consume(ctx)
	if err != nil {
		status.SetFailed(componentKafka)
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	status.SetReady(componentKafka, true)
	status.SetReady(componentPipeline, true)
	logger.Info("application started", zap.Strings("topics", cfg.Kafka.Consumer.Topics))

	if err := p.Run(ctx, events, errs); err != nil {
		status.SetFailed(componentPipeline)
		return fmt.Errorf("pipeline stopped: %w", err)
	}
	status.SetReady(componentPipeline, false)
	logger.Info("initiating graceful shutdown")
	return nil
}

func securityConfig(cfg dto.KafkaConfig) kafka.SecurityConfig {
	return kafka.SecurityConfig{
		SecurityProtocol: cfg.SecurityProtocol,
		SASLMechanism:    cfg.SASLMechanism,
		SASLUsername:     cfg.SASLUsername,
		SASLPassword:     cfg.SASLPassword,
		Region:           cfg.Region,
		TLS: kafka.TLSConfig{
			CACertFile:         cfg.TLS.CACertFile,
			ClientCertFile:     cfg.TLS.ClientCertFile,
			ClientKeyFile:      cfg.TLS.ClientKeyFile,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	}
}

// newSchemaLoader registers the object store schemes enabled in cfg on top
// of the built-in file and http(s) loaders.
func newSchemaLoader(
	ctx context.Context,
	cfg dto.SchemaConfig,
	logger *zap.Logger,
	addCleanup func(name string, fn func() error),
) (*schema.MultiLoader, error) {
	loader := schema.NewMultiLoader(time.Duration(cfg.HTTPTimeoutSeconds) * time.Second)

	if cfg.S3.Enabled {
		client, err := cloud.NewS3Client(ctx, cloud.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create schema S3 client: %w", err)
		}
		loader.Register("s3", schema.NewS3Loader(client))
	}

	if cfg.GCS.Enabled {
		client, err := cloud.NewGCSClient(ctx, cloud.GCSConfig{
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create schema GCS client: %w", err)
		}
		addCleanup("schema-gcs-client", client.Close)
		loader.Register("gs", schema.NewGCSLoader(client))
	}

	if cfg.Azure.Enabled {
		client, err := cloud.NewAzureClient(cloud.AzureConfig{
			AccountName: cfg.Azure.AccountName,
			AccountKey:  cfg.Azure.AccountKey,
			Endpoint:    cfg.Azure.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create schema Azure client: %w", err)
		}
		azureLoader := schema.NewAzureLoader(client)
		loader.Register("wasbs", azureLoader)
		loader.Register("azblob", azureLoader)
	}

	logger.Info("schema loader ready",
		zap.Strings("schemes", loader.Schemes()),
		zap.String("default_locator", cfg.DefaultLocator),
	)
	return loader, nil
}

func newStore(ctx context.Context, cfg dto.StorageConfig, logger *zap.Logger) (pkgstorage.ObjectStore, error) {
	return storage.NewStore(ctx, storage.StoreConfig{
		Protocol: cfg.Protocol(),
		File:     storage.FileConfig{BasePath: cfg.File.BasePath},
		S3: storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		},
		GCS: storage.GCSStoreConfig{
			Bucket: cfg.GCS.Bucket,
			Client: cloud.GCSConfig{
				ProjectID:            cfg.GCS.ProjectID,
				CredentialsFile:      cfg.GCS.CredentialsFile,
				CredentialsJSON:      cfg.GCS.CredentialsJSON,
				UseDefaultCredential: cfg.GCS.UseDefaultCredential,
			},
		},
		Azure: storage.AzureStoreConfig{
			ContainerName: cfg.Azure.Container,
			Account: cloud.AzureConfig{
				AccountName: cfg.Azure.AccountName,
				AccountKey:  cfg.Azure.AccountKey,
				Endpoint:    cfg.Azure.Endpoint,
			},
		},
	}, logger)
}
