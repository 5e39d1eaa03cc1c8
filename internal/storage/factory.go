package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/cloud"
	"github.com/jittakal/kafeventavro/pkg/storage"
)

// StoreConfig selects and configures one object store backend.
type StoreConfig struct {
	// Protocol is one of file, s3, gs or wasbs.
	Protocol string
	File     FileConfig
	S3       S3Config
	GCS      GCSStoreConfig
	Azure    AzureStoreConfig
}

// GCSStoreConfig contains the GCS bucket and client settings.
type GCSStoreConfig struct {
	Bucket string
	Client cloud.GCSConfig
}

// AzureStoreConfig contains the Azure container and account settings.
type AzureStoreConfig struct {
	ContainerName string
	Account       cloud.AzureConfig
}

// Bucket returns the bucket or container name of the selected backend.
func (c StoreConfig) Bucket() string {
	switch c.Protocol {
	case "s3":
		return c.S3.Bucket
	case "gs":
		return c.GCS.Bucket
	case "wasbs":
		return c.Azure.ContainerName
	default:
		return ""
	}
}

// NewStore creates the object store selected by cfg.Protocol.
func NewStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (storage.ObjectStore, error) {
	switch cfg.Protocol {
	case "file", "":
		return NewFileStore(cfg.File, logger)

	case "s3":
		if err := cfg.S3.Validate(); err != nil {
			return nil, err
		}
		client, err := cloud.NewS3Client(ctx, cloud.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return NewS3Store(cfg.S3, client, logger)

	case "gs":
		client, err := cloud.NewGCSClient(ctx, cfg.GCS.Client, logger)
		if err != nil {
			return nil, err
		}
		return NewGCSStore(cfg.GCS.Bucket, client, logger)

	case "wasbs":
		client, err := cloud.NewAzureClient(cfg.Azure.Account)
		if err != nil {
			return nil, err
		}
		return NewAzureStore(cfg.Azure.ContainerName, client, logger)

	default:
		return nil, fmt.Errorf("unsupported storage protocol: %s (supported: file, s3, gs, wasbs)", cfg.Protocol)
	}
}
