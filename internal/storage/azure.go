package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.ObjectStore = (*AzureStore)(nil)

// AzureUploader is the subset of the azblob client used by AzureStore.
type AzureUploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureStore implements storage.ObjectStore for Azure Blob Storage.
type AzureStore struct {
	client        AzureUploader
	containerName string
	logger        *zap.Logger
}

// NewAzureStore creates a new Azure Blob store writing into containerName.
func NewAzureStore(containerName string, client AzureUploader, logger *zap.Logger) (*AzureStore, error) {
	if containerName == "" {
		return nil, fmt.Errorf("azure container name is required")
	}

	logger.Info("Azure store created", zap.String("container", containerName))

	return &AzureStore{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// Put uploads data as one block blob.
func (s *AzureStore) Put(ctx context.Context, location string, data []byte, contentType string) error {
	blobPath := objectKey(location)

	var opts *azblob.UploadBufferOptions
	if contentType != "" {
		opts = &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		}
	}

	if _, err := s.client.UploadBuffer(ctx, s.containerName, blobPath, data, opts); err != nil {
		return fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	s.logger.Debug("uploaded blob to Azure",
		zap.String("container", s.containerName),
		zap.String("blob", blobPath),
	)
	return nil
}

// Backend returns "azure".
func (s *AzureStore) Backend() string { return "azure" }

// Close closes the Azure store.
func (s *AzureStore) Close() error {
	s.logger.Info("Azure store closed")
	return nil
}
