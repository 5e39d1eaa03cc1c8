package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	pkgstorage "github.com/jittakal/kafeventavro/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.ObjectStore = (*GCSStore)(nil)

// GCSStore implements storage.ObjectStore for Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSStore creates a new Google Cloud Storage store on top of client.
func NewGCSStore(bucket string, client *storage.Client, logger *zap.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	logger.Info("GCS store created", zap.String("bucket", bucket))

	return &GCSStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Put writes data as one object.
func (s *GCSStore) Put(ctx context.Context, location string, data []byte, contentType string) error {
	objectPath := objectKey(location)

	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}

	s.logger.Debug("uploaded object to GCS",
		zap.String("bucket", s.bucket),
		zap.String("object", objectPath),
	)
	return nil
}

// Backend returns "gcs".
func (s *GCSStore) Backend() string { return "gcs" }

// Close closes the GCS store and its client.
func (s *GCSStore) Close() error {
	s.logger.Info("closing GCS store")
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
