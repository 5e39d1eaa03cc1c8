package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/internal/cloud"
	"github.com/jittakal/kafeventavro/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.ObjectStore = (*S3Store)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate checks the required settings.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// S3Uploader is the subset of the S3 upload manager used by S3Store.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store implements storage.ObjectStore for AWS S3 with multipart upload
// and server-side encryption support.
type S3Store struct {
	uploader    S3Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *zap.Logger
}

// NewS3Store creates a new S3 store on top of client.
func NewS3Store(cfg S3Config, client *s3.Client, logger *zap.Logger) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	logger.Info("S3 store created",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.Bool("sse_enabled", cfg.SSEEnabled),
	)

	return NewS3StoreWithUploader(cfg, uploader, logger), nil
}

// NewS3StoreWithUploader creates an S3 store using an existing uploader.
func NewS3StoreWithUploader(cfg S3Config, uploader S3Uploader, logger *zap.Logger) *S3Store {
	return &S3Store{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
	}
}

// Put uploads data to the configured bucket.
func (s *S3Store) Put(ctx context.Context, location string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(location)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if s.sseEnabled {
		if s.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(s.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Debug("uploaded object to S3",
		zap.String("bucket", s.bucket),
		zap.String("key", aws.ToString(input.Key)),
		zap.String("location", result.Location),
	)
	return nil
}

// Backend returns "s3".
func (s *S3Store) Backend() string { return "s3" }

// Close closes the S3 store.
func (s *S3Store) Close() error {
	s.logger.Info("closing S3 store")
	return nil
}

// objectKey strips the protocol and bucket from a location URI.
func objectKey(location string) string {
	if strings.Contains(location, "://") {
		if uri, err := cloud.ParseObjectURI(location); err == nil {
			return uri.Key
		}
	}
	return strings.TrimPrefix(location, "/")
}
