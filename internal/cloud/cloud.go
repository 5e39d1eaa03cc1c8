// Package cloud builds object storage clients shared by the schema loaders
// and the storage writers, and parses object URIs.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// S3Config contains AWS S3 client configuration.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewS3Client creates an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// GCSConfig contains Google Cloud Storage client configuration.
type GCSConfig struct {
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// NewGCSClient creates a GCS client using the configured credential source.
func NewGCSClient(ctx context.Context, cfg GCSConfig, logger *zap.Logger) (*storage.Client, error) {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", zap.String("file", cfg.CredentialsFile))
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return client, nil
}

// AzureConfig contains Azure Blob Storage client configuration.
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Endpoint    string
}

// ConnectionString returns the shared-key connection string of the account.
func (c AzureConfig) ConnectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// NewAzureClient creates an Azure Blob client from an account key.
func NewAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return client, nil
}

// ObjectURI is a parsed object location: scheme://bucket/key.
type ObjectURI struct {
	Scheme string
	Bucket string
	Key    string
}

// String returns the URI form.
func (u ObjectURI) String() string {
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// ParseObjectURI parses scheme://bucket/key. Azure URIs of the form
// wasbs://container@account.blob.core.windows.net/blob take the container
// from the user part.
func ParseObjectURI(raw string) (ObjectURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectURI{}, fmt.Errorf("invalid object uri %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return ObjectURI{}, fmt.Errorf("invalid object uri %q: scheme and bucket are required", raw)
	}

	bucket := u.Host
	if u.User != nil && u.User.Username() != "" {
		bucket = u.User.Username()
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return ObjectURI{}, fmt.Errorf("invalid object uri %q: object key is required", raw)
	}

	return ObjectURI{Scheme: strings.ToLower(u.Scheme), Bucket: bucket, Key: key}, nil
}
