package schema

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jittakal/kafeventavro/internal/cloud"
)

// maxSchemaSize bounds schema documents read from object storage.
const maxSchemaSize = 4 << 20

// S3API is the subset of the S3 client used to read schemas.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads s3://bucket/key schemas.
type S3Loader struct {
	client S3API
}

// NewS3Loader creates an S3Loader.
func NewS3Loader(client S3API) *S3Loader {
	return &S3Loader{client: client}
}

// Load downloads the object.
func (l *S3Loader) Load(ctx context.Context, locator string) ([]byte, error) {
	uri, err := cloud.ParseObjectURI(locator)
	if err != nil {
		return nil, err
	}

	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(uri.Bucket),
		Key:    aws.String(uri.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", uri, err)
	}
	defer out.Body.Close()

	return readLimited(out.Body)
}

// GCSLoader reads gs://bucket/object schemas.
type GCSLoader struct {
	client *storage.Client
}

// NewGCSLoader creates a GCSLoader.
func NewGCSLoader(client *storage.Client) *GCSLoader {
	return &GCSLoader{client: client}
}

// Load downloads the object.
func (l *GCSLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	uri, err := cloud.ParseObjectURI(locator)
	if err != nil {
		return nil, err
	}

	r, err := l.client.Bucket(uri.Bucket).Object(uri.Key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gcs object %s: %w", uri, err)
	}
	defer r.Close()

	return readLimited(r)
}

// AzureLoader reads wasbs://container/blob schemas.
type AzureLoader struct {
	client *azblob.Client
}

// NewAzureLoader creates an AzureLoader.
func NewAzureLoader(client *azblob.Client) *AzureLoader {
	return &AzureLoader{client: client}
}

// Load downloads the blob.
func (l *AzureLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	uri, err := cloud.ParseObjectURI(locator)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.DownloadStream(ctx, uri.Bucket, uri.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download azure blob %s: %w", uri, err)
	}
	defer resp.Body.Close()

	return readLimited(resp.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSchemaSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema object: %w", err)
	}
	if len(data) > maxSchemaSize {
		return nil, fmt.Errorf("schema object exceeds %d bytes", maxSchemaSize)
	}
	return data, nil
}
