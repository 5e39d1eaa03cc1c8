package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUploader struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	return &manager.UploadOutput{Location: "https://" + aws.ToString(input.Bucket) + "/" + aws.ToString(input.Key)}, nil
}

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  S3Config
		wantErr bool
	}{
		{name: "valid config", config: S3Config{Bucket: "test-bucket", Region: "us-east-1"}},
		{name: "empty bucket", config: S3Config{Region: "us-east-1"}, wantErr: true},
		{name: "empty region", config: S3Config{Bucket: "test-bucket"}, wantErr: true},
		{name: "with endpoint", config: S3Config{Bucket: "b", Region: "us-east-1", Endpoint: "http://localhost:9000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestS3Store_Put(t *testing.T) {
	tests := []struct {
		name    string
		config  S3Config
		wantSSE types.ServerSideEncryption
		wantKMS string
	}{
		{
			name:   "no encryption",
			config: S3Config{Bucket: "lake", Region: "us-east-1"},
		},
		{
			name:    "sse aes256",
			config:  S3Config{Bucket: "lake", Region: "us-east-1", SSEEnabled: true},
			wantSSE: types.ServerSideEncryptionAes256,
		},
		{
			name:    "sse kms",
			config:  S3Config{Bucket: "lake", Region: "us-east-1", SSEEnabled: true, SSEKMSKeyID: "arn:aws:kms:key"},
			wantSSE: types.ServerSideEncryptionAwsKms,
			wantKMS: "arn:aws:kms:key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &fakeUploader{}
			store := NewS3StoreWithUploader(tt.config, uploader, zap.NewNop())

			err := store.Put(context.Background(), "s3://lake/raw/gps/dt=2025-12-18/pid=1/batch_x.avro", []byte("data"), ContentTypeAvro)
			require.NoError(t, err)

			require.Len(t, uploader.inputs, 1)
			in := uploader.inputs[0]
			assert.Equal(t, "lake", aws.ToString(in.Bucket))
			assert.Equal(t, "raw/gps/dt=2025-12-18/pid=1/batch_x.avro", aws.ToString(in.Key))
			assert.Equal(t, ContentTypeAvro, aws.ToString(in.ContentType))
			assert.Equal(t, tt.wantSSE, in.ServerSideEncryption)
			assert.Equal(t, tt.wantKMS, aws.ToString(in.SSEKMSKeyId))
			assert.Equal(t, []byte("data"), uploader.bodies[0])
		})
	}
}

func TestS3Store_PutError(t *testing.T) {
	boom := errors.New("access denied")
	store := NewS3StoreWithUploader(S3Config{Bucket: "lake"}, &fakeUploader{err: boom}, zap.NewNop())

	err := store.Put(context.Background(), "s3://lake/key.avro", []byte("x"), "")
	assert.ErrorIs(t, err, boom)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"s3://bucket/a/b.avro", "a/b.avro"},
		{"gs://bucket/a/b.avro", "a/b.avro"},
		{"wasbs://container@account.blob.core.windows.net/a/b.avro", "a/b.avro"},
		{"/a/b.avro", "a/b.avro"},
		{"a/b.avro", "a/b.avro"},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, objectKey(tt.location))
		})
	}
}
