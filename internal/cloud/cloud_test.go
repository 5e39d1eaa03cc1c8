package cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    ObjectURI
		wantErr bool
	}{
		{
			name: "s3",
			uri:  "s3://schemas/gps/v1/gpsrecord.avsc",
			want: ObjectURI{Scheme: "s3", Bucket: "schemas", Key: "gps/v1/gpsrecord.avsc"},
		},
		{
			name: "gcs",
			uri:  "gs://bucket/gpsrecord.avsc",
			want: ObjectURI{Scheme: "gs", Bucket: "bucket", Key: "gpsrecord.avsc"},
		},
		{
			name: "azure short form",
			uri:  "wasbs://schemas/gpsrecord.avsc",
			want: ObjectURI{Scheme: "wasbs", Bucket: "schemas", Key: "gpsrecord.avsc"},
		},
		{
			name: "azure account form",
			uri:  "wasbs://schemas@acct.blob.core.windows.net/gps/gpsrecord.avsc",
			want: ObjectURI{Scheme: "wasbs", Bucket: "schemas", Key: "gps/gpsrecord.avsc"},
		},
		{name: "upper case scheme", uri: "S3://b/k", want: ObjectURI{Scheme: "s3", Bucket: "b", Key: "k"}},
		{name: "no key", uri: "s3://bucket/", wantErr: true},
		{name: "no bucket", uri: "s3:///key", wantErr: true},
		{name: "plain path", uri: "/etc/schemas/gps.avsc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObjectURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectURI_String(t *testing.T) {
	u := ObjectURI{Scheme: "gs", Bucket: "b", Key: "a/b.avsc"}
	assert.Equal(t, "gs://b/a/b.avsc", u.String())
}

func TestAzureConfig_ConnectionString(t *testing.T) {
	cfg := AzureConfig{AccountName: "acct", AccountKey: "a2V5"}
	assert.Contains(t, cfg.ConnectionString(), "EndpointSuffix=core.windows.net")

	cfg.Endpoint = "http://127.0.0.1:10000/acct"
	assert.Contains(t, cfg.ConnectionString(), "BlobEndpoint=http://127.0.0.1:10000/acct")
	assert.Contains(t, cfg.ConnectionString(), "AccountName=acct")
}
