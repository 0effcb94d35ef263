package s3blob

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"minio.local:9000", false, "http://minio.local:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, normaliseEndpoint(tt.endpoint, tt.useSSL))
		})
	}
}

type statusErr int

func (s statusErr) Error() string       { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("op: %w", statusErr(404))))
	assert.False(t, isNotFound(statusErr(403)))
	assert.False(t, isNotFound(errors.New("connection reset")))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	_, err = New(context.Background(), ClientConfig{Bucket: "snapshots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}

func TestNewBuildsClient(t *testing.T) {
	c, err := New(context.Background(), ClientConfig{
		Endpoint:       "localhost:9000",
		Region:         "us-east-1",
		Bucket:         "snapshots",
		AccessKey:      "key",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "snapshots", c.Bucket())
	assert.NotNil(t, NewObjects(c))
}
