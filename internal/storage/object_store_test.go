package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knitkart/internal/config"
)

func testStorageConfig(endpoint string) config.StorageConfig {
	return config.StorageConfig{
		Endpoint:      endpoint,
		AccessKey:     "minio",
		SecretKey:     "minio-secret",
		BucketImages:  "knitkart-product-images",
		Region:        "us-east-1",
		PresignExpiry: 10 * time.Minute,
	}
}

func TestNewObjectStoreParsesSchemeFromEndpoint(t *testing.T) {
	store, err := NewObjectStore(testStorageConfig("https://s3.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", store.client.EndpointURL().Host)
	assert.Equal(t, "https", store.client.EndpointURL().Scheme)

	store, err = NewObjectStore(testStorageConfig("localhost:9000"))
	require.NoError(t, err)
	assert.Equal(t, "http", store.client.EndpointURL().Scheme)
	assert.Equal(t, "knitkart-product-images", store.Bucket())
}

func TestPresignedURL(t *testing.T) {
	store, err := NewObjectStore(testStorageConfig("http://localhost:9000"))
	require.NoError(t, err)

	raw, err := store.PresignedURL(context.Background(), "2026/01/01/abc.jpg")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/knitkart-product-images/2026/01/01/abc.jpg", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
