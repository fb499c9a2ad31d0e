package s3client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PutListRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := TestClient(t, "evidence")

	require.NoError(t, c.PutObject(ctx, "run-1/quote/b.png", []byte("b"), "image/png"))
	require.NoError(t, c.PutObject(ctx, "run-1/quote/a.png", []byte("a"), "image/png"))
	require.NoError(t, c.PutObject(ctx, "run-2/inbox/c.png", []byte("c"), "image/png"))

	assert.Equal(t, []byte("a"), ReadObject(t, c, "run-1/quote/a.png"))

	keys, err := c.ListKeys(ctx, "run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/quote/a.png", "run-1/quote/b.png"}, keys)
}

func TestClient_ListEmptyPrefix(t *testing.T) {
	t.Parallel()
	keys, err := TestClient(t, "evidence").ListKeys(context.Background(), "run-none/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClient_Location(t *testing.T) {
	t.Parallel()
	c := NewFromS3Client(nil, "bucket", "https://s3.example.com/")
	assert.Equal(t, "https://s3.example.com/bucket/run/x.png", c.Location("/run/x.png"))
	assert.Equal(t, "s3://bucket/run/x.png", NewFromS3Client(nil, "bucket", "").Location("run/x.png"))
	assert.Equal(t, "bucket", c.BucketName())
}

func TestNew_RequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestEnsureBucket_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := New(ctx, TestConfig(TestServer(t), "fresh"))
	require.NoError(t, err)

	require.NoError(t, c.EnsureBucket(ctx))
	require.NoError(t, c.EnsureBucket(ctx))
	require.NoError(t, c.PutObject(ctx, "k", []byte("v"), "text/plain"))
	assert.NotEmpty(t, c.Endpoint())
}
