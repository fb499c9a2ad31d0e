package s3client

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestServer starts an in-memory S3 endpoint and returns its URL. The
// server stops when the test ends.
func TestServer(t testing.TB) string {
	t.Helper()
	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)
	return ts.URL
}

// TestConfig returns settings for bucketName on endpoint with static
// test credentials.
func TestConfig(endpoint, bucketName string) Config {
	return Config{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucketName,
		UsePathStyle:    true,
	}
}

// TestClient returns a client for bucketName on a fresh TestServer with the
// bucket already created.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, TestConfig(TestServer(t), bucketName))
	if err != nil {
		t.Fatalf("new test client: %v", err)
	}
	if err := c.EnsureBucket(ctx); err != nil {
		t.Fatalf("create test bucket: %v", err)
	}
	return c
}

// ReadObject returns the content stored under key, failing the test when it
// cannot be read.
func ReadObject(t testing.TB, c *Client, key string) []byte {
	t.Helper()
	result, err := c.s3Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		t.Fatalf("get object %q: %v", key, err)
	}
	defer result.Body.Close()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		t.Fatalf("read object %q: %v", key, err)
	}
	return data
}
