// Package s3client mirrors run evidence to S3-compatible object storage.
// Production runs point it at any S3 endpoint; tests use gofakes3.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Client uploads evidence objects into a single bucket.
type Client struct {
	s3Client   *s3.Client
	bucketName string
	endpoint   string
}

// Config holds the connection settings for the evidence bucket.
type Config struct {
	// Endpoint is the S3 endpoint URL. Empty uses AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// UsePathStyle is required by gofakes3 and most self-hosted stores.
	UsePathStyle bool
}

// New creates a client from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("s3client: bucket name is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewFromS3Client(s3Client, cfg.BucketName, cfg.Endpoint), nil
}

// NewFromS3Client wraps an existing SDK client.
func NewFromS3Client(s3Client *s3.Client, bucketName, endpoint string) *Client {
	return &Client{
		s3Client:   s3Client,
		bucketName: bucketName,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
	}
}

// PutObject stores content under key. Evidence is private to the bucket.
func (c *Client) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3client: put object %q: %w", key, err)
	}
	return nil
}

// ListKeys returns every key under prefix in lexical order.
func (c *Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucketName),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3client: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Location describes where key lives, for logs and reports.
func (c *Client) Location(key string) string {
	key = strings.TrimPrefix(key, "/")
	if c.endpoint == "" {
		return "s3://" + c.bucketName + "/" + key
	}
	return c.endpoint + "/" + c.bucketName + "/" + key
}

// BucketName returns the configured bucket name.
func (c *Client) BucketName() string {
	return c.bucketName
}

// Endpoint returns the configured endpoint URL, empty for AWS S3.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucketName)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("s3client: head bucket %q: %w", c.bucketName, err)
	}
	if _, err := c.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucketName)}); err != nil {
		return fmt.Errorf("s3client: create bucket %q: %w", c.bucketName, err)
	}
	return nil
}
