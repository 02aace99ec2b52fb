package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client reads objects from S3 compatible storage.
type S3Client interface {
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// GetObjectAPI is the subset of the S3 SDK client used here.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Client struct {
	api GetObjectAPI
}

// NewS3Client wraps an SDK client.
func NewS3Client(api GetObjectAPI) S3Client {
	return &s3Client{api: api}
}

// NewS3ClientFromConfig builds an SDK client. A non-empty endpoint switches to
// path-style addressing for MinIO and LocalStack.
func NewS3ClientFromConfig(cfg aws.Config, endpoint string) S3Client {
	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Client{api: api}
}

func (c *s3Client) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// ParseS3URL splits an s3://bucket/key URL.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 url scheme %q", u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q needs a bucket and a key", raw)
	}
	return u.Host, key, nil
}
