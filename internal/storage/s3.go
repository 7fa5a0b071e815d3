package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
)

// S3Store is an object store backed by an S3 bucket.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint string
	// PublicBaseURL is prepended to keys when building object URLs. When
	// empty, the standard virtual-hosted S3 URL is used.
	PublicBaseURL string
}

// NewS3Store builds an S3 client from the default credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	logging.Info("S3 storage bucket: %s (region %s)", cfg.Bucket, cfg.Region)
	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// Put uploads an object. S3 writes are atomic per object, so readers never
// see partial content.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress ProgressFunc) (string, error) {
	body := newProgressReader(r, size, progress)

	// PutObject needs a seekable or fully-buffered body for signing.
	data, err := io.ReadAll(body)
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "put", "error").Inc()
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "put", "error").Inc()
		return "", &Error{Op: "put", Key: key, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("s3", "put", "success").Inc()
	metrics.StorageBytesWritten.WithLabelValues("s3").Add(float64(len(data)))
	logging.Debug("S3 put: %s (%d bytes)", key, len(data))

	return s.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

// Get reads an object in full.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "get", "error").Inc()
		return nil, &Error{Op: "get", Key: key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "get", "error").Inc()
		return nil, &Error{Op: "get", Key: key, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("s3", "get", "success").Inc()
	return data, nil
}

// Delete removes an object. S3 DeleteObject succeeds for missing keys, which
// gives us idempotency for free.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "delete", "error").Inc()
		return &Error{Op: "delete", Key: key, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("s3", "delete", "success").Inc()
	return nil
}

// DeleteTree lists every object under the prefix and batch-deletes them.
func (s *S3Store) DeleteTree(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "delete_tree", "error").Inc()
		return &Error{Op: "delete_tree", Key: prefix, Err: err}
	}
	if len(keys) == 0 {
		metrics.StorageOperations.WithLabelValues("s3", "delete_tree", "success").Inc()
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		metrics.StorageOperations.WithLabelValues("s3", "delete_tree", "error").Inc()
		return &Error{Op: "delete_tree", Key: prefix, Err: err}
	}

	metrics.StorageOperations.WithLabelValues("s3", "delete_tree", "success").Inc()
	logging.Debug("S3 delete tree: %s (%d objects)", prefix, len(keys))
	return nil
}

// List returns the keys of every object under a prefix, following pagination.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(strings.TrimLeft(prefix, "/")),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.StorageOperations.WithLabelValues("s3", "list", "error").Inc()
			return nil, &Error{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	metrics.StorageOperations.WithLabelValues("s3", "list", "success").Inc()
	return keys, nil
}
