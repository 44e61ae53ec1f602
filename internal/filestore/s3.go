package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Config configures S3Storage.
type S3Config struct {
	// Bucket holds the raw data objects.
	Bucket string

	// Region is the AWS region.
	Region string

	// Endpoint overrides the S3 endpoint for S3-compatible stores such
	// as MinIO. Leave empty for AWS.
	Endpoint string

	// AccessKey and SecretKey are static credentials. When empty the
	// default AWS credential chain applies.
	AccessKey string
	SecretKey string

	// Prefix is prepended to every object key, scoping the storage to a
	// subtree of the bucket.
	Prefix string
}

// ApplyDefaults fills in default values for unset fields.
func (c *S3Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	c.Prefix = strings.Trim(c.Prefix, "/")
}

// Validate checks the configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}
	return nil
}

// S3Storage stores blobs in an S3 bucket via the AWS SDK.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Storage creates an S3Storage for config.Bucket.
func NewS3Storage(ctx context.Context, config S3Config, logger *zap.Logger) (*S3Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(config.Endpoint))
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// S3-compatible endpoints want path-style addressing.
		o.UsePathStyle = config.Endpoint != ""
	})

	return &S3Storage{
		client: client,
		bucket: config.Bucket,
		prefix: config.Prefix,
		logger: logger,
	}, nil
}

// key maps a storage path or s3:// location to an object key.
func (s *S3Storage) key(path string) string {
	if strings.HasPrefix(path, "s3://") {
		path = strings.TrimPrefix(path, "s3://")
		path = strings.TrimPrefix(path, s.bucket+"/")
	}
	path = strings.TrimPrefix(path, "/")
	if s.prefix != "" && !strings.HasPrefix(path, s.prefix+"/") {
		return s.prefix + "/" + path
	}
	return path
}

// Store uploads data at path and returns its s3:// location.
func (s *S3Storage) Store(ctx context.Context, path string, data io.Reader) (string, error) {
	key := s.key(path)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	}
	if contentType := mime.TypeByExtension(filepath.Ext(path)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("uploading object %s: %w", key, err)
	}

	return "s3://" + s.bucket + "/" + key, nil
}

// Open returns a reader over the object at path.
func (s *S3Storage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	return out.Body, nil
}

// Remove deletes the object at path. S3 reports deletes of absent keys as
// success, which matches the idempotence contract.
func (s *S3Storage) Remove(ctx context.Context, path string) error {
	key := s.key(path)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// RemoveAll deletes every object under path, paging through the listing.
// An empty path removes everything under the configured prefix.
func (s *S3Storage) RemoveAll(ctx context.Context, path string) error {
	prefix := s.key(path)
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		page, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("listing objects under %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			return nil
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		}); err != nil {
			return fmt.Errorf("deleting objects under %s: %w", prefix, err)
		}
		s.logger.Debug("deleted object batch",
			zap.String("prefix", prefix),
			zap.Int("count", len(objects)))

		if page.IsTruncated == nil || !*page.IsTruncated {
			return nil
		}
		listInput.ContinuationToken = page.NextContinuationToken
	}
}

var _ Storage = (*S3Storage)(nil)
