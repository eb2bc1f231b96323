// Package s3 implements an S3-backed storage backend. Blob URIs carry the
// bucket and key ("s3://bucket/prefix/.../data"), so one backend instance can
// serve every location on the same endpoint and credentials.
package s3

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/arcafs/arca/pkg/storage"
)

// DriverName is the name the backend registers under.
const DriverName = "s3"

// S3 limits for multipart upload part sizes.
const (
	MinPartSize = 5 * 1024 * 1024
	MaxPartSize = 5 * 1024 * 1024 * 1024
)

func init() {
	storage.Register(DriverName, func(ctx context.Context, params map[string]any) (storage.Backend, error) {
		var cfg Config
		if err := mapstructure.Decode(params, &cfg); err != nil {
			return nil, fmt.Errorf("decoding s3 storage config: %w", err)
		}
		return New(ctx, cfg)
	})
}

// Config contains configuration for the S3 backend.
type Config struct {
	// Endpoint overrides the AWS endpoint, for MinIO and other
	// S3-compatible stores. Empty uses the AWS default resolution.
	Endpoint string `mapstructure:"endpoint"`

	// Region is the AWS region.
	Region string `mapstructure:"region"`

	// AccessKeyID and SecretAccessKey are static credentials. When both
	// are empty the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// ForcePathStyle addresses buckets as path components instead of
	// subdomains. Required for most S3-compatible stores.
	ForcePathStyle bool `mapstructure:"force_path_style"`

	// Bucket, when set, is verified with a HeadBucket call at startup and
	// on every health check. Blob URIs may still name other buckets.
	Bucket string `mapstructure:"bucket"`

	// PartSize controls upload behavior: streams smaller than PartSize
	// use PutObject, larger ones a multipart upload with parts of this
	// size. Must be between 5MB and 5GB. Default: 5MB.
	PartSize int64 `mapstructure:"part_size"`

	// MaxRetries is the maximum number of retry attempts for transient
	// errors (default: 3).
	MaxRetries uint `mapstructure:"max_retries"`

	// InitialBackoff is the backoff before the first retry (default: 100ms).
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff caps the exponential backoff (default: 2s).
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// BackoffMultiplier is the exponential backoff factor (default: 2.0).
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

// Store is an S3-backed implementation of storage.Backend.
type Store struct {
	client *awss3.Client
	bucket string

	partSize int64
	retry    retryConfig

	mu     sync.RWMutex
	closed bool
}

// NewClient creates an S3 client from configuration parameters.
func NewClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// New creates a new S3 backend and verifies bucket access when a bucket is
// configured. The bucket must already exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = MinPartSize
	}
	if partSize < MinPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > MaxPartSize {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := &Store{
		client:   client,
		bucket:   cfg.Bucket,
		partSize: partSize,
		retry:    cfg.retryConfig(),
	}

	if cfg.Bucket != "" {
		if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		}); err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return store, nil
}

// NewWithClient creates a backend around an existing client (for testing).
func NewWithClient(client *awss3.Client, partSize int64) *Store {
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	return &Store{
		client:   client,
		partSize: partSize,
		retry:    Config{}.retryConfig(),
	}
}

func (c Config) retryConfig() retryConfig {
	rc := retryConfig{
		maxRetries:        c.MaxRetries,
		initialBackoff:    c.InitialBackoff,
		maxBackoff:        c.MaxBackoff,
		backoffMultiplier: c.BackoffMultiplier,
	}
	if rc.maxRetries == 0 {
		rc.maxRetries = 3
	}
	if rc.initialBackoff == 0 {
		rc.initialBackoff = 100 * time.Millisecond
	}
	if rc.maxBackoff == 0 {
		rc.maxBackoff = 2 * time.Second
	}
	if rc.backoffMultiplier == 0 {
		rc.backoffMultiplier = 2.0
	}
	return rc
}

// parseURI splits an s3:// URI into bucket and key.
func parseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3 uri", storage.ErrInvalidURI, uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q must name a bucket and key", storage.ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Initialize is unsupported: object stores cannot preallocate a key for
// range writes. Multipart content is staged per part instead.
func (s *Store) Initialize(ctx context.Context, uri string, size int64) error {
	return storage.OpError("initialize", uri, storage.ErrNotSupported)
}

// HealthCheck verifies the configured bucket is still reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.isClosed() {
		return storage.ErrBackendClosed
	}
	if s.bucket == "" {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Close marks the backend as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure Store implements the backend contract.
var _ storage.Backend = (*Store)(nil)
