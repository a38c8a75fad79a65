package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client the adapters use.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

var ErrMinIOClientClosed = errors.New(errors.ErrCodeInternal, "minio client is closed")

// ExportRetentionDays is how long result CSVs stay in the exports bucket.
const ExportRetentionDays = 30

type MinIOClient struct {
	client MinIOAPI
	config config.MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// Client is the short name used by the binaries.
type Client = MinIOClient

// NewMinIOClient connects, verifies credentials and makes sure both buckets
// exist.
func NewMinIOClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	applyDefaults(&cfg)
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}

	c := newClient(client, cfg, log)
	if err := c.EnsureBuckets(ctx); err != nil {
		return nil, err
	}
	c.SetupLifecycleRules(ctx)
	c.logger.Info("MinIO client connected", logging.String("endpoint", cfg.Endpoint), logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

func newClient(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *MinIOClient {
	applyDefaults(&cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &MinIOClient{client: api, config: cfg, logger: log.Named("minio")}
}

func applyDefaults(cfg *config.MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ModelsBucket == "" {
		cfg.ModelsBucket = config.DefaultMinIOModelsBucket
	}
	if cfg.ExportsBucket == "" {
		cfg.ExportsBucket = config.DefaultMinIOExportsBucket
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = config.DefaultMinIOPresignExpiry
	}
}

func (c *MinIOClient) buckets() []string {
	return []string{c.config.ModelsBucket, c.config.ExportsBucket}
}

func (c *MinIOClient) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range c.buckets() {
		exists, err := c.client.BucketExists(ctx, bucket)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check bucket existence").WithDetail(bucket)
		}
		if exists {
			continue
		}
		if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, fmt.Sprintf("failed to create bucket %s", bucket))
		}
		c.logger.Info("Created bucket", logging.String("bucket", bucket))
	}
	return nil
}

// SetupLifecycleRules expires old exports. Failures are logged; some
// S3-compatible stores do not support lifecycle configuration.
func (c *MinIOClient) SetupLifecycleRules(ctx context.Context) {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{{
		ID:         "exports-cleanup",
		Status:     "Enabled",
		Expiration: lifecycle.Expiration{Days: ExportRetentionDays},
	}}
	if err := c.client.SetBucketLifecycle(ctx, c.config.ExportsBucket, cfg); err != nil {
		c.logger.Warn("Failed to set lifecycle for exports bucket", logging.Err(err))
	}
}

func (c *MinIOClient) api() (MinIOAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrMinIOClientClosed
	}
	return c.client, nil
}

func (c *MinIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type HealthStatus struct {
	Healthy        bool
	Latency        time.Duration
	BucketStatuses map[string]bool
	Error          string
}

func (c *MinIOClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	api, err := c.api()
	if err != nil {
		return &HealthStatus{Error: err.Error()}, err
	}
	start := time.Now()
	_, err = api.ListBuckets(ctx)
	status := &HealthStatus{
		Healthy:        err == nil,
		Latency:        time.Since(start),
		BucketStatuses: make(map[string]bool),
	}
	if err != nil {
		status.Error = err.Error()
		return status, err
	}
	for _, b := range c.buckets() {
		exists, _ := api.BucketExists(ctx, b)
		status.BucketStatuses[b] = exists
		if !exists {
			status.Healthy = false
			status.Error = fmt.Sprintf("bucket %s missing", b)
		}
	}
	return status, nil
}

// Ping reports whether MinIO answers; it backs the readiness probe.
func (c *MinIOClient) Ping(ctx context.Context) error {
	st, err := c.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !st.Healthy {
		return errors.New(errors.ErrCodeServiceUnavailable, st.Error)
	}
	return nil
}

//Personal.AI order the ending
