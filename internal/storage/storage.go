package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/config"
)

// Store uploads raw EEG samples to an S3-compatible bucket. A Store without
// a bucket is disabled: uploads succeed without doing anything and return an
// empty URL.
type Store struct {
	client   *minio.Client
	endpoint string
	bucket   string
	secure   bool
	prefix   string
	log      *zap.Logger

	regionMu sync.Mutex
	region   string
}

func New(cfg config.StorageConfig, log *zap.Logger) (*Store, error) {
	s := &Store{
		endpoint: cfg.Endpoint,
		bucket:   cfg.Bucket,
		secure:   cfg.UseSSL,
		prefix:   cfg.Prefix,
		region:   cfg.Region,
		log:      log,
	}
	if !cfg.Enabled() {
		log.Info("raw sample storage disabled: no bucket configured")
		return s, nil
	}

	creds := credentials.NewEnvAWS()
	if cfg.AccessKeyID != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	s.client = client

	log.Info("raw sample storage enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket))
	return s, nil
}

func (s *Store) Enabled() bool {
	return s.client != nil
}

// SampleKey returns a fresh object key for one raw sample.
func (s *Store) SampleKey() string {
	return s.prefix + uuid.NewString() + ".json"
}

// PutSample uploads body under key and returns the object's URL.
func (s *Store) PutSample(ctx context.Context, key string, body []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}

	return ObjectURL(s.endpoint, s.bucket, s.bucketRegion(ctx), key, s.secure), nil
}

// bucketRegion returns the configured region, or asks the bucket once when
// none is configured. Lookup failures leave the region empty.
func (s *Store) bucketRegion(ctx context.Context) string {
	s.regionMu.Lock()
	defer s.regionMu.Unlock()
	if s.region != "" || !isAWS(s.endpoint) {
		return s.region
	}
	loc, err := s.client.GetBucketLocation(ctx, s.bucket)
	if err != nil {
		s.log.Warn("bucket location lookup failed", zap.String("bucket", s.bucket), zap.Error(err))
		return ""
	}
	s.region = loc
	return loc
}

// ObjectURL builds the public URL of key. AWS endpoints use the
// virtual-hosted form, with the region omitted when unknown; any other
// endpoint uses path-style addressing.
func ObjectURL(endpoint, bucket, region, key string, secure bool) string {
	if isAWS(endpoint) {
		if region != "" {
			return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
		}
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, bucket, key)
}

func isAWS(endpoint string) bool {
	return strings.HasSuffix(endpoint, "amazonaws.com")
}
