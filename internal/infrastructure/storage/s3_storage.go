// Package storage archives raw bank statement files in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appbanking "github.com/coopledger/backend/internal/application/banking"
	infraconfig "github.com/coopledger/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ensure S3StatementArchive implements StatementArchive
var _ appbanking.StatementArchive = (*S3StatementArchive)(nil)

const statementContentType = "text/csv"

// S3StatementArchive stores uploaded statements under a content-addressed key.
// It works with any S3-compatible store (AWS S3, MinIO, RustFS).
type S3StatementArchive struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3StatementArchiveOption is a functional option for configuring S3StatementArchive
type S3StatementArchiveOption func(*S3StatementArchive)

// WithLogger sets a custom logger for S3StatementArchive
func WithLogger(logger *zap.Logger) S3StatementArchiveOption {
	return func(s *S3StatementArchive) {
		s.logger = logger
	}
}

// NewS3StatementArchive creates a new S3StatementArchive from configuration
func NewS3StatementArchive(cfg *infraconfig.StorageConfig, opts ...S3StatementArchiveOption) (*S3StatementArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	archive := &S3StatementArchive{
		client: client,
		bucket: cfg.Bucket,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// StatementKey returns statements/<cooperative>/<yyyy>/<sha256>.csv
func StatementKey(cooperativeID uuid.UUID, at time.Time, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("statements/%s/%04d/%s.csv", cooperativeID, at.UTC().Year(), hex.EncodeToString(sum[:]))
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3StatementArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating statement bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// lost a race with another instance
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the statement unless an identical file is already stored
// and returns its key
func (s *S3StatementArchive) Archive(ctx context.Context, cooperativeID uuid.UUID, at time.Time, data []byte) (string, error) {
	if cooperativeID == uuid.Nil {
		return "", errors.New("cooperative is required")
	}
	key := StatementKey(cooperativeID, at, data)

	exists, err := s.exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		s.logger.Debug("Statement already archived", zap.String("key", key))
		return key, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(statementContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload statement: %w", err)
	}
	s.logger.Info("Statement archived", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

func (s *S3StatementArchive) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	// Some S3-compatible services report a missing key differently
	if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey") {
		return false, nil
	}
	return false, fmt.Errorf("failed to check statement existence: %w", err)
}

// Bucket returns the bucket name
func (s *S3StatementArchive) Bucket() string {
	return s.bucket
}
