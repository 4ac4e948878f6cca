package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no bucket was configured.
var ErrNotConfigured = errors.New("object storage is not configured")

// Uploader hands out presigned upload URLs for profile images.
type Uploader interface {
	PresignProfileImageUpload(ctx context.Context, userID uint64) (*PresignedUpload, error)
}

// PresignedUpload is a one-off PUT target.
type PresignedUpload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Config holds S3 settings. Endpoint is only set for S3-compatible stores such as MinIO.
type Config struct {
	Region     string
	Bucket     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
}

// S3Uploader implements Uploader with S3 presigned PUT requests.
type S3Uploader struct {
	bucket  string
	ttl     time.Duration
	presign *s3.PresignClient
	now     func() time.Time
}

// NewS3Uploader builds the presign client. An empty bucket yields an uploader
// that always returns ErrNotConfigured.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	u := &S3Uploader{bucket: cfg.Bucket, ttl: cfg.PresignTTL, now: time.Now}
	if u.ttl <= 0 {
		u.ttl = 15 * time.Minute
	}
	if cfg.Bucket == "" {
		return u, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	u.presign = s3.NewPresignClient(client)
	return u, nil
}

// ProfileImageKey returns a fresh object key under the user's prefix.
func ProfileImageKey(userID uint64, now time.Time) string {
	return fmt.Sprintf("profile-images/%d/%d/%s", userID, now.Year(), uuid.New())
}

func (u *S3Uploader) PresignProfileImageUpload(ctx context.Context, userID uint64) (*PresignedUpload, error) {
	if u.presign == nil {
		return nil, ErrNotConfigured
	}

	now := u.now()
	key := ProfileImageKey(userID, now)
	req, err := u.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &PresignedUpload{
		Key:       key,
		URL:       req.URL,
		ExpiresAt: now.Add(u.ttl),
	}, nil
}
