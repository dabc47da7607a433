package attachment

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds configuration for the MinIO-backed storage.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string

	// PublicBaseURL is the externally reachable URL prefix for stored
	// objects, e.g. "https://files.requestdesk.io".
	PublicBaseURL string
}

// MinioStorage stores attachments in a MinIO (S3-compatible) bucket.
type MinioStorage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioStorage connects to MinIO and ensures the bucket exists.
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put stores the object under key and returns its public URL.
func (s *MinioStorage) Put(ctx context.Context, key string, upload Upload) (string, error) {
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, upload.Content, upload.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("storing attachment %s: %w", key, err)
	}

	return s.baseURL + "/" + s.bucket + "/" + key, nil
}

// Remove deletes the object under key.
func (s *MinioStorage) Remove(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("removing attachment %s: %w", key, err)
	}
	return nil
}

// Ensure MinioStorage implements Storage.
var _ Storage = (*MinioStorage)(nil)
