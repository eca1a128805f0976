// Package storage provides object storage access backed by MinIO.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docuquery-go/internal/config"
	"docuquery-go/pkg/log"
)

// ObjectFetcher reads uploaded document bytes out of object storage.
// The service only reads; uploads belong to the upload service.
type ObjectFetcher interface {
	Fetch(ctx context.Context, objectName string) ([]byte, error)
}

// MinioStore implements ObjectFetcher on a MinIO bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg config.MinIOConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket '%s': %w", cfg.BucketName, err)
		}
		log.Infof("[Storage] bucket '%s' created", cfg.BucketName)
	}
	return &MinioStore{client: client, bucket: cfg.BucketName}, nil
}

// Fetch downloads the whole object into memory. Documents are bounded
// by the upload size limit, so buffering is fine.
func (s *MinioStore) Fetch(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object '%s': %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object '%s': %w", objectName, err)
	}
	return data, nil
}
