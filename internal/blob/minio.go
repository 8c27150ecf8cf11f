package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Blaisesa/notiq/internal/config"
)

// MinioUploader stores blobs in an S3-compatible bucket and hands back
// permanent public URLs. The bucket is expected to allow anonymous reads.
type MinioUploader struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

func NewMinioUploader(ctx context.Context, cfg config.BlobConfig) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioUploader{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, data []byte, contentType, objectPath string) (string, error) {
	_, err := u.client.PutObject(ctx, u.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectPath, err)
	}
	return u.objectURL(objectPath), nil
}

func (u *MinioUploader) Ping(ctx context.Context) error {
	if _, err := u.client.BucketExists(ctx, u.bucket); err != nil {
		return fmt.Errorf("ping blob store: %w", err)
	}
	return nil
}

func (u *MinioUploader) objectURL(objectPath string) string {
	escaped := (&url.URL{Path: objectPath}).EscapedPath()
	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + u.bucket + "/" + escaped
	}
	scheme := "http"
	if u.client.EndpointURL().Scheme == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, u.client.EndpointURL().Host, u.bucket, escaped)
}
