package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// Region skips the bucket location lookup when set.
	Region string
}

// MinIOStore keeps objects in an S3-compatible bucket, created on first use.
type MinIOStore struct {
	client *minio.Client
	bucket string

	mu    sync.Mutex
	ready bool
}

func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when MEETSCRIBE_BLOB_BACKEND=minio")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "meetscribe-uploads"
	}
	return &MinIOStore{client: client, bucket: bucket}, nil
}

// ensureBucket creates the bucket if needed. Only success is remembered,
// so a failed check is tried again on the next Put.
func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

func (s *MinIOStore) Put(ctx context.Context, key, localPath string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Fetch downloads the object to a temp file that cleanup deletes.
func (s *MinIOStore) Fetch(ctx context.Context, key string) (string, func(), error) {
	if err := validKey(key); err != nil {
		return "", nil, err
	}
	tmp, err := os.CreateTemp("", "meetscribe-*"+path.Ext(key))
	if err != nil {
		return "", nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := s.client.FGetObject(ctx, s.bucket, key, tmpPath, minio.GetObjectOptions{}); err != nil {
		os.Remove(tmpPath)
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", nil, fmt.Errorf("download %s: %w", key, err)
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
