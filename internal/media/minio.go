package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps banners in an S3-compatible bucket under the banners/ prefix.
type MinioStore struct {
	client *minio.Client
	bucket string

	mu          sync.Mutex
	bucketReady bool
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func objectKey(name string) string {
	return Namespace + "/" + name
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("create bucket: %w", err)
			}
		}
	}
	s.bucketReady = true
	return nil
}

func (s *MinioStore) Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid banner name %q", name)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	key := objectKey(name)
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return ErrExists
	}
	if minio.ToErrorResponse(err).StatusCode != http.StatusNotFound {
		return fmt.Errorf("stat banner: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put banner: %w", err)
	}
	return nil
}

func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if !ValidName(name) {
		return nil, Info{}, ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, Info{}, fmt.Errorf("get banner: %w", err)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("stat banner: %w", err)
	}
	return obj, Info{Size: stat.Size, ContentType: stat.ContentType, ModTime: stat.LastModified}, nil
}

func (s *MinioStore) Delete(ctx context.Context, name string) error {
	if !ValidName(name) {
		return ErrNotFound
	}
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete banner: %w", err)
	}
	return nil
}

// Ping checks that the bucket is reachable; used by readiness.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
