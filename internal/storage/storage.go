// Package storage mirrors a bucket between two S3-compatible object
// stores, the storage half of promoting an environment.
//
// Mirroring is one-way and additive: objects missing on the target or
// differing by ETag are copied, nothing on the target is deleted.
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"stacksync/internal/config"
)

// ObjectInfo identifies one stored object for mirror planning.
type ObjectInfo struct {
	Key  string
	ETag string
	Size int64
}

// Store is the object-store surface the mirror needs. Implemented by
// minioStore for real buckets and by fakes in tests.
type Store interface {
	List(ctx context.Context, bucket string) ([]ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
}

// NewStore connects to an S3-compatible endpoint.
func NewStore(cfg config.StorageConfig) (Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}
	return &minioStore{client: client}, nil
}

type minioStore struct {
	client *minio.Client
}

func (s *minioStore) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", bucket, obj.Err)
		}
		objects = append(objects, ObjectInfo{Key: obj.Key, ETag: obj.ETag, Size: obj.Size})
	}
	return objects, nil
}

func (s *minioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("getting %s/%s: %w", bucket, key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return obj, ObjectInfo{Key: key, ETag: stat.ETag, Size: stat.Size}, nil
}

func (s *minioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	if _, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("putting %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Mirror copies bucket contents from a source store to a target store.
type Mirror struct {
	source, target Store
	logger         *log.Logger
}

// NewMirror creates a Mirror. If logger is nil, a default logger writing
// to stderr is used.
func NewMirror(source, target Store, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.New(os.Stderr, "[storage] ", log.LstdFlags)
	}
	return &Mirror{source: source, target: target, logger: logger}
}

// PlanCopies returns the source keys that need copying: missing on the
// target or present with a different ETag. Sorted for stable output.
func PlanCopies(source, target []ObjectInfo) []string {
	targetETags := make(map[string]string, len(target))
	for _, obj := range target {
		targetETags[obj.Key] = obj.ETag
	}

	var keys []string
	for _, obj := range source {
		if etag, ok := targetETags[obj.Key]; ok && etag == obj.ETag {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys
}

// Run mirrors the bucket. Per-object copy failures are logged and
// counted, not fatal; the first listing failure aborts since there is no
// plan without it.
func (m *Mirror) Run(ctx context.Context, bucket string) (copied, failed int, err error) {
	sourceObjs, err := m.source.List(ctx, bucket)
	if err != nil {
		return 0, 0, err
	}
	targetObjs, err := m.target.List(ctx, bucket)
	if err != nil {
		return 0, 0, err
	}

	keys := PlanCopies(sourceObjs, targetObjs)
	m.logger.Printf("%s: %d of %d objects need copying", bucket, len(keys), len(sourceObjs))

	for _, key := range keys {
		if err := m.copyOne(ctx, bucket, key); err != nil {
			m.logger.Printf("WARNING: %s: %v", key, err)
			failed++
			continue
		}
		copied++
	}
	return copied, failed, nil
}

func (m *Mirror) copyOne(ctx context.Context, bucket, key string) error {
	r, info, err := m.source.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer r.Close()
	return m.target.Put(ctx, bucket, key, r, info.Size)
}
