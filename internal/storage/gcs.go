package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"talk2data/internal/domain"
)

var _ domain.SchemaStore = (*GCSStore)(nil)

// GCSConfig configures a Google Cloud Storage bucket for schemas.
type GCSConfig struct {
	Bucket      string
	KeyFilePath string // service account JSON; empty uses application default credentials
	Prefix      string
}

// GCSStore keeps schema documents in a GCS bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
	close  func() error
}

// NewGCSStore creates a store for the configured bucket.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.KeyFilePath != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.KeyFilePath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &GCSStore{bucket: client.Bucket(cfg.Bucket), prefix: prefix, close: client.Close}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.close()
}

// Put writes the raw document.
func (s *GCSStore) Put(ctx context.Context, user, name string, raw []byte) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	w := s.bucket.Object(objectKey(s.prefix, user, name)).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return wrapOp("put", user, name, err)
	}
	if err := w.Close(); err != nil {
		return wrapOp("put", user, name, err)
	}
	return nil
}

// Get reads the raw document.
func (s *GCSStore) Get(ctx context.Context, user, name string) ([]byte, error) {
	if err := validateKey(user, name); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(objectKey(s.prefix, user, name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, notFound(user, name)
		}
		return nil, wrapOp("get", user, name, err)
	}
	defer r.Close() //nolint:errcheck

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapOp("read", user, name, err)
	}
	return raw, nil
}

// List returns the user's schema names.
func (s *GCSStore) List(ctx context.Context, user string) ([]string, error) {
	if err := validateKey(user, "x"); err != nil {
		return nil, err
	}
	listPrefix := userPrefix(s.prefix, user)
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: listPrefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list schemas for %s: %w", user, err)
		}
		keys = append(keys, attrs.Name)
	}
	return schemaNames(keys, listPrefix), nil
}

// Delete removes the document.
func (s *GCSStore) Delete(ctx context.Context, user, name string) error {
	if err := validateKey(user, name); err != nil {
		return err
	}
	if err := s.bucket.Object(objectKey(s.prefix, user, name)).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return notFound(user, name)
		}
		return wrapOp("delete", user, name, err)
	}
	return nil
}
