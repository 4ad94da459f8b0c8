package storage

import (
	"context"
	"fmt"
	"strings"

	"talk2data/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendDir   = "dir"
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendGCS   = "gcs"
)

// Config selects and configures a schema store backend.
type Config struct {
	Backend string
	Dir     string
	S3      S3Config
	Azure   AzureConfig
	GCS     GCSConfig
}

// Open builds the configured store. An empty backend means a local directory.
func Open(ctx context.Context, cfg Config) (domain.SchemaStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendDir:
		return NewDirStore(cfg.Dir)
	case BackendS3:
		return NewS3Store(cfg.S3)
	case BackendAzure:
		return NewAzureStore(cfg.Azure)
	case BackendGCS:
		return NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown schema store backend %q", cfg.Backend)
	}
}
