// Package storage holds uploaded log archives behind a narrow get/put
// contract. Backends are S3-compatible object storage (MinIO locally) or the
// local filesystem for development.
package storage

import (
	"context"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
)

// Store is the archive storage contract consumed by the pipeline.
type Store interface {
	// Get fetches the bytes behind a storage reference produced by Put.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Put persists the bytes and returns an opaque storage reference.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// New chooses the S3 backend when a bucket is configured, falling back to the
// local directory otherwise.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	if cfg.StorageBucket != "" {
		return NewS3Store(ctx, cfg)
	}
	return NewLocalStore(cfg.LocalStorageDir), nil
}
