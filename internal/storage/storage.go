package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/farmstand/farmstand/internal/config"
	"github.com/rs/zerolog"
)

// AvatarStore abstracts avatar image storage backends.
type AvatarStore interface {
	// Save stores an image. key format: {user_id}/avatar
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// URL returns a presigned URL for the image.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the image.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an image exists.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "s3".
	Type() string
}

// New creates an AvatarStore based on config. When S3 is configured the
// *S3Store is also returned so the caller can ensure its bucket exists;
// it is nil for local storage. The bucket itself is not required to exist
// yet: creating it is one of the setup migrations.
func New(cfg config.StorageConfig, log zerolog.Logger) (AvatarStore, *S3Store, error) {
	if !cfg.S3.Enabled() {
		log.Info().Str("dir", cfg.LocalDir).Msg("using local avatar storage")
		return NewLocalStore(cfg.LocalDir), nil, nil
	}

	s3store, err := NewS3Store(cfg.S3, cfg.AvatarBucket, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}
	log.Info().
		Str("bucket", cfg.AvatarBucket).
		Str("endpoint", cfg.S3.Endpoint).
		Msg("using S3 avatar storage")
	return s3store, s3store, nil
}
