package storage

import (
	"context"
	"fmt"

	"github.com/civictrack/apiserver/config"
)

// Open builds the backend selected by cfg.Backend and makes sure its bucket
// exists.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	switch cfg.Backend {
	case "", "local":
		backend = NewOSLocalClient(cfg.UploadsDir)
	case "minio":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	s := NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}
