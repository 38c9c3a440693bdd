package port

import (
	"context"
	"time"
)

// BlobStore defines bucket/key object storage
type BlobStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	// Upload stores content and returns the storage key "bucket/key"
	Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	// SignedUploadURL returns a URL that accepts one PUT of the object until ttl elapses
	SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Workspace hands out per-job scratch directories
type Workspace interface {
	// Acquire creates a fresh directory for jobID; release removes it and everything below
	Acquire(ctx context.Context, jobID string) (dir string, release func(), err error)
}
