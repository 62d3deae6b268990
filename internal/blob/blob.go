// Package blob stores signature images and other binary objects by key.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists for a key.
var ErrNotFound = errors.New("blob not found")

// Object is a stored blob.
type Object struct {
	Body        []byte
	ContentType string
}

// Store puts and gets blobs and hands out presigned URLs for direct
// client transfers.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}
