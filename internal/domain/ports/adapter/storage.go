package adapter

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is the port for durable, long-lived storage, as opposed
// to a provider's ephemeral output URL which may expire.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
