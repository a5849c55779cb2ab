package window

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when the key does not
// exist. Callers use errors.Is; implementations wrap their backend's own
// not-found shape into this one.
var ErrNotFound = errors.New("object not found")

// Store is the object-storage surface the backfill needs. Keys are opaque
// slash-separated paths; List returns full keys under the prefix.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
