package cache

import (
	"context"
	"time"
)

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// SetIfNewer stores value only if version is greater than the version
	// already cached under key. Returns false when the write was skipped.
	SetIfNewer(ctx context.Context, key string, value []byte, version int64, ttl time.Duration) (bool, error)
}
