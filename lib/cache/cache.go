// Package cache defines the interface of the key/value caches used to avoid hitting the indexer on every request.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-valued cache with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// ErrMiss is returned by Get when the key is not cached or has expired.
var ErrMiss = errors.New("cache miss")
