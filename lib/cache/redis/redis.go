// Package redis implements the cache interface on a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tarancss/safesave/lib/cache"
)

// Redis wraps a go-redis client. Keys are namespaced with prefix.
type Redis struct {
	c      *redis.Client
	prefix string
}

// New connects to the server in the redis:// url conn and checks it answers.
func New(ctx context.Context, conn, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(conn)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	c := redis.NewClient(opt)
	if err = c.Ping(ctx).Err(); err != nil {
		_ = c.Close()

		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}

	return &Redis{c: c, prefix: prefix}, nil
}

// Get returns the value stored under key or cache.ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}

	return v, err
}

// Set stores val under key. A ttl of zero never expires.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.c.Set(ctx, r.prefix+key, val, ttl).Err()
}

// Del removes keys.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	k := make([]string, len(keys))
	for i := range keys {
		k[i] = r.prefix + keys[i]
	}

	return r.c.Del(ctx, k...).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.c.Close()
}
