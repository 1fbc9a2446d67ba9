package port

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

type CacheStore interface {
	// Get returns ErrCacheMiss when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys; absent keys are not an error
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes every key matching a glob pattern and returns how many were removed
	DeletePattern(ctx context.Context, pattern string) (int, error)

	Ping(ctx context.Context) error

	// Info returns server facts such as redis_version and used_memory_human
	Info(ctx context.Context) (map[string]string, error)
}
