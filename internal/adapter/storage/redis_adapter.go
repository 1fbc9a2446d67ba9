package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/port"
)

const (
	scanBatchSize      = 100
	breakerName        = "redis-cache"
	breakerTripAfter   = 5
	breakerOpenTimeout = 10 * time.Second
)

type RedisAdapter struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewRedisAdapter wraps client with a circuit breaker: after consecutive
// failures every call fails fast with gobreaker.ErrOpenState until a trial call
// succeeds. Cache misses do not count as failures.
func NewRedisAdapter(client *redis.Client, logger *zap.Logger) *RedisAdapter {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, port.ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RedisAdapter{client: client, breaker: breaker}
}

func (r *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	return r.breaker.Execute(func() ([]byte, error) {
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, port.ErrCacheMiss
		}
		if err != nil {
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		return data, nil
	})
}

func (r *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.breaker.Execute(func() ([]byte, error) {
		if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set failed: %w", err)
		}
		return nil, nil
	})
	return err
}

func (r *RedisAdapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.breaker.Execute(func() ([]byte, error) {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return nil, fmt.Errorf("redis delete failed: %w", err)
		}
		return nil, nil
	})
	return err
}

// DeletePattern walks the keyspace with SCAN rather than KEYS so a large
// keyspace does not block the server.
func (r *RedisAdapter) DeletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	_, err := r.breaker.Execute(func() ([]byte, error) {
		iter := r.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
		batch := make([]string, 0, scanBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := r.client.Del(ctx, batch...).Result()
			if err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
			deleted += int(n)
			batch = batch[:0]
			return nil
		}

		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("redis scan failed: %w", err)
		}
		return nil, flush()
	})
	return deleted, err
}

// Ping bypasses the breaker so status checks see the real connection state.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) Info(ctx context.Context) (map[string]string, error) {
	raw, err := r.client.Info(ctx, "server", "memory", "clients").Result()
	if err != nil {
		return nil, fmt.Errorf("redis info failed: %w", err)
	}
	return parseInfo(raw), nil
}

func parseInfo(raw string) map[string]string {
	info := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		info[key] = value
	}
	return info
}
