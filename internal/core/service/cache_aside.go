package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Outcome is the result of a single cache operation. Cache failures are
// reported as Degraded instead of errors and callers fall back to the store.
type Outcome int

const (
	OutcomeHit Outcome = iota
	OutcomeMiss
	OutcomeDegraded
	OutcomeDisabled
	OutcomeStored
	OutcomeSkipped
	OutcomeDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeStored:
		return "stored"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type Lookup struct {
	Outcome Outcome
	Payload []byte
	Err     error
}

// Scope names what a write touched.
type Scope struct {
	ProductIDs []int64
	Categories []string
}

// Keys expands the scope into the cache keys that may hold data it changed.
func (s Scope) Keys() []string {
	keys := make([]string, 0, len(s.ProductIDs)+len(s.Categories)+2)
	for _, id := range s.ProductIDs {
		keys = append(keys, ProductKey(id))
	}
	keys = append(keys, allProductsKey)
	seen := make(map[string]struct{}, len(s.Categories))
	for _, c := range s.Categories {
		key := ProductListKey(c)
		if _, ok := seen[key]; ok || key == allProductsKey {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return append(keys, categoriesKey)
}

type CacheConfig struct {
	TTL       time.Duration
	OpTimeout time.Duration
}

type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Degraded      uint64 `json:"degraded"`
	WriteFailures uint64 `json:"write_failures"`
	Invalidations uint64 `json:"invalidations"`
}

type CacheStatus struct {
	Status           string     `json:"status"`
	Message          string     `json:"message,omitempty"`
	RedisVersion     string     `json:"redis_version,omitempty"`
	UsedMemoryHuman  string     `json:"used_memory_human,omitempty"`
	ConnectedClients string     `json:"connected_clients,omitempty"`
	TTLSeconds       int64      `json:"ttl_seconds"`
	Stats            CacheStats `json:"stats"`
}

// CacheAside is the read-through layer in front of the product store. A nil
// store disables caching.
type CacheAside struct {
	store   port.CacheStore
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger

	// epoch advances on every invalidation; a load that started in an older
	// epoch does not write its result back.
	epoch atomic.Uint64

	hits          atomic.Uint64
	misses        atomic.Uint64
	degraded      atomic.Uint64
	writeFailures atomic.Uint64
	invalidations atomic.Uint64
}

func NewCacheAside(store port.CacheStore, cfg CacheConfig, logger *zap.Logger) *CacheAside {
	return &CacheAside{
		store:   store,
		ttl:     cfg.TTL,
		timeout: cfg.OpTimeout,
		logger:  logger,
	}
}

func (c *CacheAside) Enabled() bool {
	return c.store != nil
}

// GetOrLoad returns the cached value under key, or calls load and caches its
// result. Cache failures never fail the call; load errors are returned as is
// and nothing is cached for them. A result loaded before an invalidation is
// not left in the cache: the fill is skipped, or evicted again when the
// invalidation lands while it is being written.
func GetOrLoad[T any](ctx context.Context, c *CacheAside, key string, load func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "cache.get_or_load")
	defer span.End()

	lookup := c.Lookup(ctx, key)
	span.SetAttributes(
		attribute.String("cache.key", key),
		attribute.String("cache.outcome", lookup.Outcome.String()),
	)

	if lookup.Outcome == OutcomeHit {
		var v T
		err := json.Unmarshal(lookup.Payload, &v)
		if err == nil {
			return v, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
	}

	epoch := c.epoch.Load()
	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if c.epoch.Load() != epoch {
		c.logger.Debug("skipping cache fill after concurrent invalidation", zap.String("key", key))
		return v, nil
	}
	if c.Fill(ctx, key, v) == OutcomeStored && c.epoch.Load() != epoch {
		c.evict(ctx, key)
	}

	return v, nil
}

func (c *CacheAside) evict(ctx context.Context, key string) {
	ctx, cancel := c.opContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := c.store.Delete(ctx, key); err != nil {
		c.degraded.Add(1)
		c.logger.Warn("evicting raced cache fill failed, entry expires with ttl",
			zap.String("key", key), zap.Error(err))
		return
	}
	c.logger.Debug("evicted cache fill raced by invalidation", zap.String("key", key))
}

func (c *CacheAside) Lookup(ctx context.Context, key string) Lookup {
	if c.store == nil {
		return Lookup{Outcome: OutcomeDisabled}
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.hits.Add(1)
		return Lookup{Outcome: OutcomeHit, Payload: data}
	case errors.Is(err, port.ErrCacheMiss):
		c.misses.Add(1)
		return Lookup{Outcome: OutcomeMiss}
	default:
		c.degraded.Add(1)
		c.logger.Warn("cache read failed, falling back to store", zap.String("key", key), zap.Error(err))
		return Lookup{Outcome: OutcomeDegraded, Err: err}
	}
}

// Fill stores value under key with the configured TTL. It is best effort:
// failures are logged and reported as OutcomeSkipped.
func (c *CacheAside) Fill(ctx context.Context, key string, value any) Outcome {
	if c.store == nil {
		return OutcomeDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.writeFailures.Add(1)
		c.logger.Warn("cache value not serializable", zap.String("key", key), zap.Error(err))
		return OutcomeSkipped
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.writeFailures.Add(1)
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return OutcomeSkipped
	}

	return OutcomeStored
}

// Invalidate deletes every key the scope may have made stale. It runs to
// completion even when ctx is already cancelled because it follows a write
// that has been committed.
func (c *CacheAside) Invalidate(ctx context.Context, scope Scope) Outcome {
	c.epoch.Add(1)
	if c.store == nil {
		return OutcomeDisabled
	}

	ctx, span := tracer.Start(context.WithoutCancel(ctx), "cache.invalidate")
	defer span.End()

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	keys := scope.Keys()
	span.SetAttributes(attribute.StringSlice("cache.keys", keys))

	if err := c.store.Delete(ctx, keys...); err != nil {
		c.degraded.Add(1)
		c.logger.Warn("cache invalidation failed, entries expire with ttl",
			zap.Strings("keys", keys), zap.Error(err))
		return OutcomeDegraded
	}

	c.invalidations.Add(1)
	c.logger.Debug("cache invalidated", zap.Strings("keys", keys))
	return OutcomeDeleted
}

// Clear removes every catalog entry. Unlike the other operations it reports
// an unreachable cache as domain.ErrCacheUnavailable.
func (c *CacheAside) Clear(ctx context.Context) (int, error) {
	c.epoch.Add(1)
	if c.store == nil {
		return 0, fmt.Errorf("%w: cache is not configured", domain.ErrCacheUnavailable)
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	total := 0
	for _, pattern := range []string{productListPattern, productDetailPattern, categoriesPattern} {
		n, err := c.store.DeletePattern(ctx, pattern)
		total += n
		if err != nil {
			return total, fmt.Errorf("%w: clear %s: %w", domain.ErrCacheUnavailable, pattern, err)
		}
	}

	c.logger.Info("cache cleared", zap.Int("keys", total))
	return total, nil
}

func (c *CacheAside) Status(ctx context.Context) CacheStatus {
	status := CacheStatus{
		Status:     "disconnected",
		TTLSeconds: int64(c.ttl / time.Second),
		Stats:      c.Stats(),
	}
	if c.store == nil {
		status.Message = "cache is not configured"
		return status
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		status.Message = err.Error()
		return status
	}
	status.Status = "connected"

	info, err := c.store.Info(ctx)
	if err != nil {
		status.Message = err.Error()
		return status
	}
	status.RedisVersion = info["redis_version"]
	status.UsedMemoryHuman = info["used_memory_human"]
	status.ConnectedClients = info["connected_clients"]

	return status
}

func (c *CacheAside) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Degraded:      c.degraded.Load(),
		WriteFailures: c.writeFailures.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func (c *CacheAside) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
