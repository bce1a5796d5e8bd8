package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "taskify",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by level and result",
	},
	[]string{"level", "result"},
)

// MultiLevelCache reads L1 then L2 and writes through to both. L2 errors
// are logged and counted but never fail the caller; after repeated failures
// the breaker stops sending traffic to L2 for a while.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      Cache
	breaker *CircuitBreaker
	l1TTL   time.Duration
	logger  *slog.Logger
}

func NewMultiLevelCache(l2 Cache, breaker *CircuitBreaker, logger *slog.Logger) *MultiLevelCache {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerConfig("l2"), logger)
	}
	return &MultiLevelCache{
		l1:      NewMemoryCache(0),
		l2:      l2,
		breaker: breaker,
		l1TTL:   5 * time.Minute,
		logger:  logger,
	}
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.capL1(ttl)); err != nil {
		return err
	}
	if c.l2 != nil {
		if err := c.breaker.Do(func() error { return c.l2.Set(ctx, key, value, ttl) }); err != nil {
			c.logger.Warn("l2 cache set failed", "key", key, "error", err)
		}
	}
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		cacheLookups.WithLabelValues("l1", "hit").Inc()
		return nil
	}
	cacheLookups.WithLabelValues("l1", "miss").Inc()

	if c.l2 == nil {
		return ErrCacheMiss
	}

	hit := false
	err := c.breaker.Do(func() error {
		err := c.l2.Get(ctx, key, dest)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	if err != nil {
		cacheLookups.WithLabelValues("l2", "error").Inc()
		c.logger.Warn("l2 cache get failed", "key", key, "error", err)
		return ErrCacheMiss
	}
	if !hit {
		cacheLookups.WithLabelValues("l2", "miss").Inc()
		return ErrCacheMiss
	}

	cacheLookups.WithLabelValues("l2", "hit").Inc()
	_ = c.l1.Set(ctx, key, dest, c.l1TTL)
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	if c.l2 != nil {
		if err := c.breaker.Do(func() error { return c.l2.Delete(ctx, keys...) }); err != nil {
			c.logger.Warn("l2 cache delete failed", "keys", keys, "error", err)
		}
	}
	return nil
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if c.breaker.State() == StateOpen {
		return ErrCacheDown
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Close() error {
	c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func (c *MultiLevelCache) capL1(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}
