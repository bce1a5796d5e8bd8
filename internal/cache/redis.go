package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared Redis client used by the L2 cache and
// the job queue.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
	// OpTimeout bounds each cache command.
	OpTimeout time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "taskify:",
		OpTimeout:    time.Second,
	}
}

func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
}

// RedisCache is the shared L2 tier. Values are stored as JSON under
// prefix+key.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

func NewRedisCache(opts RedisOptions) *RedisCache {
	c := NewRedisCacheFromClient(NewRedisClient(opts), opts.KeyPrefix)
	if opts.OpTimeout > 0 {
		c.opTimeout = opts.OpTimeout
	}
	return c
}

// NewRedisCacheFromClient shares an existing client, e.g. with the job queue.
func NewRedisCacheFromClient(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix, opTimeout: time.Second}
}

func (r *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Set(ctx, r.prefix+key, payload, ttl).Err()
}

// Get decodes the cached value into dest. An entry that no longer decodes
// is evicted so the next lookup reloads it.
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	payload, err := r.client.Get(ctx, r.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		r.client.Unlink(ctx, r.prefix+key)
		return fmt.Errorf("decode cache value %q: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.prefix+k)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Unlink(ctx, full...).Err()
}

func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
