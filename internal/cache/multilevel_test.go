package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Now()
	m := NewMemoryCache(10)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))

	var v string
	require.NoError(t, m.Get(ctx, "k", &v))
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, ErrCacheMiss, m.Get(ctx, "k", &v))
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCache_BoundedSize(t *testing.T) {
	m := NewMemoryCache(10)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Set(ctx, string(rune('a'+i)), i, time.Minute))
	}
	assert.LessOrEqual(t, m.Len(), 10)
}

func TestMultiLevelCache_WithoutL2(t *testing.T) {
	c := NewMultiLevelCache(nil, nil, nil)
	ctx := context.Background()

	var v string
	assert.Equal(t, ErrCacheMiss, c.Get(ctx, "missing", &v))

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Get(ctx, "k", &v))
	assert.Equal(t, "v", v)
	assert.NoError(t, c.Health(ctx))
}

func TestMultiLevelCache_ReadsThroughToL2(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := DefaultRedisOptions()
	opts.Addr = mr.Addr()
	l2 := NewRedisCache(opts)

	ctx := context.Background()
	require.NoError(t, l2.Set(ctx, "shared", "from-redis", time.Minute))

	c := NewMultiLevelCache(l2, nil, nil)

	var v string
	require.NoError(t, c.Get(ctx, "shared", &v))
	assert.Equal(t, "from-redis", v)
	assert.Equal(t, 1, c.l1.Len())

	require.NoError(t, c.Delete(ctx, "shared"))
	assert.False(t, mr.Exists("taskify:shared"))
}

func TestMultiLevelCache_L2DownDegradesToL1(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := DefaultRedisOptions()
	opts.Addr = mr.Addr()
	opts.MaxRetries = -1
	opts.DialTimeout = 100 * time.Millisecond
	l2 := NewRedisCache(opts)
	mr.Close()

	breaker := NewCircuitBreaker(BreakerConfig{Name: "l2", FailureThreshold: 1, Cooldown: time.Hour, Probes: 1}, nil)
	c := NewMultiLevelCache(l2, breaker, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	assert.Equal(t, StateOpen, breaker.State())

	var v string
	require.NoError(t, c.Get(ctx, "k", &v))
	assert.Equal(t, "v", v)
	assert.Equal(t, ErrCacheDown, c.Health(ctx))
}
