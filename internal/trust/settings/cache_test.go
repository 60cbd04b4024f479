package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/trust"
)

func TestInMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewInMemoryCache()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "default", CacheEntry{Config: trust.DefaultConfig()}, time.Minute))
	entry, ok, err := cache.Get(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.5, entry.Config.VerifiedReviewBoost)

	now = now.Add(time.Minute)
	_, ok, err = cache.Get(ctx, "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryCacheAbsentAndInvalidate(t *testing.T) {
	cache := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "org", CacheEntry{Absent: true}, time.Minute))
	entry, ok, err := cache.Get(ctx, "org")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, entry.Absent)
	assert.Nil(t, entry.Config)

	require.NoError(t, cache.Invalidate(ctx, "org"))
	_, ok, _ = cache.Get(ctx, "org")
	assert.False(t, ok)
}
