package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhq/roster-sync/internal/config"
)

func testCache(t *testing.T) *DirectoryIDCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(config.CacheConfig{Addr: mr.Addr(), TTLMinutes: 10})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	assert.Equal(t, "", c.Get(ctx, "kmarx@example.org"))

	c.Set(ctx, "kmarx@example.org", "abc-123")
	assert.Equal(t, "abc-123", c.Get(ctx, "kmarx@example.org"))
}

func TestCache_SetEmptyIDIgnored(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "kmarx@example.org", "")
	assert.Equal(t, "", c.Get(ctx, "kmarx@example.org"))
}

func TestCache_Invalidate(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	c.Set(ctx, "kmarx@example.org", "abc-123")
	c.Invalidate(ctx, "kmarx@example.org")
	assert.Equal(t, "", c.Get(ctx, "kmarx@example.org"))
}

func TestCache_Ping(t *testing.T) {
	c := testCache(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestCache_RedisDownDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(config.CacheConfig{Addr: mr.Addr(), TTLMinutes: 10})
	defer c.Close()

	mr.Close()

	assert.Equal(t, "", c.Get(context.Background(), "kmarx@example.org"))
}
