package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoleafdrive/internal/config"
	"ecoleafdrive/internal/domain"
)

func newTestCache(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisReportCache(rdb, time.Minute), mr
}

func TestRedisReportCacheStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache, mr := newTestCache(t)

	_, ok, err := cache.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	stats := &domain.StorageStats{
		StorageUsed:   42,
		StorageLimit:  domain.StorageLimit,
		FileCount:     1,
		StorageByType: map[domain.Category]int64{domain.CategoryImage: 42, domain.CategoryOthers: 0},
	}
	require.NoError(t, cache.SetStats(ctx, "alice", stats))

	got, ok, err := cache.GetStats(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReportCacheAnalyticsIsPerDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache, _ := newTestCache(t)

	analytics := &domain.Analytics{
		TotalFiles:           3,
		FileTypeDistribution: map[domain.Category]int64{domain.CategoryVideo: 3},
		UploadTrends:         []domain.TrendPoint{{Date: "2026-10-17", Count: 3, Size: 30}},
	}
	require.NoError(t, cache.SetAnalytics(ctx, "alice", "2026-10-17", analytics))

	got, ok, err := cache.GetAnalytics(ctx, "alice", "2026-10-17")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, analytics, got)

	// на следующий день отчет устарел
	_, ok, err = cache.GetAnalytics(ctx, "alice", "2026-10-18")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReportCacheInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.SetStats(ctx, "alice", &domain.StorageStats{StorageUsed: 1}))
	require.NoError(t, cache.SetAnalytics(ctx, "alice", "2026-10-17", &domain.Analytics{TotalFiles: 1}))
	require.NoError(t, cache.SetStats(ctx, "bob", &domain.StorageStats{StorageUsed: 2}))

	require.NoError(t, cache.Invalidate(ctx, "alice"))

	assert.False(t, mr.Exists(statsKey("alice")))
	assert.False(t, mr.Exists(analyticsKey("alice")))
	assert.True(t, mr.Exists(statsKey("bob")))
}

func TestRedisReportCacheUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache, mr := newTestCache(t)
	mr.Close()

	_, _, err := cache.GetStats(ctx, "alice")
	require.Error(t, err)

	_, err = NewRedisClient(ctx, config.RedisConfig{Addr: mr.Addr()})
	require.Error(t, err)
}

func TestRedisReportCacheCorruptEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set(statsKey("alice"), "{not json"))

	_, ok, err := cache.GetStats(ctx, "alice")
	require.Error(t, err)
	assert.False(t, ok)
}
