package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/config"
	"ecoleafdrive/internal/domain"
)

var _ accounting.ReportCache = (*RedisReportCache)(nil)

// RedisReportCache кеш готовых отчетов в Redis. Отчет аналитики хранится
// вместе с днем, на который он построен, и после полуночи не отдается.
type RedisReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedisReportCache(rdb *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{rdb: rdb, ttl: ttl}
}

type cachedAnalytics struct {
	Day       string            `json:"day"`
	Analytics *domain.Analytics `json:"analytics"`
}

func statsKey(ownerID string) string {
	return fmt.Sprintf("ecoleaf:report:stats:%s", ownerID)
}

func analyticsKey(ownerID string) string {
	return fmt.Sprintf("ecoleaf:report:analytics:%s", ownerID)
}

func (c *RedisReportCache) GetStats(ctx context.Context, ownerID string) (*domain.StorageStats, bool, error) {
	var stats domain.StorageStats
	ok, err := c.get(ctx, statsKey(ownerID), &stats)
	if !ok || err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisReportCache) SetStats(ctx context.Context, ownerID string, stats *domain.StorageStats) error {
	return c.set(ctx, statsKey(ownerID), stats)
}

func (c *RedisReportCache) GetAnalytics(ctx context.Context, ownerID, day string) (*domain.Analytics, bool, error) {
	var cached cachedAnalytics
	ok, err := c.get(ctx, analyticsKey(ownerID), &cached)
	if !ok || err != nil {
		return nil, false, err
	}
	if cached.Day != day || cached.Analytics == nil {
		return nil, false, nil
	}
	return cached.Analytics, true, nil
}

func (c *RedisReportCache) SetAnalytics(ctx context.Context, ownerID, day string, analytics *domain.Analytics) error {
	return c.set(ctx, analyticsKey(ownerID), cachedAnalytics{Day: day, Analytics: analytics})
}

func (c *RedisReportCache) Invalidate(ctx context.Context, ownerID string) error {
	if err := c.rdb.Del(ctx, statsKey(ownerID), analyticsKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate reports: %w", err)
	}
	return nil
}

func (c *RedisReportCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisReportCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
