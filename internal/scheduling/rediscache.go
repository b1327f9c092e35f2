package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

const redisKeyPrefix = "scheduling:directory:"

// RedisCache is a Cache backed by Redis for multi-instance deployments.
// Redis failures degrade to cache misses; they never fail a resolution.
type RedisCache struct {
	rdb    *redis.Client
	logger *logging.Logger
}

// NewRedisCache wraps a redis client as a directory cache.
func NewRedisCache(rdb *redis.Client, logger *logging.Logger) *RedisCache {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisCache{rdb: rdb, logger: logger.Component("directory-cache")}
}

func (c *RedisCache) Get(ctx context.Context, providerID string) (ProviderCalendarInfo, bool) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+providerID).Result()
	if errors.Is(err, redis.Nil) {
		return ProviderCalendarInfo{}, false
	}
	if err != nil {
		c.logger.Warn("redis cache read failed", "provider_id", providerID, "error", err)
		return ProviderCalendarInfo{}, false
	}
	var info ProviderCalendarInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		c.logger.Warn("redis cache entry corrupt, dropping", "provider_id", providerID, "error", err)
		c.rdb.Del(ctx, redisKeyPrefix+providerID)
		return ProviderCalendarInfo{}, false
	}
	return info, true
}

func (c *RedisCache) Set(ctx context.Context, providerID string, info ProviderCalendarInfo, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		c.logger.Warn("redis cache encode failed", "provider_id", providerID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+providerID, data, ttl).Err(); err != nil {
		c.logger.Warn("redis cache write failed", "provider_id", providerID, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, providerID string) {
	if err := c.rdb.Del(ctx, redisKeyPrefix+providerID).Err(); err != nil {
		c.logger.Warn("redis cache delete failed", "provider_id", providerID, "error", err)
	}
}

func (c *RedisCache) Flush(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis cache scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("redis cache flush failed", "error", err)
	}
}
