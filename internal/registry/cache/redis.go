package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"safetyaudit/internal/registry/models"
)

const (
	statsKeyPrefix   = "safetyaudit:stats:"
	defaultStatsTTL  = 5 * time.Minute
	minGenerationTTL = 24 * time.Hour
)

// RedisStatsCache shares stats between server instances. Values expire after
// the configured TTL even when no write invalidates them.
type RedisStatsCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

type RedisOption func(*RedisStatsCache)

func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisStatsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedisStatsCache(client redis.UniversalClient, opts ...RedisOption) *RedisStatsCache {
	c := &RedisStatsCache{client: client, ttl: defaultStatsTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisStatsCache) Generation(ctx context.Context, key Key) (uint64, error) {
	gen, err := c.client.Get(ctx, generationKey(key)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stats generation: %w", err)
	}
	return gen, nil
}

func (c *RedisStatsCache) Get(ctx context.Context, key Key, gen uint64) (models.Stats, bool, error) {
	raw, err := c.client.Get(ctx, statsKey(key, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Stats{}, false, nil
	}
	if err != nil {
		return models.Stats{}, false, fmt.Errorf("get cached stats: %w", err)
	}
	var stats models.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return models.Stats{}, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return stats, true, nil
}

// Set stores stats under gen. Stats stored under an outdated generation are
// never read again and expire with the TTL.
func (c *RedisStatsCache) Set(ctx context.Context, key Key, gen uint64, stats models.Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return c.client.Set(ctx, statsKey(key, gen), raw, c.ttl).Err()
}

// Invalidate bumps the generation. The counter outlives every stats value so
// an expired counter can only restart at a generation with nothing stored.
func (c *RedisStatsCache) Invalidate(ctx context.Context, key Key) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(key))
		pipe.Expire(ctx, generationKey(key), max(minGenerationTTL, 2*c.ttl))
		return nil
	})
	if err != nil {
		return fmt.Errorf("bump stats generation: %w", err)
	}
	return nil
}

func generationKey(key Key) string {
	return statsKeyPrefix + "gen:" + key.String()
}

func statsKey(key Key, gen uint64) string {
	return statsKeyPrefix + key.String() + ":" + strconv.FormatUint(gen, 10)
}
