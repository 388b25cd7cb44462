// Package cache keeps computed registry stats per parent entity. Every write
// to the parent's registry bumps the parent's generation; stats are stored
// under the generation they were loaded at, so a load that raced a write can
// never be served after it.
package cache

import (
	"context"
	"log/slog"
	"sync"

	"safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
)

// Key identifies the stats of one parent entity in one registry.
type Key struct {
	OwnerID  id.OwnerID
	Registry string
	ParentID string
}

func (k Key) String() string {
	return k.Registry + ":" + k.OwnerID.String() + ":" + k.ParentID
}

// StatsCache is satisfied by RedisStatsCache and InMemoryStatsCache.
type StatsCache interface {
	// Generation returns the current write generation of key, 0 if never written.
	Generation(ctx context.Context, key Key) (uint64, error)
	Get(ctx context.Context, key Key, gen uint64) (models.Stats, bool, error)
	Set(ctx context.Context, key Key, gen uint64, stats models.Stats) error
	// Invalidate bumps the generation, orphaning stats stored under older ones.
	Invalidate(ctx context.Context, key Key) error
}

type cachedStats struct {
	gen   uint64
	stats models.Stats
}

type InMemoryStatsCache struct {
	mu    sync.RWMutex
	gens  map[Key]uint64
	stats map[Key]cachedStats
}

func NewInMemoryStatsCache() *InMemoryStatsCache {
	return &InMemoryStatsCache{
		gens:  make(map[Key]uint64),
		stats: make(map[Key]cachedStats),
	}
}

func (c *InMemoryStatsCache) Generation(_ context.Context, key Key) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key], nil
}

func (c *InMemoryStatsCache) Get(_ context.Context, key Key, gen uint64) (models.Stats, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.stats[key]
	if !ok || cached.gen != gen {
		return models.Stats{}, false, nil
	}
	return cached.stats, true, nil
}

// Set drops stats loaded under a generation that is no longer current.
func (c *InMemoryStatsCache) Set(_ context.Context, key Key, gen uint64, stats models.Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[key] {
		return nil
	}
	c.stats[key] = cachedStats{gen: gen, stats: stats}
	return nil
}

func (c *InMemoryStatsCache) Invalidate(_ context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.stats, key)
	return nil
}

// ReadThrough serves stats from c, loading and storing them on a miss. The
// generation is read before loading. Cache failures fall back to load and
// are only logged. A nil cache always loads.
func ReadThrough(ctx context.Context, c StatsCache, logger *slog.Logger, key Key, load func(context.Context) (models.Stats, error)) (models.Stats, error) {
	if c == nil {
		return load(ctx)
	}
	gen, err := c.Generation(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "stats cache generation read failed", "key", key.String(), "error", err)
		return load(ctx)
	}
	stats, ok, err := c.Get(ctx, key, gen)
	if err != nil {
		logger.WarnContext(ctx, "stats cache read failed", "key", key.String(), "error", err)
	} else if ok {
		return stats, nil
	}
	stats, err = load(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	if err := c.Set(ctx, key, gen, stats); err != nil {
		logger.WarnContext(ctx, "stats cache write failed", "key", key.String(), "error", err)
	}
	return stats, nil
}
