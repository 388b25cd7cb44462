package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
)

func newKey() Key {
	return Key{OwnerID: id.OwnerID(uuid.New()), Registry: "accident", ParentID: "acc-1"}
}

func TestRedisStatsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedisStatsCache(client, WithTTL(time.Minute))
	key := newKey()
	stats := models.Stats{TotalEntries: 2, TotalPersons: 2, TotalEvidence: 3}

	t.Run("miss", func(t *testing.T) {
		gen, err := c.Generation(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, gen)
		_, ok, err := c.Get(ctx, key, gen)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hit after set", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, key, 0, stats))
		got, ok, err := c.Get(ctx, key, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, stats, got)
		assert.Equal(t, time.Minute, mr.TTL(statsKey(key, 0)))
	})

	t.Run("expires with ttl", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, key, 0, stats))
		mr.FastForward(2 * time.Minute)
		_, ok, err := c.Get(ctx, key, 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalidate moves to the next generation", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, key, 0, stats))
		require.NoError(t, c.Invalidate(ctx, key))

		gen, err := c.Generation(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), gen)
		_, ok, err := c.Get(ctx, key, gen)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, minGenerationTTL, mr.TTL(generationKey(key)))
	})

	t.Run("corrupt value is an error", func(t *testing.T) {
		require.NoError(t, mr.Set(statsKey(key, 5), "{not json"))
		_, _, err := c.Get(ctx, key, 5)
		assert.Error(t, err)
	})

	t.Run("server failure surfaces", func(t *testing.T) {
		mr.SetError("LOADING")
		defer mr.SetError("")
		_, err := c.Generation(ctx, key)
		assert.Error(t, err)
		_, _, err = c.Get(ctx, key, 0)
		assert.Error(t, err)
	})
}

func TestInMemoryStatsCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryStatsCache()
	key := newKey()

	_, ok, _ := c.Get(ctx, key, 0)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, 0, models.Stats{TotalEntries: 1}))
	got, ok, _ := c.Get(ctx, key, 0)
	assert.True(t, ok)
	assert.Equal(t, 1, got.TotalEntries)

	other := key
	other.Registry = "training"
	_, ok, _ = c.Get(ctx, other, 0)
	assert.False(t, ok, "registries are cached separately")

	require.NoError(t, c.Invalidate(ctx, key))
	gen, _ := c.Generation(ctx, key)
	assert.Equal(t, uint64(1), gen)
	_, ok, _ = c.Get(ctx, key, gen)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, 0, models.Stats{TotalEntries: 1}))
	_, ok, _ = c.Get(ctx, key, gen)
	assert.False(t, ok, "stats loaded before the write are dropped")
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	key := newKey()
	loads := 0
	load := func(context.Context) (models.Stats, error) {
		loads++
		return models.Stats{TotalEntries: loads}, nil
	}

	c := NewInMemoryStatsCache()
	first, err := ReadThrough(ctx, c, logger, key, load)
	require.NoError(t, err)
	second, err := ReadThrough(ctx, c, logger, key, load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)

	require.NoError(t, c.Invalidate(ctx, key))
	third, err := ReadThrough(ctx, c, logger, key, load)
	require.NoError(t, err)
	assert.Equal(t, 2, third.TotalEntries)

	uncached, err := ReadThrough(ctx, nil, logger, key, load)
	require.NoError(t, err)
	assert.Equal(t, 3, uncached.TotalEntries)
}

func TestReadThroughLoadRacingAWrite(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	caches := map[string]StatsCache{
		"memory": NewInMemoryStatsCache(),
		"redis":  NewRedisStatsCache(client),
	}
	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := newKey()

			stale, err := ReadThrough(ctx, c, logger, key, func(ctx context.Context) (models.Stats, error) {
				// the registry is written while this load is in flight
				require.NoError(t, c.Invalidate(ctx, key))
				return models.Stats{TotalEntries: 0}, nil
			})
			require.NoError(t, err)
			assert.Zero(t, stale.TotalEntries)

			fresh, err := ReadThrough(ctx, c, logger, key, func(context.Context) (models.Stats, error) {
				return models.Stats{TotalEntries: 1}, nil
			})
			require.NoError(t, err)
			assert.Equal(t, 1, fresh.TotalEntries)
		})
	}
}

func TestReadThroughSurvivesCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.SetError("LOADING")

	stats, err := ReadThrough(context.Background(), NewRedisStatsCache(client), slog.New(slog.NewTextHandler(io.Discard, nil)), newKey(),
		func(context.Context) (models.Stats, error) { return models.Stats{TotalEntries: 7}, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalEntries)
}
