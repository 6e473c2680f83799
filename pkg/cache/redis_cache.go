package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	opTimeout     = 3 * time.Second
	scanCount     = 100
	deleteBatch   = 100
	pingThrottleD = 5 * time.Second
)

// RedisCache implements Cache on Redis. Connection failures flip it into a
// not-ready state where every operation is a silent miss/no-op; a later
// successful ping brings it back.
type RedisCache struct {
	client   *redis.Client
	ready    atomic.Bool
	lastPing atomic.Int64
}

// NewRedisCache connects to Redis. An unreachable server is logged, not
// fatal: the cache starts not-ready and recovers on its own.
func NewRedisCache(addr, password string) *RedisCache {
	c := &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		slog.Warn("cache unavailable, running without it", "addr", addr, "err", err)
	} else {
		c.ready.Store(true)
	}
	return c
}

// checkReady reports whether operations should be attempted, probing the
// connection at most once per throttle interval while down.
func (c *RedisCache) checkReady(ctx context.Context) bool {
	if c.ready.Load() {
		return true
	}
	now := time.Now().UnixNano()
	last := c.lastPing.Load()
	if now-last < int64(pingThrottleD) || !c.lastPing.CompareAndSwap(last, now) {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return false
	}
	c.ready.Store(true)
	slog.Info("cache connection restored")
	return true
}

func (c *RedisCache) fail(op, key string, err error) {
	c.ready.Store(false)
	slog.Warn("cache operation failed", "op", op, "key", key, "err", err)
}

// Get unmarshals the entry into dest and reports whether it was a hit.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	if !c.checkReady(ctx) {
		return false
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	data, err := c.client.Get(opCtx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.fail("get", key, err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("cache entry undecodable, dropping", "key", key, "err", err)
		c.Delete(ctx, key)
		return false
	}
	return true
}

// Set stores the entry. ttl <= 0 uses DefaultTTL.
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.checkReady(ctx) {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache value not serializable", "key", key, "err", err)
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Set(opCtx, key, data, ttl).Err(); err != nil {
		c.fail("set", key, err)
	}
}

// Delete removes a single key.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if !c.checkReady(ctx) {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Del(opCtx, key).Err(); err != nil && err != redis.Nil {
		c.fail("del", key, err)
	}
}

// DeleteExact removes a known set of hot keys in one round trip.
func (c *RedisCache) DeleteExact(ctx context.Context, keys ...string) {
	if len(keys) == 0 || !c.checkReady(ctx) {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Del(opCtx, keys...).Err(); err != nil && err != redis.Nil {
		c.fail("del", keys[0], err)
	}
}

// DeletePattern scans for keys matching the glob pattern and deletes them in
// bounded batches, so large key spaces never block the backing store.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) {
	if !c.checkReady(ctx) {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, 2*opTimeout)
	defer cancel()

	var batch []string
	deleted := 0
	iter := c.client.Scan(opCtx, 0, pattern, scanCount).Iterator()
	for iter.Next(opCtx) {
		batch = append(batch, iter.Val())
		if len(batch) >= deleteBatch {
			deleted += c.deleteBatch(opCtx, pattern, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.fail("scan", pattern, err)
		return
	}
	if len(batch) > 0 {
		deleted += c.deleteBatch(opCtx, pattern, batch)
	}
	if deleted > 0 {
		slog.Debug("cache invalidated", "pattern", pattern, "keys", deleted)
	}
}

func (c *RedisCache) deleteBatch(ctx context.Context, pattern string, keys []string) int {
	if err := c.client.Del(ctx, keys...).Err(); err != nil && err != redis.Nil {
		c.fail("del", pattern, err)
		return 0
	}
	return len(keys)
}

// Close releases the underlying connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
