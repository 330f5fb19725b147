// Package services provides technical concerns used by the business flows, such as caching
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/utils"
	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps every failure to reach the cache backend
var ErrCacheUnavailable = errors.New("cache not available")

// CounterCache keeps the latest known value of each counter.
// Entries carry the store's row version so writers in different processes
// cannot replace a newer value with an older one.
type CounterCache interface {
	// Get returns the cached value; ok is false on a miss
	Get(ctx context.Context, name string) (value int64, ok bool, err error)
	// Set stores value unless the entry already holds a higher version
	Set(ctx context.Context, name string, value, version int64) error
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// setCounterScript keeps the entry with the highest version.
// KEYS[1] entry, ARGV[1] value, ARGV[2] version, ARGV[3] ttl in milliseconds.
var setCounterScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'value', ARGV[1], 'version', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// RedisCounterCache implements CounterCache on a redis client.
// Each entry is a hash with value and version fields.
type RedisCounterCache struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCounterCache creates a counter cache that stores values under <prefix>counter:<name>
func NewRedisCounterCache(rc *redis.Client, cfg config.CacheConfig) *RedisCounterCache {
	return &RedisCounterCache{
		rc:     rc,
		prefix: cfg.RedisPrefix,
		ttl:    cfg.DefaultTTL,
	}
}

func (c *RedisCounterCache) key(name string) string {
	return c.prefix + utils.CounterCacheKeyPrefix + name
}

func (c *RedisCounterCache) Get(ctx context.Context, name string) (int64, bool, error) {
	if c.rc == nil {
		return 0, false, ErrCacheUnavailable
	}

	raw, err := c.rc.HGet(ctx, c.key(name), "value").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read cached counter %q: %w: %w", name, ErrCacheUnavailable, err)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached counter %q: %w", name, err)
	}
	return value, true, nil
}

func (c *RedisCounterCache) Set(ctx context.Context, name string, value, version int64) error {
	if c.rc == nil {
		return ErrCacheUnavailable
	}

	err := setCounterScript.Run(ctx, c.rc, []string{c.key(name)}, value, version, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to cache counter %q: %w: %w", name, ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCounterCache) Delete(ctx context.Context, name string) error {
	if c.rc == nil {
		return ErrCacheUnavailable
	}

	if err := c.rc.Del(ctx, c.key(name)).Err(); err != nil {
		return fmt.Errorf("failed to evict cached counter %q: %w: %w", name, ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCounterCache) Ping(ctx context.Context) error {
	if c.rc == nil {
		return ErrCacheUnavailable
	}
	return c.rc.Ping(ctx).Err()
}
