package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// tombstone is the version written by Delete. It sorts after every version
// string produced by a DateLayout timestamp, so nothing can overwrite it.
const tombstone = "~deleted"

// Each entry is a hash {version, data}. setScript writes only when the
// stored version is not newer than the candidate.
var setScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and current > ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

var deleteScript = goredis.NewScript(`
redis.call('HDEL', KEYS[1], 'data')
redis.call('HSET', KEYS[1], 'version', ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// ViewCache is a generic JSON-backed Redis cache for read models.
// Every key is namespaced with prefix; a zero TTL keeps keys until deleted.
// Cache failures are logged and reported as misses, never returned.
//
// Writes are ordered by the version function: a Set carrying an older version
// than the stored one is dropped, and a deleted key stays deleted. Version
// strings must sort in write order.
type ViewCache[T any] struct {
	client  *goredis.Client
	prefix  string
	ttl     time.Duration
	version func(*T) string
	logger  *slog.Logger
}

// NewViewCache creates a ViewCache backed by the provided Redis client.
// A nil version func gives every write the same version, so the last write
// wins until the key is deleted.
func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration, version func(*T) string) *ViewCache[T] {
	if version == nil {
		version = func(*T) string { return "" }
	}
	return &ViewCache[T]{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		version: version,
		logger:  slog.Default().With("component", "view_cache", "prefix", prefix),
	}
}

// Get returns (nil, false) on a miss, a deleted key, a Redis error or a
// payload that no longer decodes into T.
func (c *ViewCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.HGet(ctx, c.prefix+key, "data").Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.WarnContext(ctx, "cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return &v, true
}

// Set stores value unless the cache already holds a newer version of key or
// key has been deleted.
func (c *ViewCache[T]) Set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.ErrorContext(ctx, "cache marshal failed", "key", key, "error", err)
		return
	}
	err = setScript.Run(ctx, c.client, []string{c.prefix + key},
		c.version(value), data, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

// Delete drops the cached value and leaves a tombstone so that a slower
// writer holding an older copy cannot bring it back.
func (c *ViewCache[T]) Delete(ctx context.Context, key string) {
	err := deleteScript.Run(ctx, c.client, []string{c.prefix + key}, tombstone, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
	}
}
