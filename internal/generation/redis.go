package generation

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores results in Redis so multiple director instances can
// share one generation cache. Keys are namespaced as "{prefix}:{key}".
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing go-redis client. An empty prefix
// defaults to "gen"; a zero ttl keeps entries forever, matching the
// in-process cache's lifetime semantics.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "gen"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get fetches and decodes the cached result for key.
func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	data, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[RedisCache] get %s: %v", key, err)
		}
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		log.Printf("[RedisCache] corrupt entry %s: %v", key, err)
		return Result{}, false
	}
	return res, true
}

// Put encodes and stores a result. Storage errors are logged and
// swallowed; a miss on the next probe triggers regeneration.
func (c *RedisCache) Put(ctx context.Context, key string, res Result) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("[RedisCache] encode %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		log.Printf("[RedisCache] put %s: %v", key, err)
	}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}
