package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mhrabovsky/titulky/internal/config"
)

// keyPrefix namespaces every cache key so the addon can share a redis
// database with other tenants.
const keyPrefix = "titulky:"

const opTimeout = 2 * time.Second

func init() {
	Register("redis", newRedisCache)
}

// redisCache stores each entry under its own key with a per-key TTL. Capacity
// is left to the server's maxmemory policy rather than tracked client-side;
// subtitle blobs are small and expire quickly, so an application-level LRU
// would buy nothing here.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(opts Options) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddress,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisCache{client: client, ttl: opts.TTL}, nil
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger := config.GetLogger()
			logger.Error().Err(err).Str("key", key).Msg("Redis cache Get failed")
		}
		return nil, false
	}
	return value, true
}

func (r *redisCache) Set(key string, value []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, keyPrefix+key, value, r.ttl).Err(); err != nil {
		logger := config.GetLogger()
		logger.Error().Err(err).Str("key", key).Msg("Redis cache Set failed")
	}
}

func (r *redisCache) Contains(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := r.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		logger := config.GetLogger()
		logger.Error().Err(err).Str("key", key).Msg("Redis cache Exists failed")
		return false
	}
	return n > 0
}

// Len counts the namespaced keys with a cursor scan. Only used for
// diagnostics, so the cost is acceptable.
func (r *redisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var cursor uint64
	var total int
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			logger := config.GetLogger()
			logger.Error().Err(err).Msg("Redis cache Scan failed")
			return total
		}
		total += len(keys)
		if next == 0 {
			return total
		}
		cursor = next
	}
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
