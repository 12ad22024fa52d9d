package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

// RedisCache stores snapshots in Redis. Every call is bounded by opTimeout.
type RedisCache struct {
	client    *redis.Client
	opTimeout time.Duration
	ttl       time.Duration
}

func NewRedisCache(client *redis.Client, opTimeout, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		opTimeout: opTimeout,
		ttl:       ttl,
	}
}

func (c *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &UnavailableError{Op: "get", Key: key, Err: err}
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return &UnavailableError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return &UnavailableError{Op: "delete", Key: keys[0], Err: err}
	}
	return nil
}

// Keys walks the keyspace with SCAN rather than KEYS so large keyspaces do not block the server.
// opTimeout bounds each SCAN round trip, not the whole walk.
func (c *RedisCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.scanBatch(ctx, cursor, prefix+"*")
		if err != nil {
			return nil, &UnavailableError{Op: "scan", Key: prefix, Err: err}
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (c *RedisCache) scanBatch(ctx context.Context, cursor uint64, match string) ([]string, uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Scan(ctx, cursor, match, scanBatchSize).Result()
}
