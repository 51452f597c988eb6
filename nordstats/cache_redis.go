package nordstats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedCache is a second cache layer shared between server nodes. Values are opaque encoded bytes.
type SharedCache interface {
	Get(ctx context.Context, class CacheClass, key string) ([]byte, bool, error)
	Set(ctx context.Context, class CacheClass, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, class CacheClass, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// RedisCacheConfig configures the Redis backed SharedCache.
type RedisCacheConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

const (
	defaultRedisPrefix = "nordstats"
	redisScanBatch     = 200
)

type RedisSharedCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSharedCache connects to Redis and verifies the connection.
func NewRedisSharedCache(ctx context.Context, config *RedisCacheConfig) (*RedisSharedCache, error) {
	if config == nil || strings.TrimSpace(config.Addr) == "" {
		return nil, fmt.Errorf("redis addr required")
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisSharedCache{rdb: rdb, prefix: prefix}, nil
}

func (c *RedisSharedCache) key(class CacheClass, key string) string {
	return c.prefix + ":" + class.String() + ":" + key
}

func (c *RedisSharedCache) Get(ctx context.Context, class CacheClass, key string) ([]byte, bool, error) {
	value, err := c.rdb.Get(ctx, c.key(class, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *RedisSharedCache) Set(ctx context.Context, class CacheClass, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(class, key), value, ttl).Err()
}

func (c *RedisSharedCache) Delete(ctx context.Context, class CacheClass, key string) error {
	return c.rdb.Del(ctx, c.key(class, key)).Err()
}

// Clear removes every key under the configured prefix.
func (c *RedisSharedCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

func (c *RedisSharedCache) Close() error {
	return c.rdb.Close()
}
