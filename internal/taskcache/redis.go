package taskcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ark:task:"

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)

// RedisConfig holds the connection settings for RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache stores task payloads in Redis with a per-key TTL. It owns its
// client.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("taskcache: redis ping %s: %w", cfg.Addr, err)
	}

	return &RedisCache{rdb: rdb}, nil
}

// Get returns the payload stored for taskID.
func (r *RedisCache) Get(ctx context.Context, taskID string) ([]byte, error) {
	raw, err := r.rdb.Get(ctx, key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("taskcache: redis get: %w", err)
	}
	return raw, nil
}

// Set stores raw under taskID with the given TTL.
func (r *RedisCache) Set(ctx context.Context, taskID string, raw []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key(taskID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("taskcache: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

func key(taskID string) string {
	return keyPrefix + taskID
}
