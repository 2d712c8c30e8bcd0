package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novascore/engine/internal/enginerr"
)

// RedisStore backs the cache with go-redis v9.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects and pings Redis. The caller decides whether a
// connection failure means falling back to memory.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Set stores a value with the given TTL.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the value for key, or NotFound on a miss.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, enginerr.NotFound("CACHE_MISS", "key %s not cached", key)
	}
	return val, err
}

// Del removes keys.
func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	return r.rdb.Del(ctx, keys...).Err()
}

// Close shuts down the underlying client.
func (r *RedisStore) Close() error { return r.rdb.Close() }

// New connects to Redis when an address is configured, falling back to the
// in-memory store otherwise.
func New(addr, password string, db int) Store {
	logger := log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	if addr != "" {
		store, err := NewRedisStore(addr, password, db)
		if err == nil {
			logger.Printf("✅ redis cache connected at %s", addr)
			return store
		}
		logger.Printf("⚠️ %v, falling back to in-memory cache", err)
	}
	return NewMemoryStore()
}
