package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classplay/novodash/internal/config"
)

// RedisDB is the optional cache in front of the aggregation queries.
// Reports serialize their result sets into it keyed by query shape and
// window; everything still works with Redis absent, just slower.
type RedisDB struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisDB connects and pings. The pool stays small: the only
// callers are dashboard readers, and SQLite is the bottleneck anyway.
func NewRedisDB(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 20,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("report cache connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
	)

	return &RedisDB{client: client, logger: logger}, nil
}

// GetBytes returns the cached payload for key, or redis.Nil when the
// key is absent or expired.
func (r *RedisDB) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return r.client.Get(ctx, key).Bytes()
}

// SetBytes stores a payload under key for the given TTL.
func (r *RedisDB) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Close shuts the pool down.
func (r *RedisDB) Close() error {
	if r.client != nil {
		r.logger.Info("report cache closed")
		return r.client.Close()
	}
	return nil
}

// Health checks if Redis is reachable.
func (r *RedisDB) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
