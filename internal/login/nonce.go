package login

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"oauthbridge.io/bridge/internal/config"
)

// NonceStore records used state ids.
type NonceStore interface {
	// Consume reports whether id was unused, marking it used for ttl.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisNonceStore keeps used state ids in Redis with SETNX.
type RedisNonceStore struct {
	client setNXer
	prefix string
}

// NewRedisNonceStore wraps a Redis client.
func NewRedisNonceStore(client setNXer) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: "oauth-bridge:state:"}
}

// Consume implements NonceStore.
func (s *RedisNonceStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
