package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Compile-time check: Redis implements Cache.
var _ Cache = (*Redis)(nil)

const revokedSetKey = "logsift:revoked_tokens"

// RedisConfig holds connection parameters for the Redis cache driver.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Redis is the shared cache driver for multi-replica deployments.
type Redis struct {
	client rueidis.Client
}

// NewRedis creates a Redis-backed cache via rueidis.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Redis{client: client}, nil
}

// Get retrieves a value by key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := r.client.B().Get().Key(key).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("cache GET %s: %w", key, err)
	}
	return data, nil
}

// SetWithTTL stores a value with an expiration.
func (r *Redis) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := r.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache SET %s: %w", key, err)
	}
	return nil
}

// AddRevoked adds a token ID to the shared revoked set.
func (r *Redis) AddRevoked(ctx context.Context, tokenID string) error {
	cmd := r.client.B().Sadd().Key(revokedSetKey).Member(tokenID).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache SADD revoked: %w", err)
	}
	return nil
}

// IsRevoked reports revoked-set membership.
func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	cmd := r.client.B().Sismember().Key(revokedSetKey).Member(tokenID).Build()
	ok, err := r.client.Do(ctx, cmd).AsBool()
	if err != nil {
		return false, fmt.Errorf("cache SISMEMBER revoked: %w", err)
	}
	return ok, nil
}

// Close shuts down the client.
func (r *Redis) Close() {
	r.client.Close()
}
