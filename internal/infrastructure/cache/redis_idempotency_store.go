package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/domain/social"
	"github.com/postpilot/backend/internal/infrastructure/config"
)

// RedisIdempotencyStore maps (post, platform) pairs to the queue entry they
// produced. Suitable for distributed deployments where multiple instances
// need to share idempotency state.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store
func NewRedisIdempotencyStore(cfg *config.RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: "enqueue:idempotency:",
	}, nil
}

// NewRedisIdempotencyStoreWithClient creates a store with an existing Redis
// client. Useful for testing or when sharing a client across components.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = "enqueue:idempotency:"
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisIdempotencyStore) key(postID uuid.UUID, platform social.Platform) string {
	return s.keyPrefix + postID.String() + ":" + platform.String()
}

// Get returns the entry recorded for the pair, if any
func (s *RedisIdempotencyStore) Get(ctx context.Context, postID uuid.UUID, platform social.Platform) (uuid.UUID, bool, error) {
	value, err := s.client.Get(ctx, s.key(postID, platform)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	entryID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency value %q: %w", value, err)
	}
	return entryID, true, nil
}

// Set records the entry for the pair with a TTL. SETNX keeps the first
// writer's entry when two enqueues race.
func (s *RedisIdempotencyStore) Set(ctx context.Context, postID uuid.UUID, platform social.Platform, entryID uuid.UUID, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, s.key(postID, platform), entryID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

var _ publishing.IdempotencyStore = (*RedisIdempotencyStore)(nil)
