package nonce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// keyPrefix is the Redis key prefix for nonces
	keyPrefix = "nonce"
)

// RedisStore implements Store interface using Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Compile-time interface compliance check
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-based nonce store with default TTL
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return NewRedisStoreWithTTL(client, DefaultTTL, logger)
}

// NewRedisStoreWithTTL creates a new Redis-based nonce store with custom TTL
func NewRedisStoreWithTTL(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// buildKey creates a Redis key from address
// Format: nonce:{lowercase_address}
func buildKey(address string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, strings.ToLower(address))
}

// Issue stores a new random nonce with TTL, overwriting any previous one
func (s *RedisStore) Issue(ctx context.Context, address string) (string, error) {
	value := uuid.NewString()

	if err := s.client.Set(ctx, buildKey(address), value, s.ttl).Err(); err != nil {
		s.logger.Error("failed to issue nonce",
			zap.String("address", address),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to issue nonce: %w", err)
	}

	s.logger.Debug("nonce issued",
		zap.String("address", address),
		zap.Duration("ttl", s.ttl),
	)
	return value, nil
}

// Take consumes the outstanding nonce using GETDEL
func (s *RedisStore) Take(ctx context.Context, address string) (string, error) {
	value, err := s.client.GetDel(ctx, buildKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNonceNotFound
	}
	if err != nil {
		s.logger.Error("failed to take nonce",
			zap.String("address", address),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to take nonce: %w", err)
	}

	s.logger.Debug("nonce consumed",
		zap.String("address", address),
	)
	return value, nil
}
