package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedTokenKeyPrefix = "revoked_token:"

// RevocationStore records session tokens invalidated before their expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocationStore keeps revoked token IDs in Redis until the token
// would have expired anyway.
type RedisRevocationStore struct {
	client *redis.Client
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

// NewRedisRevocationStore wraps an existing Redis client.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// Revoke marks tokenID as revoked for ttl. Non-positive ttls are a no-op
// because the token is already expired.
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedTokenKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked. Redis errors are returned
// so callers can refuse the request instead of guessing.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, revokedTokenKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// NopRevocationStore is used when no Redis server is configured. Sign-out is
// then client-side only.
type NopRevocationStore struct{}

var _ RevocationStore = NopRevocationStore{}

func (NopRevocationStore) Revoke(context.Context, string, time.Duration) error { return nil }

func (NopRevocationStore) IsRevoked(context.Context, string) (bool, error) { return false, nil }
