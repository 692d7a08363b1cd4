// --- File: internal/platform/directory/tokens_redis.go ---
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore implements relay.TokenStore on the shared directory store.
// One token per user, last write wins; tokens carry no TTL because their
// lifecycle is independent of any connection.
type RedisTokenStore struct {
	client redisClient
	logger *slog.Logger
}

// NewRedisTokenStore is the constructor for the RedisTokenStore.
func NewRedisTokenStore(client redisClient, logger *slog.Logger) (*RedisTokenStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisTokenStore{
		client: client,
		logger: logger.With("component", "redis_token_store"),
	}, nil
}

// Set upserts the user's push token.
func (s *RedisTokenStore) Set(ctx context.Context, userID, token string) error {
	if err := s.client.Set(ctx, tokenKey(userID), token, 0).Err(); err != nil {
		s.logger.Error("Failed to write push token", "user", userID, "err", err)
		return fmt.Errorf("failed to write push token: %w", err)
	}
	s.logger.Debug("Stored push token", "user", userID)
	return nil
}

// Delete removes the user's push token. Deleting an absent token is a no-op.
func (s *RedisTokenStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, tokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	s.logger.Debug("Deleted push token", "user", userID)
	return nil
}

// Fetch returns the user's push token, or "" when none is on file.
func (s *RedisTokenStore) Fetch(ctx context.Context, userID string) (string, error) {
	token, err := s.client.Get(ctx, tokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read push token: %w", err)
	}
	return token, nil
}

func tokenKey(userID string) string { return fmt.Sprintf("push:token:%s", userID) }
