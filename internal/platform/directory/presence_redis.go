// --- File: internal/platform/directory/presence_redis.go ---
// Package directory contains the shared-directory-store adapters. The store is
// the single source of truth for the user->connection and user->push-token
// mappings; instances hold connection handles, never directory state.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisPresenceStore implements relay.PresenceStore. It keeps two key
// families in step:
//  1. `presence:user:{userId}`: the forward entry (connection + instance).
//  2. `presence:conn:{connectionId}`: the reverse index, so a disconnect
//     resolves to its user in a single point read instead of a key scan.
//
// There is no locking: correctness relies on per-key last-writer-wins and on
// the reverse index keeping cleanup and registration on disjoint keys.
type RedisPresenceStore struct {
	client redisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisPresenceStore is the constructor for the RedisPresenceStore.
// The ttl is a safety net against entries leaked by a crashed instance that
// never ran cleanup; it is refreshed on every register.
func NewRedisPresenceStore(client redisClient, ttl time.Duration, logger *slog.Logger) (*RedisPresenceStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisPresenceStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_presence_store"),
	}, nil
}

// Register upserts the forward entry and the reverse index for userID.
// A prior entry is replaced unconditionally (last register wins); its
// superseded reverse-index key is deleted so a later disconnect of the dead
// connection cannot resolve back to this user.
func (s *RedisPresenceStore) Register(ctx context.Context, userID string, entry relay.PresenceEntry) error {
	log := s.logger.With("user", userID, "conn", entry.ConnectionID)

	prior, err := s.Lookup(ctx, userID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %w", err)
	}

	if err := s.client.Set(ctx, userKey(userID), payload, s.ttl).Err(); err != nil {
		log.Error("Failed to write presence entry", "err", err)
		return fmt.Errorf("failed to write presence entry: %w", err)
	}
	if err := s.client.Set(ctx, connKey(entry.ConnectionID), userID, s.ttl).Err(); err != nil {
		log.Error("Failed to write reverse presence index", "err", err)
		return fmt.Errorf("failed to write reverse presence index: %w", err)
	}

	if prior != nil && prior.ConnectionID != entry.ConnectionID {
		if err := s.client.Del(ctx, connKey(prior.ConnectionID)).Err(); err != nil {
			// The stale reverse entry expires with the TTL; its forward
			// entry is already gone, so cleanup through it is a no-op.
			log.Warn("Failed to delete superseded reverse index", "old_conn", prior.ConnectionID, "err", err)
		}
	}

	log.Debug("Registered presence", "instance", entry.InstanceID)
	return nil
}

// Unregister deletes the user's entry and its reverse-index record.
func (s *RedisPresenceStore) Unregister(ctx context.Context, userID string) error {
	prior, err := s.Lookup(ctx, userID)
	if err != nil {
		return err
	}
	if prior == nil {
		return nil
	}

	if err := s.client.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence entry: %w", err)
	}
	if err := s.client.Del(ctx, connKey(prior.ConnectionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete reverse presence index: %w", err)
	}

	s.logger.Debug("Unregistered presence", "user", userID)
	return nil
}

// Lookup returns the current entry for userID, or nil when absent.
func (s *RedisPresenceStore) Lookup(ctx context.Context, userID string) (*relay.PresenceEntry, error) {
	payload, err := s.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presence entry: %w", err)
	}

	var entry relay.PresenceEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence entry: %w", err)
	}
	return &entry, nil
}

// CleanupByConnection deletes the presence entry bound to connectionID. The
// reverse index makes this a point delete. The forward entry is only removed
// if it still names this connection: the user may already have re-registered
// on a new one, and cleanup of the old connection must not destroy the fresh
// entry.
func (s *RedisPresenceStore) CleanupByConnection(ctx context.Context, connectionID string) error {
	log := s.logger.With("conn", connectionID)

	userID, err := s.client.Get(ctx, connKey(connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		log.Debug("No user bound to connection, nothing to clean up")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reverse presence index: %w", err)
	}

	entry, err := s.Lookup(ctx, userID)
	if err != nil {
		return err
	}
	if entry != nil && entry.ConnectionID == connectionID {
		if err := s.client.Del(ctx, userKey(userID)).Err(); err != nil {
			return fmt.Errorf("failed to delete presence entry: %w", err)
		}
	}

	if err := s.client.Del(ctx, connKey(connectionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete reverse presence index: %w", err)
	}

	log.Debug("Cleaned up presence for connection", "user", userID)
	return nil
}

// --- Private Helpers ---

// key formatting helpers
func userKey(userID string) string { return fmt.Sprintf("presence:user:%s", userID) }
func connKey(connID string) string { return fmt.Sprintf("presence:conn:%s", connID) }
