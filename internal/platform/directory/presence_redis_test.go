// --- File: internal/platform/directory/presence_redis_test.go ---
package directory_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-presence-relay/internal/platform/directory"
	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// newTestLogger creates a discard logger for tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRedis is an in-memory stand-in for the narrow go-redis surface the
// directory stores use. failing[key] forces an error for any operation on
// that key.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	failing map[string]error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data:    make(map[string]string),
		failing: make(map[string]error),
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[key]; ok {
		return redis.NewStatusResult("", err)
	}
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[key]; ok {
		return redis.NewStringResult("", err)
	}
	value, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if err, ok := f.failing[key]; ok {
			return redis.NewIntResult(0, err)
		}
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func newPresenceFixture(t *testing.T) (*fakeRedis, *directory.RedisPresenceStore) {
	t.Helper()
	rdb := newFakeRedis()
	store, err := directory.NewRedisPresenceStore(rdb, 24*time.Hour, newTestLogger())
	require.NoError(t, err)
	return rdb, store
}

func TestRedisPresenceStore_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("Fresh register writes forward entry and reverse index", func(t *testing.T) {
		rdb, store := newPresenceFixture(t)
		entry := relay.PresenceEntry{ConnectionID: "conn-1", InstanceID: "inst-a", ConnectedAt: 100}

		err := store.Register(ctx, "user-1", entry)
		require.NoError(t, err)

		raw, ok := rdb.get("presence:user:user-1")
		require.True(t, ok)
		var stored relay.PresenceEntry
		require.NoError(t, json.Unmarshal([]byte(raw), &stored))
		assert.Equal(t, entry, stored)

		userID, ok := rdb.get("presence:conn:conn-1")
		require.True(t, ok)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("Re-register on a new connection deletes the superseded reverse index", func(t *testing.T) {
		rdb, store := newPresenceFixture(t)

		err := store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-old", InstanceID: "inst-a"})
		require.NoError(t, err)
		err = store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-new", InstanceID: "inst-b"})
		require.NoError(t, err)

		_, ok := rdb.get("presence:conn:conn-old")
		assert.False(t, ok, "superseded reverse index should be deleted")

		userID, ok := rdb.get("presence:conn:conn-new")
		require.True(t, ok)
		assert.Equal(t, "user-1", userID)

		entry, err := store.Lookup(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "conn-new", entry.ConnectionID)
		assert.Equal(t, "inst-b", entry.InstanceID)
	})

	t.Run("Failure - forward write error is returned", func(t *testing.T) {
		rdb, store := newPresenceFixture(t)
		rdb.failing["presence:user:user-1"] = errors.New("redis down")

		err := store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-1"})
		assert.Error(t, err)
	})
}

func TestRedisPresenceStore_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("Absent user returns nil without error", func(t *testing.T) {
		_, store := newPresenceFixture(t)

		entry, err := store.Lookup(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Present user round-trips the entry", func(t *testing.T) {
		_, store := newPresenceFixture(t)
		want := relay.PresenceEntry{ConnectionID: "conn-1", InstanceID: "inst-a", ConnectedAt: 42}
		require.NoError(t, store.Register(ctx, "user-1", want))

		got, err := store.Lookup(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	})
}

func TestRedisPresenceStore_Unregister(t *testing.T) {
	ctx := context.Background()

	t.Run("Removes both forward entry and reverse index", func(t *testing.T) {
		rdb, store := newPresenceFixture(t)
		require.NoError(t, store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-1"}))

		err := store.Unregister(ctx, "user-1")
		require.NoError(t, err)

		_, ok := rdb.get("presence:user:user-1")
		assert.False(t, ok)
		_, ok = rdb.get("presence:conn:conn-1")
		assert.False(t, ok)
	})

	t.Run("Unregistering an absent user is a no-op", func(t *testing.T) {
		_, store := newPresenceFixture(t)
		assert.NoError(t, store.Unregister(ctx, "nobody"))
	})
}

func TestRedisPresenceStore_CleanupByConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("Cleanup removes the entry the connection owns", func(t *testing.T) {
		rdb, store := newPresenceFixture(t)
		require.NoError(t, store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-1"}))

		err := store.CleanupByConnection(ctx, "conn-1")
		require.NoError(t, err)

		_, ok := rdb.get("presence:user:user-1")
		assert.False(t, ok)
		_, ok = rdb.get("presence:conn:conn-1")
		assert.False(t, ok)
	})

	t.Run("Cleanup with no binding is a no-op", func(t *testing.T) {
		_, store := newPresenceFixture(t)
		assert.NoError(t, store.CleanupByConnection(ctx, "conn-unknown"))
	})

	t.Run("Cleanup of a superseded connection keeps the fresh entry", func(t *testing.T) {
		// Simulates the disconnect of an old socket racing a re-register:
		// the stale reverse index still exists, but the forward entry now
		// names the new connection and must survive.
		rdb, store := newPresenceFixture(t)
		require.NoError(t, store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-old"}))
		// Keep the old reverse index around, as if the supersede delete lost the race.
		rdb.mu.Lock()
		rdb.data["presence:conn:conn-old"] = "user-1"
		rdb.mu.Unlock()
		require.NoError(t, store.Register(ctx, "user-1", relay.PresenceEntry{ConnectionID: "conn-new"}))
		rdb.mu.Lock()
		rdb.data["presence:conn:conn-old"] = "user-1"
		rdb.mu.Unlock()

		err := store.CleanupByConnection(ctx, "conn-old")
		require.NoError(t, err)

		entry, err := store.Lookup(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, entry, "fresh entry must survive stale cleanup")
		assert.Equal(t, "conn-new", entry.ConnectionID)

		_, ok := rdb.get("presence:conn:conn-old")
		assert.False(t, ok, "stale reverse index should still be removed")
	})
}
