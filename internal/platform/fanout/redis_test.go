// --- File: internal/platform/fanout/redis_test.go ---
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// newTestLogger creates a discard logger for tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capturingPublisher records the channel and payload of each publish.
type capturingPublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *capturingPublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	if raw, ok := message.([]byte); ok {
		p.payload = raw
	}
	return redis.NewIntResult(1, p.err)
}

func TestRedisBusPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("Frame is marshaled onto the peer instance channel", func(t *testing.T) {
		pub := &capturingPublisher{}
		bus := &RedisBus{pub: pub, logger: newTestLogger()}

		raw, err := json.Marshal(relay.ReadPayload{UserID: "user-1", ChatID: "chat-9"})
		require.NoError(t, err)
		frame := &relay.Frame{
			TargetUserID: "user-1",
			Event:        relay.Event{Kind: relay.KindRead, Payload: raw},
		}

		err = bus.Publish(ctx, "inst-b", frame)
		require.NoError(t, err)

		assert.Equal(t, "relay:instance:inst-b", pub.channel)

		var decoded relay.Frame
		require.NoError(t, json.Unmarshal(pub.payload, &decoded))
		assert.Equal(t, "user-1", decoded.TargetUserID)
		assert.Equal(t, relay.KindRead, decoded.Event.Kind)
	})

	t.Run("Publish error is surfaced to the caller", func(t *testing.T) {
		pub := &capturingPublisher{err: errors.New("connection refused")}
		bus := &RedisBus{pub: pub, logger: newTestLogger()}

		err := bus.Publish(ctx, "inst-b", &relay.Frame{TargetUserID: "user-1"})
		assert.Error(t, err)
	})
}

func TestInstanceChannelNaming(t *testing.T) {
	assert.Equal(t, "relay:instance:abc-123", instanceChannel("abc-123"))
	assert.Equal(t, "relay.instance.abc-123", instanceSubject("abc-123"))
}

func TestRedisBusCloseWithoutSubscribe(t *testing.T) {
	bus := &RedisBus{logger: newTestLogger()}
	assert.NoError(t, bus.Close())
}
