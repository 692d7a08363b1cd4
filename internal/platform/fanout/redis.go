// --- File: internal/platform/fanout/redis.go ---
// Package fanout contains the cross-instance fan-out bus implementations. An
// event accepted on one instance reaches the instance that physically holds
// the target connection through one of these buses.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// redisPublisher defines the publish half of the interface we need from
// go-redis. Subscribing needs the concrete client.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisBus implements relay.Bus over Redis pub/sub. Each instance subscribes
// to its own channel; frames are fire-and-forget, so an instance that is down
// simply misses them, which matches the relay's best-effort contract.
type RedisBus struct {
	client *redis.Client
	pub    redisPublisher
	logger *slog.Logger

	mu  sync.Mutex
	sub *redis.PubSub
}

// NewRedisBus is the constructor for the RedisBus.
func NewRedisBus(client *redis.Client, logger *slog.Logger) (*RedisBus, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisBus{
		client: client,
		pub:    client,
		logger: logger.With("component", "redis_fanout"),
	}, nil
}

// Publish sends a frame to the channel of the instance holding the target.
func (b *RedisBus) Publish(ctx context.Context, instanceID string, frame *relay.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal fan-out frame: %w", err)
	}
	if err := b.pub.Publish(ctx, instanceChannel(instanceID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish fan-out frame: %w", err)
	}
	return nil
}

// Subscribe attaches the handler to this instance's channel. It returns once
// the subscription is confirmed, so no frame published afterwards is lost.
func (b *RedisBus) Subscribe(ctx context.Context, instanceID string, handler relay.FrameHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return fmt.Errorf("fan-out bus is already subscribed")
	}

	channel := instanceChannel(instanceID)
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to fan-out channel %s: %w", channel, err)
	}
	b.sub = sub
	b.logger.Info("Subscribed to fan-out channel", "channel", channel)

	go func() {
		for msg := range sub.Channel() {
			var frame relay.Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn("Discarding malformed fan-out frame", "err", err)
				continue
			}
			handler(ctx, &frame)
		}
	}()
	return nil
}

// Close tears down the subscription. The underlying client is owned by the
// caller and is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	b.sub = nil
	return err
}

func instanceChannel(instanceID string) string {
	return fmt.Sprintf("relay:instance:%s", instanceID)
}
