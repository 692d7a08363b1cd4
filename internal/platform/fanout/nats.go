// --- File: internal/platform/fanout/nats.go ---
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// NatsBus implements relay.Bus over a NATS subject per instance. Core NATS
// delivery is at-most-once to live subscribers, the same contract as the
// Redis bus.
type NatsBus struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNatsBus is the constructor for the NatsBus. The connection is owned by
// the caller.
func NewNatsBus(conn *nats.Conn, logger *slog.Logger) (*NatsBus, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	return &NatsBus{
		conn:   conn,
		logger: logger.With("component", "nats_fanout"),
	}, nil
}

// Publish sends a frame to the subject of the instance holding the target.
func (b *NatsBus) Publish(_ context.Context, instanceID string, frame *relay.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal fan-out frame: %w", err)
	}
	if err := b.conn.Publish(instanceSubject(instanceID), payload); err != nil {
		return fmt.Errorf("failed to publish fan-out frame: %w", err)
	}
	return nil
}

// Subscribe attaches the handler to this instance's subject.
func (b *NatsBus) Subscribe(ctx context.Context, instanceID string, handler relay.FrameHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return fmt.Errorf("fan-out bus is already subscribed")
	}

	subject := instanceSubject(instanceID)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var frame relay.Frame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			b.logger.Warn("Discarding malformed fan-out frame", "err", err)
			return
		}
		handler(ctx, &frame)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to fan-out subject %s: %w", subject, err)
	}
	b.sub = sub
	b.logger.Info("Subscribed to fan-out subject", "subject", subject)
	return nil
}

// Close drops the subscription; the connection is left open for the owner.
func (b *NatsBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	return err
}

func instanceSubject(instanceID string) string {
	return fmt.Sprintf("relay.instance.%s", instanceID)
}
