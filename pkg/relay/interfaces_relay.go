/*
File: pkg/relay/interfaces_relay.go
Description: Defines the narrow contracts between the relay core and the
shared directory store, fan-out bus, and push provider.
*/
package relay

import (
	"context"
)

// PresenceStore owns the user -> connection mapping in the shared directory
// store. All instances mutate presence only through this interface; the store
// is the single source of truth and entries are last-writer-wins per key.
type PresenceStore interface {
	// Register upserts the presence entry for userID, replacing any prior
	// entry unconditionally, and keeps the reverse connection index in step.
	// Re-registering is not an error.
	Register(ctx context.Context, userID string, entry PresenceEntry) error

	// Unregister deletes the entry for userID and its reverse-index record.
	// Idempotent: deleting an absent entry is not an error.
	Unregister(ctx context.Context, userID string) error

	// Lookup returns the current entry for userID, or nil when the user has
	// no live connection. Absence is a branch outcome, not an error.
	Lookup(ctx context.Context, userID string) (*PresenceEntry, error)

	// CleanupByConnection deletes the presence entry bound to connectionID,
	// resolved through the reverse index in a single point read rather than a
	// scan. A no-op when nothing is bound to the connection.
	CleanupByConnection(ctx context.Context, connectionID string) error
}

// TokenStore owns the user -> push-token mapping. Token lifecycle is
// independent of connection lifecycle: a user may be offline and still hold a
// valid token.
type TokenStore interface {
	// Set upserts the user's token; last write wins, no history is kept.
	Set(ctx context.Context, userID, token string) error

	// Delete removes the user's token. Idempotent.
	Delete(ctx context.Context, userID string) error

	// Fetch returns the user's token, or "" when none is on file.
	Fetch(ctx context.Context, userID string) (string, error)
}

// FrameHandler consumes one fan-out frame addressed to this instance.
type FrameHandler func(ctx context.Context, frame *Frame)

// Bus is the cross-instance fan-out bus. An event published for an instance
// reaches every subscriber of that instance's channel; delivery is
// best-effort with no replay for late subscribers.
type Bus interface {
	Publish(ctx context.Context, instanceID string, frame *Frame) error
	Subscribe(ctx context.Context, instanceID string, handler FrameHandler) error
	Close() error
}

// PushSender is the push-notification provider boundary. A failed send is
// non-fatal to the caller; there is no delivery guarantee either way.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Deliverer writes an event to a connection held by this instance. It reports
// false when the connection is no longer held; the caller treats that the
// same as a target that was never connected.
type Deliverer interface {
	Deliver(connectionID string, event *Event) bool
}
