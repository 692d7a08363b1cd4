// Package relay contains the public domain models, interfaces, and dependency
// definitions for the presence-relay service. It defines the contract for
// interacting with the service.
package relay

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the closed set of event types carried over a connection.
type Kind string

const (
	KindRegister        Kind = "register"
	KindUnregister      Kind = "unregister"
	KindMessage         Kind = "message"
	KindRead            Kind = "read"
	KindAllRead         Kind = "allRead"
	KindFriend          Kind = "friend"
	KindSentRequest     Kind = "sentRequest"
	KindReceivedRequest Kind = "receivedRequest"
)

// IsRelayable reports whether events of this kind are routed to a recipient
// connection. The presence-mutating kinds (register/unregister) are handled by
// the connection lifecycle, never relayed.
func (k Kind) IsRelayable() bool {
	switch k {
	case KindMessage, KindRead, KindAllRead, KindFriend, KindSentRequest, KindReceivedRequest:
		return true
	}
	return false
}

// NeedsPushFallback reports whether events of this kind get a best-effort push
// notification attempt. Only message-class events need the user's attention
// when the app is backgrounded; receipts and request updates do not.
func (k Kind) NeedsPushFallback() bool {
	return k == KindMessage
}

// Event is one framed, typed message as it arrives from a connection and as it
// is re-emitted to the resolved recipient. The payload stays opaque to the
// relay: it is a transparent pass-through, so the raw bytes are forwarded
// unchanged rather than decoded and re-encoded.
type Event struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// TargetUserID extracts the routing target from the payload. Every relayable
// payload carries its recipient in the userId field.
func (e *Event) TargetUserID() (string, error) {
	var target struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(e.Payload, &target); err != nil {
		return "", fmt.Errorf("failed to decode event target: %w", err)
	}
	return target.UserID, nil
}

// PresenceEntry records where a user is currently reachable. There is at most
// one entry per user at any instant; the most recent register wins.
type PresenceEntry struct {
	ConnectionID string `json:"connectionId"`
	InstanceID   string `json:"instanceId"`
	ConnectedAt  int64  `json:"connectedAt"`
}

// Frame is the unit published on the cross-instance fan-out bus: one event
// addressed to the instance that holds the target's connection.
type Frame struct {
	TargetUserID string `json:"targetUserId"`
	Event        Event  `json:"event"`
}

// --- Payload shapes ---
//
// Clients see these structs; the relay itself only ever decodes the userId
// field (and the dispatcher the message payload, to build a notification).

// RegisterPayload binds (or unbinds) a user to the emitting connection.
type RegisterPayload struct {
	UserID string `json:"userId"`
}

// MessagePayload is a chat message addressed to UserID. Title and Body are
// provided by the sender and feed the push notification verbatim.
type MessagePayload struct {
	UserID   string          `json:"userId"`
	ChatID   string          `json:"chatId"`
	Chat     json.RawMessage `json:"chat,omitempty"`
	ChatName string          `json:"chatName,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
	Title    string          `json:"title,omitempty"`
	Body     string          `json:"body,omitempty"`
}

// ReadPayload notifies UserID that ReaderID has read a message in ChatID.
type ReadPayload struct {
	UserID   string          `json:"userId"`
	ChatID   string          `json:"chatId"`
	ReaderID string          `json:"readerId"`
	Chat     json.RawMessage `json:"chat,omitempty"`
	ChatName string          `json:"chatName,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
}

// AllReadPayload notifies UserID that ReaderID has read everything in ChatID.
type AllReadPayload struct {
	UserID   string `json:"userId"`
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
}

// FriendPayload notifies UserID of a change involving FriendID.
type FriendPayload struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

// SentRequestPayload notifies UserID about a friend request they sent.
type SentRequestPayload struct {
	UserID   string          `json:"userId"`
	Request  json.RawMessage `json:"request"`
	IsUpdate bool            `json:"isUpdate,omitempty"`
	IsDelete bool            `json:"isDelete,omitempty"`
}

// ReceivedRequestPayload notifies UserID about a friend request they received.
type ReceivedRequestPayload struct {
	UserID   string          `json:"userId"`
	Request  json.RawMessage `json:"request"`
	IsCreate bool            `json:"isCreate,omitempty"`
	IsDelete bool            `json:"isDelete,omitempty"`
}
