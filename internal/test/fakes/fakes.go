// Package fakes provides in-memory test doubles (fakes) for the service's
// dependencies. These are used in the local run mode and in integration tests.
package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

var errStoreUnavailable = errors.New("fake store unavailable")

// --- Presence directory ---

// PresenceStore is an in-memory presence directory keeping the same forward
// and reverse mappings the Redis-backed store does.
type PresenceStore struct {
	mu      sync.Mutex
	byUser  map[string]relay.PresenceEntry
	byConn  map[string]string
	FailAll bool // when set, every call returns an error
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		byUser: make(map[string]relay.PresenceEntry),
		byConn: make(map[string]string),
	}
}

func (s *PresenceStore) Register(_ context.Context, userID string, entry relay.PresenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return errStoreUnavailable
	}
	if prior, ok := s.byUser[userID]; ok && prior.ConnectionID != entry.ConnectionID {
		delete(s.byConn, prior.ConnectionID)
	}
	s.byUser[userID] = entry
	s.byConn[entry.ConnectionID] = userID
	return nil
}

func (s *PresenceStore) Unregister(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return errStoreUnavailable
	}
	if prior, ok := s.byUser[userID]; ok {
		delete(s.byConn, prior.ConnectionID)
		delete(s.byUser, userID)
	}
	return nil
}

func (s *PresenceStore) Lookup(_ context.Context, userID string) (*relay.PresenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return nil, errStoreUnavailable
	}
	entry, ok := s.byUser[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *PresenceStore) CleanupByConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return errStoreUnavailable
	}
	userID, ok := s.byConn[connectionID]
	if !ok {
		return nil
	}
	// A reconnect may have replaced the forward entry already.
	if entry, ok := s.byUser[userID]; ok && entry.ConnectionID == connectionID {
		delete(s.byUser, userID)
	}
	delete(s.byConn, connectionID)
	return nil
}

// --- Token store ---

type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]string)}
}

func (s *TokenStore) Set(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
	return nil
}

func (s *TokenStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}

func (s *TokenStore) Fetch(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[userID], nil
}

// --- Fan-out bus ---

// Bus delivers frames synchronously to whichever handler is subscribed under
// the target instance ID. Sharing one Bus between two service instances in a
// test gives a working cross-instance path without a broker.
type Bus struct {
	mu       sync.Mutex
	handlers map[string]relay.FrameHandler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string]relay.FrameHandler)}
}

func (b *Bus) Publish(ctx context.Context, instanceID string, frame *relay.Frame) error {
	b.mu.Lock()
	handler, ok := b.handlers[instanceID]
	b.mu.Unlock()
	if !ok {
		return nil // no such instance, frame is dropped like a dead channel
	}
	handler(ctx, frame)
	return nil
}

func (b *Bus) Subscribe(_ context.Context, instanceID string, handler relay.FrameHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[instanceID] = handler
	return nil
}

func (b *Bus) Close() error { return nil }

// --- Push sender ---

// PushSender records every send so tests can assert on the fallback path.
type PushSender struct {
	mu    sync.Mutex
	sends []RecordedPush
	Err   error // returned from Send when non-nil
}

type RecordedPush struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

func NewPushSender() *PushSender { return &PushSender{} }

func (p *PushSender) Send(_ context.Context, token, title, body string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.sends = append(p.sends, RecordedPush{Token: token, Title: title, Body: body, Data: data})
	return nil
}

func (p *PushSender) Sends() []RecordedPush {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RecordedPush, len(p.sends))
	copy(out, p.sends)
	return out
}
