/*
File: internal/platform/directory/tokens_firestore.go
Description: Firestore-backed implementation of the push-token side of the
directory, for deployments that keep device tokens with the rest of their
user documents instead of in Redis.
*/
package directory

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultTokensCollection = "device-tokens"

// tokenDoc is the shape of the data stored in Firestore for a user's token.
type tokenDoc struct {
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// FirestoreTokenStore implements relay.TokenStore using Google Cloud
// Firestore. One document per user; last write wins.
type FirestoreTokenStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreTokenStore is the constructor for the FirestoreTokenStore.
func NewFirestoreTokenStore(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreTokenStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if collection == "" {
		collection = defaultTokensCollection
	}
	return &FirestoreTokenStore{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// Set upserts the user's push token.
func (s *FirestoreTokenStore) Set(ctx context.Context, userID, token string) error {
	doc := &tokenDoc{
		Token:     token,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.client.Collection(s.collection).Doc(userID).Set(ctx, doc); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("Failed to write push token document")
		return fmt.Errorf("failed to write push token document: %w", err)
	}
	return nil
}

// Delete removes the user's push token. Firestore deletes are idempotent, so
// an absent document is not an error.
func (s *FirestoreTokenStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.client.Collection(s.collection).Doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete push token document: %w", err)
	}
	return nil
}

// Fetch returns the user's push token, or "" when no document exists.
func (s *FirestoreTokenStore) Fetch(ctx context.Context, userID string) (string, error) {
	snap, err := s.client.Collection(s.collection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read push token document: %w", err)
	}

	var doc tokenDoc
	if err := snap.DataTo(&doc); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("Failed to unmarshal push token document")
		return "", fmt.Errorf("failed to unmarshal push token document: %w", err)
	}
	return doc.Token, nil
}
