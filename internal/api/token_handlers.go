/*
File: internal/api/token_handlers.go
Description: Defines the HTTP handlers for the push-token side of the
directory: simple idempotent CRUD over the token store.
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	tokens relay.TokenStore
	logger *slog.Logger
}

// NewAPI creates a new, stateless API handler.
func NewAPI(tokens relay.TokenStore, logger *slog.Logger) *API {
	return &API{
		tokens: tokens,
		logger: logger.With("component", "API"),
	}
}

type setTokenRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type unsetTokenRequest struct {
	UserID string `json:"userId"`
}

// SetPushTokenHandler upserts a user's push token. Last write wins; repeating
// the request is a no-op.
func (a *API) SetPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	var body setTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.logger.Warn("Failed to decode set-token body", "err", err)
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID == "" || body.Token == "" {
		WriteJSONError(w, http.StatusBadRequest, "userId and token are required")
		return
	}

	if err := a.tokens.Set(r.Context(), body.UserID, body.Token); err != nil {
		a.logger.Error("Failed to store push token", "user", body.UserID, "err", err)
		WriteJSONError(w, http.StatusInternalServerError, "failed to store push token")
		return
	}

	a.logger.Debug("Push token stored", "user", body.UserID)
	WriteJSON(w, http.StatusOK, nil)
}

// UnsetPushTokenHandler removes a user's push token. Removing an absent token
// still returns 200.
func (a *API) UnsetPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	var body unsetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.logger.Warn("Failed to decode unset-token body", "err", err)
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID == "" {
		WriteJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := a.tokens.Delete(r.Context(), body.UserID); err != nil {
		a.logger.Error("Failed to delete push token", "user", body.UserID, "err", err)
		WriteJSONError(w, http.StatusInternalServerError, "failed to delete push token")
		return
	}

	a.logger.Debug("Push token deleted", "user", body.UserID)
	WriteJSON(w, http.StatusOK, nil)
}
