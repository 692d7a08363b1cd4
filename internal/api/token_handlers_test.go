// --- File: internal/api/token_handlers_test.go ---
package api_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-presence-relay/internal/api"
	"github.com/tinywideclouds/go-presence-relay/internal/test/fakes"
)

// newTestLogger creates a discard logger for tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingTokenStore errors on every operation.
type failingTokenStore struct{}

func (failingTokenStore) Set(context.Context, string, string) error { return errors.New("store down") }
func (failingTokenStore) Delete(context.Context, string) error      { return errors.New("store down") }
func (failingTokenStore) Fetch(context.Context, string) (string, error) {
	return "", errors.New("store down")
}

func TestSetPushTokenHandler(t *testing.T) {
	t.Run("Success - stores the token and returns 200", func(t *testing.T) {
		tokens := fakes.NewTokenStore()
		handler := api.NewAPI(tokens, newTestLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/push-token",
			strings.NewReader(`{"userId":"user-1","token":"fcm-abc"}`))
		rec := httptest.NewRecorder()

		handler.SetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		stored, err := tokens.Fetch(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "fcm-abc", stored)
	})

	t.Run("Success - repeated set is last-write-wins", func(t *testing.T) {
		tokens := fakes.NewTokenStore()
		handler := api.NewAPI(tokens, newTestLogger())

		for _, token := range []string{"first", "second"} {
			req := httptest.NewRequest(http.MethodPost, "/api/push-token",
				strings.NewReader(`{"userId":"user-1","token":"`+token+`"}`))
			rec := httptest.NewRecorder()
			handler.SetPushTokenHandler(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		stored, err := tokens.Fetch(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "second", stored)
	})

	t.Run("Failure - invalid JSON returns 400", func(t *testing.T) {
		handler := api.NewAPI(fakes.NewTokenStore(), newTestLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/push-token", strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()

		handler.SetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid JSON body")
	})

	t.Run("Failure - missing fields return 400", func(t *testing.T) {
		handler := api.NewAPI(fakes.NewTokenStore(), newTestLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/push-token",
			strings.NewReader(`{"userId":"user-1"}`))
		rec := httptest.NewRecorder()

		handler.SetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Failure - store error returns 500", func(t *testing.T) {
		handler := api.NewAPI(failingTokenStore{}, newTestLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/push-token",
			strings.NewReader(`{"userId":"user-1","token":"fcm-abc"}`))
		rec := httptest.NewRecorder()

		handler.SetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestUnsetPushTokenHandler(t *testing.T) {
	t.Run("Success - deletes the token", func(t *testing.T) {
		ctx := context.Background()
		tokens := fakes.NewTokenStore()
		require.NoError(t, tokens.Set(ctx, "user-1", "fcm-abc"))
		handler := api.NewAPI(tokens, newTestLogger())

		req := httptest.NewRequest(http.MethodDelete, "/api/push-token",
			strings.NewReader(`{"userId":"user-1"}`))
		rec := httptest.NewRecorder()

		handler.UnsetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		stored, err := tokens.Fetch(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("Success - deleting an absent token still returns 200", func(t *testing.T) {
		handler := api.NewAPI(fakes.NewTokenStore(), newTestLogger())

		req := httptest.NewRequest(http.MethodDelete, "/api/push-token",
			strings.NewReader(`{"userId":"nobody"}`))
		rec := httptest.NewRecorder()

		handler.UnsetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Failure - missing userId returns 400", func(t *testing.T) {
		handler := api.NewAPI(fakes.NewTokenStore(), newTestLogger())

		req := httptest.NewRequest(http.MethodDelete, "/api/push-token", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		handler.UnsetPushTokenHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
