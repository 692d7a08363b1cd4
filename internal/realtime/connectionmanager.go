/*
File: internal/realtime/connectionmanager.go
Description: Owns the websocket server and the lifecycle of every physical
connection on this instance: open, user binding via register/unregister
events, and directory cleanup on close.
*/
// Package realtime provides components for managing real-time client connections.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
)

const (
	storeRetries   = 3
	retryBaseDelay = 100 * time.Millisecond
	cleanupTimeout = 15 * time.Second
)

// EventHandler consumes relayable events read from a connection.
type EventHandler interface {
	Route(ctx context.Context, event *relay.Event)
}

// ConnectionManager manages all active WebSocket connections on this
// instance. It runs its own dedicated HTTP server.
type ConnectionManager struct {
	server     *http.Server
	upgrader   websocket.Upgrader
	table      *ConnTable
	presence   relay.PresenceStore
	handler    EventHandler
	logger     zerolog.Logger
	instanceID string
}

// NewConnectionManager creates and wires up a new WebSocket connection manager.
func NewConnectionManager(
	port string,
	instanceID string,
	authMiddleware func(http.Handler) http.Handler,
	table *ConnTable,
	presence relay.PresenceStore,
	handler EventHandler,
	logger zerolog.Logger,
) (*ConnectionManager, error) {
	if table == nil {
		return nil, fmt.Errorf("connection table cannot be nil")
	}
	if presence == nil {
		return nil, fmt.Errorf("presence store cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler cannot be nil")
	}

	cmLogger := logger.With().Str("component", "ConnectionManager").Str("instance", instanceID).Logger()

	cm := &ConnectionManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement a real origin check
				return true
			},
		},
		table:      table,
		presence:   presence,
		handler:    handler,
		logger:     cmLogger,
		instanceID: instanceID,
	}

	mux := http.NewServeMux()
	mux.Handle("/connect", authMiddleware(http.HandlerFunc(cm.connectHandler)))
	cm.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	return cm, nil
}

// Handler exposes the websocket mux, mainly for tests that serve it through
// httptest instead of the managed listener.
func (cm *ConnectionManager) Handler() http.Handler {
	return cm.server.Handler
}

// Start runs the HTTP server for WebSocket connections.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	cm.logger.Info().Str("addr", cm.server.Addr).Msg("WebSocket server starting...")
	if err := cm.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.logger.Info().Msg("Shutting down WebSocket service...")
	if err := cm.server.Shutdown(ctx); err != nil {
		cm.logger.Error().Err(err).Msg("WebSocket server shutdown failed.")
		return err
	}
	cm.logger.Info().Msg("WebSocket service shut down.")
	return nil
}

// connectHandler upgrades a new HTTP request to a WebSocket and manages its lifecycle.
func (cm *ConnectionManager) connectHandler(w http.ResponseWriter, r *http.Request) {
	wsConn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.logger.Error().Err(err).Msg("Failed to upgrade connection.")
		return
	}

	c := newConn(uuid.NewString(), wsConn)
	cm.table.add(c)
	defer cm.closeConn(c)

	cm.logger.Info().Str("conn", c.id).Msg("Connection opened.")

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			break // Client disconnected or error
		}

		var event relay.Event
		if err := json.Unmarshal(data, &event); err != nil {
			// Malformed frames are discarded; the relay never throws back to
			// the emitting connection.
			cm.logger.Warn().Err(err).Str("conn", c.id).Msg("Discarding malformed frame.")
			continue
		}
		cm.handleEvent(r.Context(), c, &event)
	}
}

func (cm *ConnectionManager) handleEvent(ctx context.Context, c *conn, event *relay.Event) {
	switch event.Kind {
	case relay.KindRegister:
		cm.handleRegister(ctx, c, event)
	case relay.KindUnregister:
		cm.handleUnregister(ctx, c, event)
	default:
		cm.handler.Route(ctx, event)
	}
}

// handleRegister binds the connection to a user. A connection may re-bind to
// a different user without closing; the directory entry is last-writer-wins
// either way.
func (cm *ConnectionManager) handleRegister(ctx context.Context, c *conn, event *relay.Event) {
	var payload relay.RegisterPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.UserID == "" {
		cm.logger.Warn().Str("conn", c.id).Msg("Discarding register without a userId.")
		return
	}

	entry := relay.PresenceEntry{
		ConnectionID: c.id,
		InstanceID:   cm.instanceID,
		ConnectedAt:  time.Now().Unix(),
	}
	err := cm.withRetry(ctx, func(ctx context.Context) error {
		return cm.presence.Register(ctx, payload.UserID, entry)
	})
	if err != nil {
		// Fail closed: the connection stays unbound until the store recovers
		// and the client retries.
		cm.logger.Error().Err(err).Str("conn", c.id).Str("user", payload.UserID).Msg("Failed to register presence.")
		return
	}

	c.bind(payload.UserID)
	cm.logger.Info().Str("conn", c.id).Str("user", payload.UserID).Msg("User registered.")
}

func (cm *ConnectionManager) handleUnregister(ctx context.Context, c *conn, event *relay.Event) {
	var payload relay.RegisterPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.UserID == "" {
		cm.logger.Warn().Str("conn", c.id).Msg("Discarding unregister without a userId.")
		return
	}

	err := cm.withRetry(ctx, func(ctx context.Context) error {
		return cm.presence.Unregister(ctx, payload.UserID)
	})
	if err != nil {
		cm.logger.Error().Err(err).Str("user", payload.UserID).Msg("Failed to unregister presence.")
		return
	}

	if c.boundUser() == payload.UserID {
		c.bind("")
	}
	cm.logger.Info().Str("conn", c.id).Str("user", payload.UserID).Msg("User unregistered.")
}

// closeConn tears the connection down exactly once. Double-close and
// close-without-open are no-ops by construction.
func (cm *ConnectionManager) closeConn(c *conn) {
	c.closeOnce.Do(func() {
		cm.table.remove(c.id)
		_ = c.ws.Close()

		// A dropped cleanup leaks an entry that makes the user look falsely
		// online, so transient store failures are retried before giving up.
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		err := cm.withRetry(ctx, func(ctx context.Context) error {
			return cm.presence.CleanupByConnection(ctx, c.id)
		})
		if err != nil {
			cm.logger.Error().Err(err).Str("conn", c.id).Msg("Presence cleanup failed after retries.")
		}

		cm.logger.Info().Str("conn", c.id).Msg("Connection closed.")
	})
}

// withRetry runs fn up to storeRetries times with doubling backoff. Store
// unavailability is transient; the last attempt's error is returned when the
// budget runs out.
func (cm *ConnectionManager) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	backoff := retryBaseDelay
	for attempt := 0; attempt < storeRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
