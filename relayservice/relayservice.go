/*
File: relayservice/relayservice.go
Description: Top-level wrapper that wires the presence directory, event
router, push dispatcher, and WebSocket connection manager into one service.
*/
package relayservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-presence-relay/internal/api"
	"github.com/tinywideclouds/go-presence-relay/internal/dispatch"
	"github.com/tinywideclouds/go-presence-relay/internal/realtime"
	"github.com/tinywideclouds/go-presence-relay/internal/router"
	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
	"github.com/tinywideclouds/go-presence-relay/relayservice/config"
)

// Wrapper owns every component of the relay service and runs the two HTTP
// surfaces: the WebSocket endpoint and the token management API.
type Wrapper struct {
	instanceID  string
	connManager *realtime.ConnectionManager
	router      *router.Router
	dispatcher  *dispatch.Dispatcher
	fanout      relay.Bus
	apiServer   *http.Server
	logger      zerolog.Logger
}

// New creates and wires up the entire relay service.
func New(
	cfg *config.AppConfig,
	dependencies *relay.ServiceDependencies,
	authMiddleware func(http.Handler) http.Handler,
	logger zerolog.Logger,
) (*Wrapper, error) {
	if dependencies == nil {
		return nil, fmt.Errorf("service dependencies cannot be nil")
	}

	// Each process gets a fresh identity. Presence entries written by this
	// instance carry it, and the fan-out bus addresses frames with it.
	instanceID := uuid.NewString()
	slogger := slog.Default().With("instance", instanceID)

	// 1. Local delivery table, shared between the router and the manager.
	table := realtime.NewConnTable(logger.With().Str("component", "ConnTable").Logger())

	// 2. Push fallback dispatcher.
	dispatcher, err := dispatch.NewDispatcher(dependencies.Tokens, dependencies.Push, slogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// 3. The event router.
	eventRouter, err := router.New(
		instanceID,
		dependencies.Presence,
		dependencies.Fanout,
		table,
		dispatcher,
		slogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	// 4. The WebSocket connection manager.
	connManager, err := realtime.NewConnectionManager(
		cfg.WebSocketPort,
		instanceID,
		authMiddleware,
		table,
		dependencies.Presence,
		eventRouter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	// 5. The token API server.
	apiHandler := api.NewAPI(dependencies.Tokens, slogger.With("component", "API"))

	setHandler := http.HandlerFunc(apiHandler.SetPushTokenHandler)
	unsetHandler := http.HandlerFunc(apiHandler.UnsetPushTokenHandler)

	mux := http.NewServeMux()
	mux.Handle("POST /api/push-token", authMiddleware(setHandler))
	mux.Handle("DELETE /api/push-token", authMiddleware(unsetHandler))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: mux,
	}

	return &Wrapper{
		instanceID:  instanceID,
		connManager: connManager,
		router:      eventRouter,
		dispatcher:  dispatcher,
		fanout:      dependencies.Fanout,
		apiServer:   apiServer,
		logger:      logger.With().Str("instance", instanceID).Logger(),
	}, nil
}

// InstanceID reports the identity this process writes into presence entries.
func (w *Wrapper) InstanceID() string {
	return w.instanceID
}

// Start subscribes to the fan-out bus and runs both HTTP servers. It blocks
// until the context is cancelled or a server fails.
func (w *Wrapper) Start(ctx context.Context) error {
	// Subscribe before accepting connections so no peer instance can publish
	// a frame this instance would miss.
	if err := w.fanout.Subscribe(ctx, w.instanceID, w.router.HandleFrame); err != nil {
		return fmt.Errorf("failed to subscribe to fan-out bus: %w", err)
	}
	w.logger.Info().Msg("Subscribed to fan-out bus.")

	errChan := make(chan error, 2)

	go func() {
		if err := w.connManager.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	go func() {
		w.logger.Info().Str("addr", w.apiServer.Addr).Msg("API server starting...")
		if err := w.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server failed: %w", err)
		}
	}()

	w.logger.Info().Msg("Service is now ready.")

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully stops all service components in the correct order.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down service components...")
	var finalErr error

	// Stop accepting and close live sockets first so their cleanup writes
	// land before the stores go away.
	if err := w.connManager.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Connection manager shutdown failed.")
		finalErr = err
	}

	if err := w.apiServer.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("API server shutdown failed.")
		finalErr = err
	}

	// Wait for in-flight push deliveries before dropping the bus.
	w.dispatcher.Wait()

	if err := w.fanout.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Fan-out bus close failed.")
		finalErr = err
	}

	w.logger.Info().Msg("All components shut down.")
	return finalErr
}
