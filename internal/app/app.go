// Package app contains the shared, reusable logic for starting and stopping the service.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinywideclouds/go-presence-relay/relayservice"
)

// Run executes the main application lifecycle for the relay service. It starts
// the service, listens for OS signals, and performs a graceful shutdown.
func Run(
	ctx context.Context,
	logger *slog.Logger,
	service *relayservice.Wrapper,
) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("Starting Relay Service...")
		err := service.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Relay Service failed", "err", err)
			cancel() // Trigger shutdown.
		}
	}()

	// Wait for a shutdown signal.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-shutdown:
		logger.Info("Received shutdown signal.", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown.")
	}

	// Execute graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down Relay Service...")
	err := service.Shutdown(shutdownCtx)
	if err != nil {
		logger.Error("Relay Service shutdown failed.", "err", err)
	}

	cancel()
	<-done
	logger.Info("All services shut down gracefully.")
}
