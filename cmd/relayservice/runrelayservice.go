/*
File: cmd/relayservice/runrelayservice.go
Description: Production entrypoint. Wires the Redis presence directory, the
configured fan-out bus, token store, and push provider into the service.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/firestore"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinywideclouds/go-presence-relay/cmd"
	"github.com/tinywideclouds/go-presence-relay/internal/app"
	"github.com/tinywideclouds/go-presence-relay/internal/platform/directory"
	"github.com/tinywideclouds/go-presence-relay/internal/platform/fanout"
	"github.com/tinywideclouds/go-presence-relay/internal/platform/push"
	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
	"github.com/tinywideclouds/go-presence-relay/relayservice"
	"github.com/tinywideclouds/go-presence-relay/relayservice/config"
)

func main() {
	// 1. Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "go-presence-relay").Logger()
	slogger := slog.Default()

	// 2. Load config.yaml and apply env overrides
	cfg, err := cmd.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg, err = config.UpdateConfigWithEnvOverrides(cfg, slogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to finalize configuration")
	}

	// 3. Create dependencies
	ctx := context.Background()
	deps, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize dependencies")
	}

	// 4. Create the service
	service, err := relayservice.New(
		cfg,
		deps,
		passthroughMiddleware,
		logger.With().Str("component", "RelayService").Logger(),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create relay service")
	}

	// 5. Run the application
	app.Run(ctx, slogger, service)
}

// passthroughMiddleware leaves requests untouched. Authentication is
// terminated upstream at the ingress proxy.
func passthroughMiddleware(next http.Handler) http.Handler {
	return next
}

// newDependencies builds the service dependency container.
func newDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*relay.ServiceDependencies, error) {
	if cfg.RunMode == "local" {
		logger.Warn().Msg("Running in 'local' mode. All external dependencies will be faked.")
		return cmd.NewFakeDependencies(ctx, cfg, logger)
	}
	return newProdDependencies(ctx, cfg, logger)
}

// newProdDependencies creates real, production-ready dependencies.
func newProdDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*relay.ServiceDependencies, error) {
	slogger := slog.Default()

	// Connect to Redis. The presence directory is mandatory, so a dead
	// Redis is fatal at startup.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	presence, err := directory.NewRedisPresenceStore(rdb, cfg.PresenceTTL, slogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create presence store: %w", err)
	}

	tokens, err := newTokenStore(ctx, cfg, rdb, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	bus, err := newFanoutBus(cfg, rdb, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fan-out bus: %w", err)
	}

	sender, err := newPushSender(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create push sender: %w", err)
	}

	return &relay.ServiceDependencies{
		Presence: presence,
		Tokens:   tokens,
		Fanout:   bus,
		Push:     sender,
	}, nil
}

// newTokenStore creates the pluggable push token store based on config.
func newTokenStore(ctx context.Context, cfg *config.AppConfig, rdb *redis.Client, logger zerolog.Logger) (relay.TokenStore, error) {
	storeType := cfg.TokenStore.Type
	logger.Info().Str("type", storeType).Msg("Initializing token store...")

	switch storeType {
	case "redis":
		return directory.NewRedisTokenStore(rdb, slog.Default())

	case "firestore":
		projectID := cfg.TokenStore.Firestore.ProjectID
		if projectID == "" {
			return nil, fmt.Errorf("token_store type is firestore but no project_id is configured")
		}
		fsClient, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to firestore: %w", err)
		}
		return directory.NewFirestoreTokenStore(fsClient, cfg.TokenStore.Firestore.CollectionName, logger)

	default:
		return nil, fmt.Errorf("invalid token_store type: %s (must be 'redis' or 'firestore')", storeType)
	}
}

// newFanoutBus creates the pluggable cross-instance bus based on config.
func newFanoutBus(cfg *config.AppConfig, rdb *redis.Client, logger zerolog.Logger) (relay.Bus, error) {
	busType := cfg.Fanout.Type
	logger.Info().Str("type", busType).Msg("Initializing fan-out bus...")

	switch busType {
	case "redis":
		return fanout.NewRedisBus(rdb, slog.Default())

	case "nats":
		natsURL := cfg.Fanout.Nats.URL
		if natsURL == "" {
			return nil, fmt.Errorf("fanout type is nats but no url is configured")
		}
		nc, err := nats.Connect(natsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats at %s: %w", natsURL, err)
		}
		logger.Info().Str("url", natsURL).Msg("Connected to NATS")
		return fanout.NewNatsBus(nc, slog.Default())

	default:
		return nil, fmt.Errorf("invalid fanout type: %s (must be 'redis' or 'nats')", busType)
	}
}

// newPushSender creates the pluggable push provider based on config.
func newPushSender(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (relay.PushSender, error) {
	provider := cfg.Push.Provider
	logger.Info().Str("provider", provider).Msg("Initializing push sender...")

	switch provider {
	case "fcm":
		return push.NewFCMSender(ctx, cfg.Push.CredentialsFile, slog.Default())

	case "log", "":
		return push.NewLogSender(slog.Default()), nil

	default:
		return nil, fmt.Errorf("invalid push provider: %s (must be 'fcm' or 'log')", provider)
	}
}
