package cmd

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-presence-relay/internal/test/fakes"
	"github.com/tinywideclouds/go-presence-relay/pkg/relay"
	"github.com/tinywideclouds/go-presence-relay/relayservice/config"
)

// NewFakeDependencies creates in-memory fakes for local development. The
// service runs fully self-contained: presence, tokens, and fan-out all live
// in process memory, and push deliveries are recorded instead of sent.
func NewFakeDependencies(_ context.Context, _ *config.AppConfig, logger zerolog.Logger) (*relay.ServiceDependencies, error) {
	logger.Info().Msg("Building in-memory fake dependencies.")
	return &relay.ServiceDependencies{
		Presence: fakes.NewPresenceStore(),
		Tokens:   fakes.NewTokenStore(),
		Fanout:   fakes.NewBus(),
		Push:     fakes.NewPushSender(),
	}, nil
}
