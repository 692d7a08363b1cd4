// --- File: relayservice/config/yaml_config_test.go ---
package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import the package we are testing
	"github.com/tinywideclouds/go-presence-relay/relayservice/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	t.Run("Success - maps all fields correctly from YAML struct", func(t *testing.T) {
		// Arrange
		// This simulates the raw struct after unmarshaling the YAML file
		yamlCfg := &config.YamlConfig{
			RunMode:       "yaml-mode",
			APIPort:       "8080",
			WebSocketPort: "8081",
			Redis: config.YamlRedisConfig{
				Addr: "yaml-redis:6379",
			},
			Presence: config.YamlPresenceConfig{
				TTL: "12h",
			},
			Fanout: config.YamlFanoutConfig{
				Type: "nats",
				Nats: config.YamlNatsConfig{
					URL: "nats://yaml-nats:4222",
				},
			},
			TokenStore: config.YamlTokenStoreConfig{
				Type: "firestore",
				Firestore: config.YamlFirestoreConfig{
					ProjectID:      "yaml-project",
					CollectionName: "yaml-tokens",
				},
			},
			Push: config.YamlPushConfig{
				Provider:        "fcm",
				CredentialsFile: "/etc/fcm/creds.json",
			},
		}

		// Act
		// This is the "Stage 1" function
		cfg, err := config.NewConfigFromYaml(yamlCfg)

		// Assert
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Check that all fields were mapped 1:1
		assert.Equal(t, "yaml-mode", cfg.RunMode)
		assert.Equal(t, "8080", cfg.APIPort)
		assert.Equal(t, "8081", cfg.WebSocketPort)
		assert.Equal(t, "yaml-redis:6379", cfg.Redis.Addr)
		assert.Equal(t, 12*time.Hour, cfg.PresenceTTL)
		assert.Equal(t, "nats", cfg.Fanout.Type)
		assert.Equal(t, "nats://yaml-nats:4222", cfg.Fanout.Nats.URL)
		assert.Equal(t, "firestore", cfg.TokenStore.Type)
		assert.Equal(t, "yaml-project", cfg.TokenStore.Firestore.ProjectID)
		assert.Equal(t, "yaml-tokens", cfg.TokenStore.Firestore.CollectionName)
		assert.Equal(t, "fcm", cfg.Push.Provider)
		assert.Equal(t, "/etc/fcm/creds.json", cfg.Push.CredentialsFile)
	})

	t.Run("Success - empty TTL falls back to the default", func(t *testing.T) {
		// Arrange
		yamlCfg := &config.YamlConfig{
			RunMode:       "production",
			APIPort:       "8080",
			WebSocketPort: "8081",
		}

		// Act
		cfg, err := config.NewConfigFromYaml(yamlCfg)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, cfg.PresenceTTL)
	})

	t.Run("Failure - unparseable TTL is rejected", func(t *testing.T) {
		// Arrange
		yamlCfg := &config.YamlConfig{
			APIPort:       "8080",
			WebSocketPort: "8081",
			Presence: config.YamlPresenceConfig{
				TTL: "one-day",
			},
		}

		// Act
		cfg, err := config.NewConfigFromYaml(yamlCfg)

		// Assert
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid presence ttl")
	})
}
