// --- File: relayservice/config/relay_service_config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// AppConfig is the canonical, validated configuration object used throughout the application.
// It is created by NewConfigFromYaml (Stage 1) and finalized by
// UpdateConfigWithEnvOverrides (Stage 2).
type AppConfig struct {
	RunMode       string
	APIPort       string
	WebSocketPort string
	Redis         YamlRedisConfig
	PresenceTTL   time.Duration
	Fanout        YamlFanoutConfig
	TokenStore    YamlTokenStoreConfig
	Push          YamlPushConfig
}

// UpdateConfigWithEnvOverrides takes the base configuration (created from YAML)
// and completes it by applying environment variables and final validation.
// This function completes "Stage 2" of configuration loading.
func UpdateConfigWithEnvOverrides(cfg *AppConfig, logger *slog.Logger) (*AppConfig, error) {
	logger.Debug("Applying environment variable overrides...")

	if mode := os.Getenv("RUN_MODE"); mode != "" {
		logger.Debug("Overriding config value", "key", "RUN_MODE", "source", "env")
		cfg.RunMode = mode
	}
	if port := os.Getenv("API_PORT"); port != "" {
		logger.Debug("Overriding config value", "key", "API_PORT", "source", "env")
		cfg.APIPort = port
	}
	if port := os.Getenv("WEBSOCKET_PORT"); port != "" {
		logger.Debug("Overriding config value", "key", "WEBSOCKET_PORT", "source", "env")
		cfg.WebSocketPort = port
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		logger.Debug("Overriding config value", "key", "REDIS_ADDR", "source", "env")
		cfg.Redis.Addr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		logger.Debug("Overriding config value", "key", "NATS_URL", "source", "env")
		cfg.Fanout.Nats.URL = natsURL
	}

	// Final validation. The directory store is mandatory in every mode except
	// local, where the fakes replace it.
	if cfg.RunMode != "local" && cfg.Redis.Addr == "" {
		logger.Error("Final config validation failed", "error", "REDIS_ADDR is not set")
		return nil, fmt.Errorf("REDIS_ADDR is not set in config or env var")
	}
	if cfg.APIPort == "" || cfg.WebSocketPort == "" {
		return nil, fmt.Errorf("api_port and websocket_port must be configured")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
