package config

import (
	"fmt"
	"time"
)

// --- YAML-Specific Structs ---

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type YamlNatsConfig struct {
	URL string `yaml:"url"`
}

type YamlFirestoreConfig struct {
	ProjectID      string `yaml:"project_id"`
	CollectionName string `yaml:"collection_name"`
}

// YamlFanoutConfig selects the cross-instance fan-out bus backend.
type YamlFanoutConfig struct {
	Type string         `yaml:"type"` // "redis" or "nats"
	Nats YamlNatsConfig `yaml:"nats"`
}

// YamlTokenStoreConfig selects where push tokens live.
type YamlTokenStoreConfig struct {
	Type      string              `yaml:"type"` // "redis" or "firestore"
	Firestore YamlFirestoreConfig `yaml:"firestore"`
}

// YamlPresenceConfig holds presence-directory tuning. TTL is the safety net
// on presence keys against entries leaked by a crashed instance.
type YamlPresenceConfig struct {
	TTL string `yaml:"ttl"`
}

type YamlPushConfig struct {
	Provider        string `yaml:"provider"` // "fcm" or "log"
	CredentialsFile string `yaml:"credentials_file"`
}

// YamlConfig defines the structure for unmarshaling the embedded config.yaml file.
type YamlConfig struct {
	RunMode       string               `yaml:"run_mode"`
	APIPort       string               `yaml:"api_port"`
	WebSocketPort string               `yaml:"websocket_port"`
	Redis         YamlRedisConfig      `yaml:"redis"`
	Presence      YamlPresenceConfig   `yaml:"presence"`
	Fanout        YamlFanoutConfig     `yaml:"fanout"`
	TokenStore    YamlTokenStoreConfig `yaml:"token_store"`
	Push          YamlPushConfig       `yaml:"push"`
}

const defaultPresenceTTL = 24 * time.Hour

// --- Stage 1 Function ---

// NewConfigFromYaml converts the raw unmarshaled data (YamlConfig) into a clean, base AppConfig struct.
// Stage 1 complete: The AppConfig struct now exists, but without environment overrides.
func NewConfigFromYaml(yamlCfg *YamlConfig) (*AppConfig, error) {
	presenceTTL := defaultPresenceTTL
	if yamlCfg.Presence.TTL != "" {
		parsed, err := time.ParseDuration(yamlCfg.Presence.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid presence ttl %q: %w", yamlCfg.Presence.TTL, err)
		}
		presenceTTL = parsed
	}

	appCfg := &AppConfig{
		RunMode:       yamlCfg.RunMode,
		APIPort:       yamlCfg.APIPort,
		WebSocketPort: yamlCfg.WebSocketPort,
		Redis:         yamlCfg.Redis,
		PresenceTTL:   presenceTTL,
		Fanout:        yamlCfg.Fanout,
		TokenStore:    yamlCfg.TokenStore,
		Push:          yamlCfg.Push,
	}

	return appCfg, nil
}
