package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18890,
			MaxMessageChars: 32000,
			RateLimitRPM:    20,
		},
		Providers: ProvidersConfig{
			Default: "anthropic",
			Anthropic: ProviderConfig{
				Model: "claude-sonnet-4-5-20250929",
			},
			OpenAI: ProviderConfig{
				Model: "gpt-4o",
			},
		},
		Storage: StorageConfig{
			Mode: "standalone",
			Dir:  "~/.conductor",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "conductor-gateway",
		},
		Heartbeat: HeartbeatConfig{
			Schedule:       "*/30 * * * *",
			ConversationID: "heartbeat",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return ExpandHome("~/.conductor/config.json")
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	envStr(&c.Providers.Anthropic.APIKey, "CONDUCTOR_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	envStr(&c.Providers.OpenAI.APIKey, "CONDUCTOR_OPENAI_API_KEY", "OPENAI_API_KEY")
	envStr(&c.Providers.Default, "CONDUCTOR_PROVIDER")
	envStr(&c.Agents.Defaults.Model, "CONDUCTOR_MODEL")

	envStr(&c.Gateway.Token, "CONDUCTOR_GATEWAY_TOKEN")
	envStr(&c.Gateway.Host, "CONDUCTOR_HOST")
	if v := os.Getenv("CONDUCTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr(&c.Storage.PostgresDSN, "CONDUCTOR_POSTGRES_DSN")
	envStr(&c.Storage.Mode, "CONDUCTOR_MODE")
	envStr(&c.Storage.Dir, "CONDUCTOR_DATA_DIR")

	envStr(&c.Telemetry.Endpoint, "CONDUCTOR_TELEMETRY_ENDPOINT")
	if v := os.Getenv("CONDUCTOR_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file. Secrets sourced from env
// (Postgres DSN) are excluded by their json tags.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Storage.Dir)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
