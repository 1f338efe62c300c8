package config

import (
	"sync"
)

// Config is the root configuration for the Conductor gateway.
type Config struct {
	Gateway   GatewayConfig               `json:"gateway"`
	Providers ProvidersConfig             `json:"providers"`
	Agents    AgentsConfig                `json:"agents"`
	Storage   StorageConfig               `json:"storage,omitempty"`
	Telemetry TelemetryConfig             `json:"telemetry,omitempty"`
	Heartbeat HeartbeatConfig             `json:"heartbeat,omitempty"`
	MCP       map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig controls the WebSocket gateway server.
type GatewayConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Token           string   `json:"token,omitempty"`             // bearer token for WS/HTTP auth
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`   // WebSocket origin whitelist (empty = allow all)
	MaxMessageChars int      `json:"max_message_chars,omitempty"` // max user message characters (default 32000)
	RateLimitRPM    int      `json:"rate_limit_rpm,omitempty"`    // requests per minute per connection (default 20, 0 = disabled)
}

// ProvidersConfig maps provider name to its config.
type ProvidersConfig struct {
	Default   string         `json:"default,omitempty"` // "anthropic" or "openai"
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// HasAnyProvider returns true if at least one provider has an API key configured.
func (c *Config) HasAnyProvider() bool {
	p := c.Providers
	return p.Anthropic.APIKey != "" || p.OpenAI.APIKey != ""
}

// AgentsConfig contains agent defaults and per-agent overrides.
type AgentsConfig struct {
	Defaults AgentDefaults        `json:"defaults"`
	List     map[string]AgentSpec `json:"list,omitempty"`
}

// AgentDefaults are optional global overrides applied to every agent.
// Zero fields keep each agent's built-in tuning.
type AgentDefaults struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// AgentSpec is the per-agent configuration override, keyed by agent name.
// All fields optional; zero values mean "inherit".
type AgentSpec struct {
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  *float32 `json:"temperature,omitempty"`
	Instructions string   `json:"instructions,omitempty"` // replaces built-in instructions when set
}

// StorageConfig selects the persistence backend.
// PostgresDSN is NEVER read from config.json (secret), only from env CONDUCTOR_POSTGRES_DSN.
type StorageConfig struct {
	Mode        string `json:"mode,omitempty"` // "standalone" (default, sqlite) or "managed" (postgres)
	Dir         string `json:"dir,omitempty"`  // data directory (default ~/.conductor)
	PostgresDSN string `json:"-"`
}

// IsManagedMode returns true when the gateway runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Storage.Mode == "managed" && c.Storage.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`     // OTLP gRPC endpoint, e.g. "localhost:4317"
	ServiceName string `json:"service_name,omitempty"` // default "conductor-gateway"
}

// HeartbeatConfig configures scheduled synthetic turns.
type HeartbeatConfig struct {
	Enabled        bool   `json:"enabled,omitempty"`
	Schedule       string `json:"schedule,omitempty"`        // cron expression (default "*/30 * * * *")
	ConversationID string `json:"conversation_id,omitempty"` // default "heartbeat"
	Prompt         string `json:"prompt,omitempty"`          // custom heartbeat prompt
}

// MCPServerConfig configures a single external MCP server connection.
type MCPServerConfig struct {
	Transport  string            `json:"transport"`             // "stdio", "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`     // stdio: command to spawn
	Args       []string          `json:"args,omitempty"`        // stdio: command arguments
	Env        map[string]string `json:"env,omitempty"`         // stdio: extra environment variables
	URL        string            `json:"url,omitempty"`         // sse/http: server URL
	Headers    map[string]string `json:"headers,omitempty"`     // sse/http: extra HTTP headers
	Enabled    *bool             `json:"enabled,omitempty"`     // default true
	ToolPrefix string            `json:"tool_prefix,omitempty"` // prefix for tool names (avoids collisions)
	TimeoutSec int               `json:"timeout_sec,omitempty"` // per-tool-call timeout in seconds (default 60)
}

// IsEnabled returns whether this MCP server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AgentOverride returns the merged configuration override for an agent:
// global agent defaults first, then the per-agent entry. Zero fields
// mean "keep the agent's built-in value".
func (c *Config) AgentOverride(name string) AgentSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Agents.Defaults
	out := AgentSpec{
		Provider:    d.Provider,
		Model:       d.Model,
		MaxTokens:   d.MaxTokens,
		Temperature: d.Temperature,
	}
	if spec, ok := c.Agents.List[name]; ok {
		if spec.Provider != "" {
			out.Provider = spec.Provider
		}
		if spec.Model != "" {
			out.Model = spec.Model
		}
		if spec.MaxTokens > 0 {
			out.MaxTokens = spec.MaxTokens
		}
		if spec.Temperature != nil {
			out.Temperature = spec.Temperature
		}
		if spec.Instructions != "" {
			out.Instructions = spec.Instructions
		}
	}
	return out
}

// GatewaySnapshot returns a point-in-time copy of the gateway section.
// The hot-reload watcher may swap config contents at any moment, so
// connection handlers read through a snapshot rather than the struct
// fields directly.
func (c *Config) GatewaySnapshot() GatewayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gw := c.Gateway
	gw.AllowedOrigins = append([]string(nil), gw.AllowedOrigins...)
	return gw
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the file watcher on hot reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Providers = src.Providers
	c.Agents = src.Agents
	c.Storage = src.Storage
	c.Telemetry = src.Telemetry
	c.Heartbeat = src.Heartbeat
	c.MCP = src.MCP
}
