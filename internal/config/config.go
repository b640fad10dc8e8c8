// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, .env file honored)
//  2. Config file (~/.aios/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - LLM: model selection, temperature, max tokens, system prompt, MCP
//     connector servers
//   - Storage: PostgreSQL connection (see storage.go)
//   - Tool proxy: base URL of the calendar/todoist HTTP services
//   - Server: listen address, CORS origins
//
// Sensitive values (API key, database password, MCP authorization tokens)
// are masked in MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidMCPServer indicates an MCP connector server entry is invalid.
	ErrInvalidMCPServer = errors.New("invalid MCP server")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Default LLM parameters, matching the Anthropic Messages defaults this
// service has always shipped with.
const (
	DefaultModelName   = "claude-sonnet-4-20250514"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7

	// DefaultSystemPrompt is used when neither the config file nor the
	// incoming conversation carries a system message.
	DefaultSystemPrompt = "You are an efficient personal AI assistant."
)

// MCPServer describes one remote MCP server passed to the Anthropic MCP
// connector. AuthorizationToken is optional.
type MCPServer struct {
	Name               string `mapstructure:"name" json:"name"`
	URL                string `mapstructure:"url" json:"url"`
	AuthorizationToken string `mapstructure:"authorization_token" json:"authorization_token"` // SENSITIVE: masked in MarshalJSON
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update
// MarshalJSON.
type Config struct {
	// LLM configuration
	ModelName    string  `mapstructure:"model_name" json:"model_name"`
	Temperature  float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" json:"max_tokens"`
	SystemPrompt string  `mapstructure:"system_prompt" json:"system_prompt"`

	// AnthropicAPIKey authenticates against the Anthropic API.
	// Environment only (ANTHROPIC_API_KEY), never read from the YAML file.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" json:"anthropic_api_key"` // SENSITIVE: masked in MarshalJSON

	// MCP connector servers attached to every provider request.
	MCPServers []MCPServer `mapstructure:"mcp_servers" json:"mcp_servers"`

	// MCPBaseURL is the base URL of the calendar/todoist tool services
	// reached through the /mcp/* proxy endpoints.
	MCPBaseURL string `mapstructure:"mcp_base_url" json:"mcp_base_url"`

	// HTTP server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
// A .env file in the working directory is loaded first so that local
// development matches containerized deployments.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Debug("skipping .env file", "error", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".aios")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// LLM defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", DefaultTemperature)
	viper.SetDefault("max_tokens", DefaultMaxTokens)
	viper.SetDefault("system_prompt", DefaultSystemPrompt)

	// Tool proxy defaults (empty base URL disables the proxy endpoints)
	viper.SetDefault("mcp_base_url", "")

	// HTTP server defaults
	viper.SetDefault("listen_addr", ":8000")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "aios")
	viper.SetDefault("postgres_password", "aios_dev_password")
	viper.SetDefault("postgres_db_name", "aios")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly. Secrets only
// exist in the environment; the rest are runtime overrides for the YAML
// settings.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("anthropic_api_key", "ANTHROPIC_API_KEY")
	mustBind("system_prompt", "SYSTEM_PROMPT")
	mustBind("mcp_base_url", "MCP_BASE_URL")

	mustBind("model_name", "AIOS_MODEL_NAME")
	mustBind("listen_addr", "AIOS_LISTEN_ADDR")
	mustBind("cors_origins", "AIOS_CORS_ORIGINS")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matching against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer ones keep the
// first and last 2 characters for debug utility.
//
// This defends against accidental logging of real secrets. It is not
// cryptographically secure; if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking.
//
// Sensitive fields masked:
//   - AnthropicAPIKey
//   - PostgresPassword
//   - MCPServers[i].AuthorizationToken
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.AnthropicAPIKey = maskSecret(a.AnthropicAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.MCPServers = make([]MCPServer, len(c.MCPServers))
	for i, srv := range c.MCPServers {
		srv.AuthorizationToken = maskSecret(srv.AuthorizationToken)
		a.MCPServers[i] = srv
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
