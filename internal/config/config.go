// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./supportbot.yaml)
//  3. Default values
//
// DATABASE_URL, when set, overrides the individual postgres_* settings. API
// keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the Genkit
// plugins, never via Viper.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidStorage indicates the storage backend is not supported.
	ErrInvalidStorage = errors.New("invalid storage backend")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidAddr indicates the HTTP listen address is invalid.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidCompaction indicates the compaction window or chunk is invalid.
	ErrInvalidCompaction = errors.New("invalid compaction settings")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Storage backend identifiers used in Config.Storage.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model provider and selection
	Provider       string `mapstructure:"provider" json:"provider"`               // "gemini" (default), "ollama", "openai"
	ModelName      string `mapstructure:"model_name" json:"model_name"`           // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	SummarizeModel string `mapstructure:"summarize_model" json:"summarize_model"` // empty = same as model_name

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// History compaction
	CompactionWindow int `mapstructure:"compaction_window" json:"compaction_window"`
	CompactionChunk  int `mapstructure:"compaction_chunk" json:"compaction_chunk"`

	// Storage backend: "postgres" (durable) or "memory" (tests, demos)
	Storage string `mapstructure:"storage" json:"storage"`

	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// SeedDemoData inserts the demo orders into an empty order store.
	SeedDemoData bool `mapstructure:"seed_demo_data" json:"seed_demo_data"`

	// HTTP server
	Addr string `mapstructure:"addr" json:"addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	viper.SetConfigName("supportbot")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/supportbot")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"config_name", "supportbot.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

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
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("summarize_model", "")

	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("compaction_window", 5)
	viper.SetDefault("compaction_chunk", 10)

	viper.SetDefault("storage", StoragePostgres)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "supportbot")
	viper.SetDefault("postgres_password", "supportbot_dev_password")
	viper.SetDefault("postgres_db_name", "supportbot")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("seed_demo_data", true)

	viper.SetDefault("addr", ":8080")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", true)
}

// bindEnvVariables binds runtime overrides explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "SUPPORTBOT_PROVIDER")
	mustBind("model_name", "SUPPORTBOT_MODEL_NAME")
	mustBind("summarize_model", "SUPPORTBOT_SUMMARIZE_MODEL")
	mustBind("ollama_host", "SUPPORTBOT_OLLAMA_HOST")
	mustBind("storage", "SUPPORTBOT_STORAGE")
	mustBind("seed_demo_data", "SUPPORTBOT_SEED_DEMO_DATA")
	mustBind("addr", "SUPPORTBOT_ADDR")
	mustBind("log_level", "SUPPORTBOT_LOG_LEVEL")
	mustBind("log_json", "SUPPORTBOT_LOG_JSON")

	// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the
	// Genkit plugins, not via Viper.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	if a.PostgresPassword != "" {
		a.PostgresPassword = maskedValue
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

// FullModelName returns the provider-qualified chat model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	return c.qualify(c.ModelName)
}

// FullSummarizeModelName returns the provider-qualified summarization model,
// falling back to the chat model when none is configured.
func (c *Config) FullSummarizeModelName() string {
	if c.SummarizeModel == "" {
		return c.FullModelName()
	}
	return c.qualify(c.SummarizeModel)
}

func (c *Config) qualify(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + name
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + name
	default:
		return ProviderGoogleAI + "/" + name
	}
}
