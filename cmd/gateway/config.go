package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neocode24/dify-a2a-gateway/internal/retry"
	"github.com/neocode24/dify-a2a-gateway/session"
)

// Upstream provider names.
const (
	ProviderDify      = "dify"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Config holds the gateway configuration loaded from environment variables.
type Config struct {
	// Server
	Host        string
	Port        string
	LogLevel    string // debug, info, warn, error
	LogFormat   string // text, json
	CORSOrigins []string
	MCPEnabled  bool
	AGUIEnabled bool

	// Upstream selection
	Provider      string
	Timeout       time.Duration
	RetryAttempts int
	SystemPrompt  string

	// Dify
	DifyURL   string
	DifyKey   string
	DifyAppID string

	// LLM providers
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	GoogleKey      string
	GoogleModel    string
	VertexProject  string
	VertexLocation string

	// Session cache
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	RedisURL      string
	RedisTTLDays  int
}

// LoadConfig loads configuration from environment variables.
// It loads a .env file if present (silent fail if not found).
func LoadConfig() (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "0.0.0.0"),
		Port:           getEnvOrDefault("PORT", "8080"),
		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
		CORSOrigins:    getEnvListOrDefault("CORS_ORIGINS", []string{"*"}),
		MCPEnabled:     getEnvBoolOrDefault("MCP_ENABLED", true),
		AGUIEnabled:    getEnvBoolOrDefault("AGUI_ENABLED", true),
		Provider:       strings.ToLower(getEnvOrDefault("UPSTREAM_PROVIDER", ProviderDify)),
		Timeout:        getEnvDurationOrDefault("UPSTREAM_TIMEOUT", 300*time.Second),
		RetryAttempts:  getEnvIntOrDefault("UPSTREAM_RETRY_ATTEMPTS", 3),
		SystemPrompt:   os.Getenv("UPSTREAM_SYSTEM_PROMPT"),
		DifyURL:        getEnvOrDefault("DIFY_API_URL", "http://api:5001"),
		DifyKey:        os.Getenv("DIFY_API_KEY"),
		DifyAppID:      os.Getenv("DIFY_APP_ID"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: os.Getenv("ANTHROPIC_MODEL"),
		GoogleKey:      os.Getenv("GOOGLE_API_KEY"),
		GoogleModel:    os.Getenv("GOOGLE_MODEL"),
		VertexProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		VertexLocation: getEnvOrDefault("GOOGLE_CLOUD_LOCATION", "us-central1"),
		RedisEnabled:   getEnvBoolOrDefault("REDIS_ENABLED", false),
		RedisHost:      getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:      getEnvIntOrDefault("REDIS_PORT", 6379),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvIntOrDefault("REDIS_DB", 0),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisTTLDays:   getEnvIntOrDefault("REDIS_TTL_DAYS", 7),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderDify:
		if c.DifyKey == "" {
			return fmt.Errorf("DIFY_API_KEY is required for dify provider")
		}
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
	case ProviderAnthropic:
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic provider")
		}
	case ProviderGoogle:
		if c.GoogleKey == "" && c.VertexProject == "" {
			return fmt.Errorf("GOOGLE_API_KEY or GOOGLE_CLOUD_PROJECT is required for google provider")
		}
	default:
		return fmt.Errorf("unknown provider: %s (must be dify, openai, anthropic, or google)", c.Provider)
	}

	if _, err := c.Level(); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be text or json)", c.LogFormat)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.RedisTTLDays <= 0 {
		return fmt.Errorf("REDIS_TTL_DAYS must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	return level, nil
}

// Retry returns the retry policy for opening upstream streams.
func (c *Config) Retry() retry.Config {
	return retry.DefaultConfig().WithAttempts(c.RetryAttempts)
}

// Session returns the session cache configuration.
func (c *Config) Session() session.Config {
	return session.Config{
		Enabled:  c.RedisEnabled,
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		URL:      c.RedisURL,
		TTL:      c.SessionTTL(),
	}
}

// SessionTTL is how long conversation mappings are kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.RedisTTLDays) * 24 * time.Hour
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}
