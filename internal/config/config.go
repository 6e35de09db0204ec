package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full engine configuration, loaded from the environment.
type Config struct {
	Environment string
	API         APIConfig
	Push        PushConfig
	AMQP        AMQPConfig
	Debug       DebugConfig
	Presence    PresenceConfig
	Trace       TraceConfig
}

// APIConfig points at the collaborator REST endpoints.
type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// PushConfig points at the websocket push channel.
type PushConfig struct {
	URL string
}

// AMQPConfig configures audit event publishing. An empty URL disables it.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// DebugConfig configures the local health/metrics server.
type DebugConfig struct {
	Addr    string
	Enabled bool
}

// PresenceConfig tunes typing-signal expiry.
type PresenceConfig struct {
	TypingTTL time.Duration
}

// TraceConfig configures the OTLP trace exporter. An empty endpoint
// disables it.
type TraceConfig struct {
	Endpoint string
}

// Load reads the environment (and a .env file when present) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:8080/api"),
			Token:   getEnv("API_TOKEN", ""),
			Timeout: getEnvAsDuration("API_TIMEOUT", 10*time.Second),
		},
		Push: PushConfig{
			URL: getEnv("PUSH_URL", "ws://localhost:8080/ws"),
		},
		AMQP: AMQPConfig{
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "chat_sync_events"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", "sync_audit.client"),
		},
		Debug: DebugConfig{
			Addr:    getEnv("DEBUG_ADDR", ":9091"),
			Enabled: getEnvAsBool("DEBUG_ENABLED", true),
		},
		Presence: PresenceConfig{
			TypingTTL: getEnvAsDuration("TYPING_TTL", 3*time.Second),
		},
		Trace: TraceConfig{
			Endpoint: getEnv("OTLP_ENDPOINT", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("API_TOKEN must be set")
	}
	if c.API.BaseURL == "" || c.Push.URL == "" {
		return fmt.Errorf("API_BASE_URL and PUSH_URL must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
