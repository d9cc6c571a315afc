package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"agenthud.router/internal/core/logger"
)

type Config struct {
	// Server
	Host     string
	Port     string
	GRPCPort string // empty disables the gRPC health server

	// Shared secret for HTTP and websocket clients
	Token string

	SimulatorMode bool

	// Optional backends, empty disables
	DatabaseURL string
	RedisURL    string
	MQTTBroker  string

	// Logging
	LogLevel  slog.Level
	LogFormat string // "json" or "text"

	// Tracing
	OTLPEndpoint string
	ServiceName  string

	// Features
	EnableMetrics bool
	EnableTracing bool

	// Agents idle longer than this are reported stale. Zero disables.
	AgentStaleAfter time.Duration

	ActionRateLimit float64
	ActionRateBurst int

	ShutdownTimeout time.Duration
}

// DefaultToken is used when TOKEN is unset.
const DefaultToken = "default-token"

func Load() (*Config, error) {
	cfg := &Config{
		Host:          getEnv("HOST", "0.0.0.0"),
		Port:          getEnv("PORT", "8787"),
		GRPCPort:      getEnv("GRPC_PORT", ""),
		Token:         getEnv("TOKEN", DefaultToken),
		SimulatorMode: getEnvBool("SIMULATOR_MODE", false),
		DatabaseURL:   getEnv("DB_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		MQTTBroker:    getEnv("MQTT_BROKER", ""),
		LogLevel:      logger.ParseLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		OTLPEndpoint:  getEnv("OTLP_ENDPOINT", ""),
		ServiceName:   getEnv("SERVICE_NAME", "agenthud-router"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
	}

	var err error
	if cfg.AgentStaleAfter, err = getEnvDuration("AGENT_STALE_AFTER", 0); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ActionRateLimit, err = getEnvFloat("ACTION_RATE_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.ActionRateBurst, err = getEnvInt("ACTION_RATE_BURST", 20); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("TOKEN must not be empty")
	}

	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
