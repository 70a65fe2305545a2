package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnvironment loads configuration from environment variables over the defaults
func LoadFromEnvironment() *Config {
	config := DefaultConfig()
	ApplyEnvironment(config)
	return config
}

// ApplyEnvironment overrides config with every environment variable that is set.
// Unparseable values are ignored and left to Validate.
func ApplyEnvironment(config *Config) {
	if mode := getEnv("MODE", ""); mode != "" {
		config.Mode = strings.ToLower(mode)
	}

	// Server Configuration
	config.Server.Port = getEnvInt("PORT", config.Server.Port)
	config.Server.ServerName = getEnv("SERVER_NAME", config.Server.ServerName)
	config.Server.H2C = getEnvBool("H2C_ENABLED", config.Server.H2C)

	// Engine Configuration
	config.Engine.TriggerProbability = getEnvFloat("BOTTLENECK_PROBABILITY", config.Engine.TriggerProbability)
	if seed := getEnv("BOTTLENECK_SEED", ""); seed != "" {
		if s, err := strconv.ParseUint(seed, 10, 64); err == nil {
			config.Engine.Seed = s
		}
	}
	config.Engine.DelayEndpoint = getEnv("DELAY_ENDPOINT", config.Engine.DelayEndpoint)
	config.Engine.ExternalTimeout = getEnvDuration("EXTERNAL_TIMEOUT", config.Engine.ExternalTimeout)
	config.Engine.FanOutTasks = getEnvInt("FANOUT_TASKS", config.Engine.FanOutTasks)
	config.Engine.FanOutTimeout = getEnvDuration("FANOUT_TIMEOUT", config.Engine.FanOutTimeout)

	// Cache Configuration
	config.Cache.Capacity = getEnvInt("CACHE_CAPACITY", config.Cache.Capacity)
	config.Cache.TTL = getEnvDuration("CACHE_TTL", config.Cache.TTL)

	// Client Configuration
	if host := getEnv("TARGET_HOST", ""); host != "" {
		config.Client.ServerURL = "http://" + host
	}
	config.Client.ServerURL = getEnv("SERVER_URL", config.Client.ServerURL)
	config.Client.RequestDelay = getEnvDuration("REQUEST_DELAY", config.Client.RequestDelay)
	config.Client.ClientName = getEnv("CLIENT_NAME", config.Client.ClientName)
	config.Client.TotalRequests = getEnvInt("TOTAL_REQUESTS", config.Client.TotalRequests)
	if endpoints := getEnv("CLIENT_ENDPOINTS", ""); endpoints != "" {
		config.Client.Endpoints = parseList(endpoints)
	}

	// Rate Limiting Configuration
	config.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", config.RateLimit.Enabled)
	config.RateLimit.RequestsPerSecond = getEnvFloat("RATE_LIMIT_RPS", config.RateLimit.RequestsPerSecond)
	config.RateLimit.BurstSize = getEnvInt("RATE_LIMIT_BURST", config.RateLimit.BurstSize)

	// Logging Configuration
	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("LOG_FORMAT", config.Logging.Format)
	config.Logging.Output = getEnv("LOG_OUTPUT", config.Logging.Output)
	config.Logging.File = getEnv("LOG_FILE", config.Logging.File)
	config.Logging.ServiceName = getEnv("SERVICE_NAME", config.Logging.ServiceName)
}

// LoadConfig loads configuration with priority: env vars > config file > defaults
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	configFile := getEnv("CONFIG_FILE", "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	} else if os.Getenv("CONFIG_FILE") != "" {
		return nil, fmt.Errorf("config file %s not found: %w", configFile, err)
	}

	// Override with environment variables (highest priority)
	ApplyEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// getEnv gets environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as integer with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets environment variable as float with fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool gets environment variable as bool with fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration gets environment variable as duration with fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseList(value string) []string {
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
