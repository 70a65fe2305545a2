package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/domain"
)

// Process modes
const (
	ModeServer = "server"
	ModeClient = "client"
	ModeBoth   = "both"
)

// Config represents the main configuration structure
type Config struct {
	Mode      string                 `yaml:"mode" json:"mode"`
	Server    ServerConfig           `yaml:"server" json:"server"`
	Engine    domain.EngineConfig    `yaml:"engine" json:"engine"`
	Cache     domain.CacheConfig     `yaml:"cache" json:"cache"`
	Client    domain.ClientConfig    `yaml:"client" json:"client"`
	RateLimit domain.RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Logging   LoggingConfig          `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server specific configuration
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ServerName      string        `yaml:"server_name" json:"server_name"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// H2C serves cleartext HTTP/2 alongside HTTP/1.1
	H2C bool `yaml:"h2c" json:"h2c"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Format      string `yaml:"format" json:"format"`
	Output      string `yaml:"output" json:"output"`
	File        string `yaml:"file" json:"file"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode: ModeServer,
		Server: ServerConfig{
			Port:            8080,
			ServerName:      "go-telemetry-server",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: domain.DefaultEngineConfig(),
		Cache: domain.CacheConfig{
			Capacity: cache.DefaultCapacity,
			TTL:      cache.DefaultTTL,
		},
		Client: domain.ClientConfig{
			ServerURL:    "http://localhost:8080",
			RequestDelay: 500 * time.Millisecond,
			ClientName:   "go-telemetry-client",
			Endpoints:    []string{"/api/data"},
			Timeout:      30 * time.Second,
		},
		RateLimit: domain.RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "stdout",
			ServiceName: "go-telemetry-demo",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServer, ModeClient, ModeBoth:
	default:
		return fmt.Errorf("invalid mode: %q (expected server, client or both)", c.Mode)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	if err := validateEngine(&c.Engine); err != nil {
		return err
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive: %d", c.Cache.Capacity)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative: %v", c.Cache.TTL)
	}

	if c.Mode != ModeServer {
		if c.Client.ServerURL == "" {
			return fmt.Errorf("client.server_url cannot be empty")
		}
		if c.Client.RequestDelay <= 0 {
			return fmt.Errorf("client.request_delay must be positive: %v", c.Client.RequestDelay)
		}
		if c.Client.TotalRequests < 0 {
			return fmt.Errorf("client.total_requests cannot be negative: %d", c.Client.TotalRequests)
		}
		if len(c.Client.Endpoints) == 0 {
			return fmt.Errorf("client.endpoints must name at least one path")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true, "discard": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}
	if c.Logging.Output == "file" && c.Logging.File == "" {
		return fmt.Errorf("logging.file is required when output is file")
	}

	return nil
}

func validateEngine(e *domain.EngineConfig) error {
	if e.TriggerProbability < 0 || e.TriggerProbability > 1 {
		return fmt.Errorf("engine.trigger_probability must be within [0,1]: %v", e.TriggerProbability)
	}
	if !strings.HasPrefix(e.DelayEndpoint, "http://") && !strings.HasPrefix(e.DelayEndpoint, "https://") {
		return fmt.Errorf("engine.delay_endpoint must be an http(s) URL: %q", e.DelayEndpoint)
	}
	if e.ExternalTimeout <= 0 {
		return fmt.Errorf("engine.external_timeout must be positive: %v", e.ExternalTimeout)
	}
	if e.MinDelaySeconds < 0 || e.MaxDelaySeconds < e.MinDelaySeconds {
		return fmt.Errorf("engine delay range is invalid: %d..%d", e.MinDelaySeconds, e.MaxDelaySeconds)
	}
	if e.FanOutTimeout <= 0 {
		return fmt.Errorf("engine.fanout_timeout must be positive: %v", e.FanOutTimeout)
	}
	if e.CPUModulus <= 0 {
		return fmt.Errorf("engine.cpu_modulus must be positive: %d", e.CPUModulus)
	}

	counts := []struct {
		name  string
		value int
	}{
		{"payload_items", e.PayloadItems},
		{"payload_nested_fields", e.PayloadNestedFields},
		{"payload_rounds", e.PayloadRounds},
		{"memo_keys", e.MemoKeys},
		{"memo_lines", e.MemoLines},
		{"cpu_rounds", e.CPURounds},
		{"prime_limit", e.PrimeLimit},
		{"fanout_tasks", e.FanOutTasks},
		{"fanout_lines", e.FanOutLines},
	}
	for _, c := range counts {
		if c.value <= 0 {
			return fmt.Errorf("engine.%s must be positive: %d", c.name, c.value)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
