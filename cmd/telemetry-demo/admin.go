package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/config"
	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/internal/workload"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// runConfigValidation validates the current configuration
func runConfigValidation() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("Configuration validation passed ✓")
	fmt.Printf("Mode: %s\n", cfg.Mode)
	fmt.Printf("Port: %d\n", cfg.Server.Port)
	fmt.Printf("H2C: %t\n", cfg.Server.H2C)
	fmt.Printf("Trigger Probability: %.2f\n", cfg.Engine.TriggerProbability)
	fmt.Printf("Cache: %d entries, ttl %s\n", cfg.Cache.Capacity, cfg.Cache.TTL)
	fmt.Printf("Rate Limiting: %t\n", cfg.RateLimit.Enabled)

	return nil
}

// runShowConfig prints the effective configuration as YAML
func runShowConfig() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

// runWarmCache computes every memoized value once and reports how long each took
func runWarmCache() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	memo := cache.New(cfg.Cache, cache.WithLogger(log))
	computation := workload.NewMemoizedComputation(cfg.Engine, workload.Dependencies{
		Cache:  memo,
		Random: domain.NewSeededRandom(cfg.Engine.Seed),
		Logger: log,
	})

	keys := computation.Keys()
	fmt.Printf("Warming %d cache keys...\n", len(keys))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	total := time.Now()
	for _, key := range keys {
		start := time.Now()
		value, err := computation.Load(ctx, key, "admin-warm-cache", domain.NopTelemetry{})
		if err != nil {
			return fmt.Errorf("failed to warm %s: %w", key, err)
		}
		fmt.Printf("  %s: %d bytes in %s\n", key, len(value), time.Since(start).Round(time.Millisecond))
	}

	stats := memo.Stats()
	fmt.Printf("Warmed %d entries in %s (computations: %d)\n",
		memo.Len(), time.Since(total).Round(time.Millisecond), stats.Computations)

	return nil
}

// runAdminProcess handles admin process execution
func runAdminProcess() {
	command := adminCommand(os.Args)
	if command == "" {
		fmt.Println("Usage: telemetry-demo -admin <command>")
		fmt.Println("Commands:")
		fmt.Println("  validate-config - Validate configuration")
		fmt.Println("  show-config     - Print the effective configuration")
		fmt.Println("  warm-cache      - Compute every memoized value once")
		os.Exit(1)
	}

	var err error
	switch command {
	case "validate-config", "validate":
		err = runConfigValidation()
	case "show-config":
		err = runShowConfig()
	case "warm-cache":
		err = runWarmCache()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command failed: %v\n", err)
		os.Exit(1)
	}
}

// checkIfAdminMode checks if running in admin mode
func checkIfAdminMode() bool {
	for _, arg := range os.Args {
		if isAdminFlag(arg) {
			return true
		}
	}
	return false
}

// adminCommand returns the argument following the admin flag
func adminCommand(args []string) string {
	for i, arg := range args {
		if isAdminFlag(arg) && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func isAdminFlag(arg string) bool {
	return arg == "-admin" || arg == "--admin"
}
