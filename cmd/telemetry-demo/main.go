package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/client"
	"github.com/mir00r/telemetry-demo/internal/config"
	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/internal/handler"
	"github.com/mir00r/telemetry-demo/internal/middleware"
	"github.com/mir00r/telemetry-demo/internal/server"
	"github.com/mir00r/telemetry-demo/internal/service"
	"github.com/mir00r/telemetry-demo/internal/workload"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

const (
	version = "1.0.0"

	// clientStartDelay gives the server time to bind in "both" mode
	clientStartDelay = 2 * time.Second
)

// getConfigSource returns the configuration source for logging
func getConfigSource() string {
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			return "file+env"
		}
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "file+env"
	}

	envVars := []string{
		"MODE", "PORT", "BOTTLENECK_PROBABILITY", "SERVER_URL", "TARGET_HOST", "LOG_LEVEL",
	}
	for _, envVar := range envVars {
		if os.Getenv(envVar) != "" {
			return "environment"
		}
	}

	return "defaults"
}

func main() {
	if checkIfAdminMode() {
		runAdminProcess()
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// A positional mode argument wins over MODE
	if mode := modeFromArgs(os.Args[1:]); mode != "" {
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			fmt.Printf("Invalid configuration: %v\n", err)
			os.Exit(1)
		}
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"version":       version,
		"mode":          cfg.Mode,
		"config_source": getConfigSource(),
		"process":       getProcessInfo(),
	}).Info("Starting telemetry demo")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Telemetry demo failed")
		os.Exit(1)
	}

	log.Info("Telemetry demo stopped gracefully")
}

// run starts the components selected by cfg.Mode and blocks until ctx is
// done or the server fails.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Mode == config.ModeServer || cfg.Mode == config.ModeBoth {
		srv, err := newServer(cfg, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if cfg.Mode == config.ModeClient || cfg.Mode == config.ModeBoth {
		delay := time.Duration(0)
		if cfg.Mode == config.ModeBoth {
			delay = clientStartDelay
		}
		g.Go(func() error {
			return runClient(ctx, cfg.Client, delay, log)
		})
	}

	return g.Wait()
}

func runClient(ctx context.Context, cfg domain.ClientConfig, delay time.Duration, log *logger.Logger) error {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}

	client.New(cfg, log).Run(ctx)
	return nil
}

// newServer wires the engine, handlers and middleware behind the HTTP server
func newServer(cfg *config.Config, log *logger.Logger) (*server.Server, error) {
	return server.New(cfg.Server, newHandler(cfg, log), log)
}

func newHandler(cfg *config.Config, log *logger.Logger) http.Handler {
	rng := domain.NewSeededRandom(cfg.Engine.Seed)
	memo := cache.New(cfg.Cache, cache.WithLogger(log))

	workloads := workload.NewSet(cfg.Engine, workload.Dependencies{
		Cache:  memo,
		Random: rng,
		Logger: log,
	})

	metrics := service.NewMetrics()
	selector := service.NewBottleneckSelector(cfg.Engine, workloads, rng, log, service.WithRecorder(metrics))

	log.WithFields(map[string]interface{}{
		"trigger_probability": selector.Probability(),
		"operations":          len(workloads),
		"cache_capacity":      memo.Capacity(),
		"cache_ttl":           memo.TTL().String(),
	}).Info("Bottleneck engine configured")

	deps := handler.Dependencies{
		Config:   cfg,
		Selector: selector,
		Metrics:  metrics,
		Cache:    memo,
		Random:   rng,
		Logger:   log,
		Version:  version,
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RecoveryMiddleware(log),
		middleware.LoggingMiddleware(log),
		middleware.CORSMiddleware(),
		middleware.SecurityHeadersMiddleware(),
	}

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, log)
		deps.RateLimiter = rateLimiter
		middlewares = append(middlewares, rateLimiter.RateLimitMiddleware())
		log.Info("Rate limiting enabled")
	}

	return middleware.Chain(handler.NewRouter(deps), middlewares...)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		File:        cfg.Logging.File,
		ServiceName: cfg.Logging.ServiceName,
	})
}

// modeFromArgs returns the first positional argument, lower-cased
func modeFromArgs(args []string) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			return strings.ToLower(arg)
		}
	}
	return ""
}
