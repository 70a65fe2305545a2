package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mir00r/telemetry-demo/internal/config"
	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/internal/service"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// Dependencies are the collaborators the HTTP surface is built from
type Dependencies struct {
	Config   *config.Config
	Selector domain.Selector
	Metrics  *service.Metrics
	Cache    CacheInspector
	// RateLimiter is optional; its statistics are shown under /admin/stats
	RateLimiter StatsProvider
	Random      domain.RandomSource
	Logger      *logger.Logger
	Version     string
}

// NewRouter registers every endpoint of the demo server
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()

	data := NewDataHandler(deps.Selector, "Go", deps.Logger)
	demo := NewDemoHandler(deps.Config.Server.ServerName, deps.Random, deps.Logger)
	health := NewHealthHandler(deps.Version)
	prometheus := NewPrometheusHandler(deps.Metrics, deps.Cache, deps.Logger)
	admin := NewAdminHandler(deps.Config, deps.Metrics, deps.Cache, deps.RateLimiter, deps.Logger)

	router.HandleFunc("/", demo.HomeHandler).Methods(http.MethodGet)

	// Registered on the root router so a method mismatch yields 405, not 404
	router.Handle("/api/data", data).Methods(http.MethodGet)
	router.HandleFunc("/api/slow", demo.SlowHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/error", demo.ErrorHandler).Methods(http.MethodGet)

	router.HandleFunc("/health", health.HealthCheckHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", health.HealthCheckHandler).Methods(http.MethodGet)
	router.HandleFunc("/readiness", health.ReadinessHandler).Methods(http.MethodGet)
	router.HandleFunc("/liveness", health.LivenessHandler).Methods(http.MethodGet)
	router.HandleFunc("/metrics", prometheus.MetricsHandler).Methods(http.MethodGet)

	router.HandleFunc("/admin/stats", admin.GetStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/admin/config", admin.GetConfigHandler).Methods(http.MethodGet)
	router.HandleFunc("/admin/cache", admin.PurgeCacheHandler).Methods(http.MethodDelete)
	router.HandleFunc("/admin/cache/{key}", admin.GetCacheEntryHandler).Methods(http.MethodGet)
	router.HandleFunc("/admin/metrics", admin.ResetMetricsHandler).Methods(http.MethodDelete)

	return router
}
