package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mir00r/telemetry-demo/internal/config"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/internal/service"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// StatsProvider reports component statistics for the admin API
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// AdminHandler provides administrative API endpoints
type AdminHandler struct {
	config      *config.Config
	metrics     *service.Metrics
	cache       CacheInspector
	rateLimiter StatsProvider
	logger      *logger.Logger
	startTime   time.Time
}

// NewAdminHandler creates a new admin handler. rateLimiter may be nil.
func NewAdminHandler(cfg *config.Config, metrics *service.Metrics, cache CacheInspector, rateLimiter StatsProvider, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		config:      cfg,
		metrics:     metrics,
		cache:       cache,
		rateLimiter: rateLimiter,
		logger:      logger.WithField("component", "admin_api"),
		startTime:   time.Now(),
	}
}

// StatsResponse represents comprehensive statistics
type StatsResponse struct {
	Uptime    string                 `json:"uptime"`
	Engine    service.Snapshot       `json:"engine"`
	Cache     interface{}            `json:"cache,omitempty"`
	CacheKeys []string               `json:"cache_keys,omitempty"`
	RateLimit map[string]interface{} `json:"rate_limit,omitempty"`
}

// GetStatsHandler handles GET /admin/stats
func (h *AdminHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{
		Uptime: time.Since(h.startTime).String(),
		Engine: h.metrics.Snapshot(),
	}
	if h.cache != nil {
		response.Cache = h.cache.Stats()
		response.CacheKeys = h.cache.Keys()
	}
	if h.rateLimiter != nil {
		response.RateLimit = h.rateLimiter.GetStats()
	}

	writeJSON(w, http.StatusOK, response)
}

// PurgeCacheHandler handles DELETE /admin/cache
func (h *AdminHandler) PurgeCacheHandler(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeErrorResponse(w, r, h.logger, errCacheNotConfigured())
		return
	}

	removed := h.cache.Purge()
	h.logger.WithField("removed", removed).Info("Memo cache purged")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "cache purged",
		"removed": removed,
	})
}

// CacheEntryResponse describes one memoized value without returning it
type CacheEntryResponse struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Age       string    `json:"age"`
}

// GetCacheEntryHandler handles GET /admin/cache/{key}. Inspecting an entry
// does not change its recency or the hit counters.
func (h *AdminHandler) GetCacheEntryHandler(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeErrorResponse(w, r, h.logger, errCacheNotConfigured())
		return
	}

	key := mux.Vars(r)["key"]
	entry, ok := h.cache.Peek(key)
	if !ok {
		writeErrorResponse(w, r, h.logger, apperrors.NewError(apperrors.ErrCodeNotFound, "admin_api",
			fmt.Sprintf("cache key '%s' is not present", key)).WithMetadata("key", key))
		return
	}

	writeJSON(w, http.StatusOK, CacheEntryResponse{
		Key:       entry.Key,
		Size:      len(entry.Value),
		CreatedAt: entry.CreatedAt,
		Age:       time.Since(entry.CreatedAt).Round(time.Millisecond).String(),
	})
}

func errCacheNotConfigured() error {
	return apperrors.NewError(apperrors.ErrCodeNotFound, "admin_api", "cache is not configured")
}

// ResetMetricsHandler handles DELETE /admin/metrics
func (h *AdminHandler) ResetMetricsHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.Reset()
	h.logger.Info("Engine metrics reset")
	writeJSON(w, http.StatusOK, map[string]string{"message": "metrics reset"})
}

// GetConfigHandler handles GET /admin/config
func (h *AdminHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config)
}
