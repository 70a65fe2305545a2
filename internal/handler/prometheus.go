package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/service"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// CacheInspector exposes the memo cache state to the metrics and admin endpoints
type CacheInspector interface {
	Stats() cache.Stats
	Keys() []string
	Peek(key string) (cache.Entry, bool)
	Purge() int
}

// PrometheusHandler provides Prometheus-compatible metrics endpoint
type PrometheusHandler struct {
	metrics   *service.Metrics
	cache     CacheInspector
	logger    *logger.Logger
	startTime time.Time
}

// NewPrometheusHandler creates a new Prometheus metrics handler
func NewPrometheusHandler(metrics *service.Metrics, cache CacheInspector, logger *logger.Logger) *PrometheusHandler {
	return &PrometheusHandler{
		metrics:   metrics,
		cache:     cache,
		logger:    logger.MetricsLogger(),
		startTime: time.Now(),
	}
}

// MetricsHandler serves Prometheus-formatted metrics
func (h *PrometheusHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	snap := h.metrics.Snapshot()

	fmt.Fprintf(w, "# HELP telemetry_demo_requests_total Requests that reached the bottleneck engine\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_requests_total counter\n")
	fmt.Fprintf(w, "telemetry_demo_requests_total %d\n", snap.TotalRequests)

	fmt.Fprintf(w, "# HELP telemetry_demo_bottlenecks_total Requests that had a bottleneck injected\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_bottlenecks_total counter\n")
	fmt.Fprintf(w, "telemetry_demo_bottlenecks_total %d\n", snap.Triggered)

	fmt.Fprintf(w, "# HELP telemetry_demo_trigger_ratio Observed fraction of requests with a bottleneck\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_trigger_ratio gauge\n")
	fmt.Fprintf(w, "telemetry_demo_trigger_ratio %.4f\n", snap.TriggerRate)

	fmt.Fprintf(w, "# HELP telemetry_demo_operation_executions_total Slow operations executed\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_operation_executions_total counter\n")
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "telemetry_demo_operation_executions_total{operation=\"%s\"} %d\n",
			sanitizeLabel(op.Operation.String()), op.Executions)
	}

	fmt.Fprintf(w, "# HELP telemetry_demo_operation_failures_total Slow operations that failed without a successful fallback\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_operation_failures_total counter\n")
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "telemetry_demo_operation_failures_total{operation=\"%s\"} %d\n",
			sanitizeLabel(op.Operation.String()), op.Failures)
	}

	fmt.Fprintf(w, "# HELP telemetry_demo_operation_fallbacks_total External calls replaced by local computation\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_operation_fallbacks_total counter\n")
	fmt.Fprintf(w, "telemetry_demo_operation_fallbacks_total %d\n", snap.Fallbacks)

	fmt.Fprintf(w, "# HELP telemetry_demo_operation_duration_seconds Average slow operation duration in seconds\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_operation_duration_seconds gauge\n")
	for _, op := range snap.Operations {
		fmt.Fprintf(w, "telemetry_demo_operation_duration_seconds{operation=\"%s\",stat=\"avg\"} %.6f\n",
			sanitizeLabel(op.Operation.String()), op.AvgLatency/1000.0)
		fmt.Fprintf(w, "telemetry_demo_operation_duration_seconds{operation=\"%s\",stat=\"max\"} %.6f\n",
			sanitizeLabel(op.Operation.String()), float64(op.MaxLatency)/1000.0)
	}

	if h.cache != nil {
		stats := h.cache.Stats()

		fmt.Fprintf(w, "# HELP telemetry_demo_cache_lookups_total Memo cache lookups by result\n")
		fmt.Fprintf(w, "# TYPE telemetry_demo_cache_lookups_total counter\n")
		fmt.Fprintf(w, "telemetry_demo_cache_lookups_total{result=\"hit\"} %d\n", stats.Hits)
		fmt.Fprintf(w, "telemetry_demo_cache_lookups_total{result=\"miss\"} %d\n", stats.Misses)

		fmt.Fprintf(w, "# HELP telemetry_demo_cache_computations_total Values computed on a cache miss\n")
		fmt.Fprintf(w, "# TYPE telemetry_demo_cache_computations_total counter\n")
		fmt.Fprintf(w, "telemetry_demo_cache_computations_total %d\n", stats.Computations)

		fmt.Fprintf(w, "# HELP telemetry_demo_cache_evictions_total Entries removed for capacity or age\n")
		fmt.Fprintf(w, "# TYPE telemetry_demo_cache_evictions_total counter\n")
		fmt.Fprintf(w, "telemetry_demo_cache_evictions_total{reason=\"capacity\"} %d\n", stats.Evictions)
		fmt.Fprintf(w, "telemetry_demo_cache_evictions_total{reason=\"expired\"} %d\n", stats.Expirations)

		fmt.Fprintf(w, "# HELP telemetry_demo_cache_entries Entries currently held by the memo cache\n")
		fmt.Fprintf(w, "# TYPE telemetry_demo_cache_entries gauge\n")
		fmt.Fprintf(w, "telemetry_demo_cache_entries %d\n", stats.Size)
	}

	fmt.Fprintf(w, "# HELP telemetry_demo_uptime_seconds Server uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE telemetry_demo_uptime_seconds gauge\n")
	fmt.Fprintf(w, "telemetry_demo_uptime_seconds %.2f\n", time.Since(h.startTime).Seconds())

	h.writeGoMetrics(w)

	h.logger.Debug("Served Prometheus metrics")
}

// writeGoMetrics writes Go runtime metrics in Prometheus format
func (h *PrometheusHandler) writeGoMetrics(w http.ResponseWriter) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintf(w, "# HELP go_info Information about the Go environment\n")
	fmt.Fprintf(w, "# TYPE go_info gauge\n")
	fmt.Fprintf(w, "go_info{version=\"%s\"} 1\n", runtime.Version())

	fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines that currently exist\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP go_memstats_heap_alloc_bytes Heap bytes allocated and still in use\n")
	fmt.Fprintf(w, "# TYPE go_memstats_heap_alloc_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_heap_alloc_bytes %d\n", mem.HeapAlloc)

	fmt.Fprintf(w, "# HELP process_start_time_seconds Start time of the process since unix epoch in seconds\n")
	fmt.Fprintf(w, "# TYPE process_start_time_seconds gauge\n")
	fmt.Fprintf(w, "process_start_time_seconds %d\n", h.startTime.Unix())
}

// sanitizeLabel sanitizes metric label values for Prometheus
func sanitizeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
