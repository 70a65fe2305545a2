package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/config"
	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/internal/middleware"
	"github.com/mir00r/telemetry-demo/internal/service"
	"github.com/mir00r/telemetry-demo/internal/workload"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// fixedSelector always returns the same decision and records what it saw
type fixedSelector struct {
	mu       sync.Mutex
	decision domain.BottleneckDecision
	seen     []string
	panicMsg string
}

func (s *fixedSelector) Decide(ctx context.Context, requestID string, tc domain.TelemetryContext) domain.BottleneckDecision {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.mu.Lock()
	s.seen = append(s.seen, requestID)
	s.mu.Unlock()

	tc.Put(domain.FieldPerformanceIssue, s.decision.Triggered)
	d := s.decision
	d.RequestID = requestID
	return d
}

// constRandom returns the same draw every time
type constRandom struct {
	f float64
	n int
}

func (r constRandom) Float64() float64 { return r.f }
func (r constRandom) IntN(n int) int   { return r.n % n }

func bufferLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := logger.NewWithWriter(logger.Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	return log, &buf
}

func TestDataHandlerEchoesUUID(t *testing.T) {
	log, buf := bufferLogger(t)
	selector := &fixedSelector{}
	h := NewDataHandler(selector, "Go", log)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set(UUIDHeader, "3f1c")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello from Go! UUID: 3f1c", rec.Body.String())
	assert.Equal(t, []string{"3f1c"}, selector.seen)

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "Request processed successfully", entry["message"])
	assert.Equal(t, "server_response_sent", entry["event_type"])
	assert.Equal(t, "3f1c", entry["request_uuid"])
	assert.Equal(t, "/api/data", entry["endpoint"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, "Hello from Go! UUID: 3f1c", entry["response_body"])
	assert.Equal(t, false, entry["performance_issue"])
}

func TestDataHandlerGeneratesMissingUUID(t *testing.T) {
	log, _ := bufferLogger(t)
	h := NewDataHandler(&fixedSelector{}, "Go", log)
	h.now = func() time.Time { return time.UnixMilli(1700000000123) }

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	assert.Equal(t, "Hello from Go! UUID: generated-1700000000123", rec.Body.String())
}

func TestDataHandlerReportsPanicsAsErrors(t *testing.T) {
	log, buf := bufferLogger(t)
	h := NewDataHandler(&fixedSelector{panicMsg: "engine exploded"}, "Go", log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error processing request: engine exploded", rec.Body.String())
	assert.Contains(t, buf.String(), `"error_message":"engine exploded"`)
}

func TestDemoEndpoints(t *testing.T) {
	log, _ := bufferLogger(t)

	t.Run("home", func(t *testing.T) {
		h := NewDemoHandler("unit-server", constRandom{}, log)
		rec := httptest.NewRecorder()
		h.HomeHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		var body Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Hello from Go Server!", body.Message)
		assert.Equal(t, "unit-server", body.Server)
	})

	t.Run("slow waits at least the minimum delay", func(t *testing.T) {
		h := NewDemoHandler("unit-server", constRandom{n: 250}, log)
		var slept time.Duration
		h.sleep = func(ctx context.Context, d time.Duration) error {
			slept = d
			return nil
		}

		rec := httptest.NewRecorder()
		h.SlowHandler(rec, httptest.NewRequest(http.MethodGet, "/api/slow", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 750*time.Millisecond, slept)
		assert.Contains(t, rec.Body.String(), "Slow response (took 750ms)")
	})

	t.Run("slow gives up when the client leaves", func(t *testing.T) {
		h := NewDemoHandler("unit-server", constRandom{}, log)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		rec := httptest.NewRecorder()
		h.SlowHandler(rec, httptest.NewRequest(http.MethodGet, "/api/slow", nil).WithContext(ctx))
		assert.Empty(t, rec.Body.String())
	})

	t.Run("error fails under the threshold", func(t *testing.T) {
		h := NewDemoHandler("unit-server", constRandom{n: 29}, log)
		rec := httptest.NewRecorder()
		h.ErrorHandler(rec, httptest.NewRequest(http.MethodGet, "/api/error", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("error succeeds above the threshold", func(t *testing.T) {
		h := NewDemoHandler("unit-server", constRandom{n: 30}, log)
		rec := httptest.NewRecorder()
		h.ErrorHandler(rec, httptest.NewRequest(http.MethodGet, "/api/error", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Success response")
	})
}

func newTestRouter(t *testing.T) (http.Handler, *service.Metrics, *cache.MemoCache) {
	t.Helper()
	log, _ := bufferLogger(t)

	cfg := config.DefaultConfig()
	cfg.Engine.TriggerProbability = 1
	cfg.Engine.MemoLines = 10

	memo := cache.New(cfg.Cache)
	metrics := service.NewMetrics()
	// every draw triggers the memoized computation on key 2
	rng := constRandom{f: 0, n: 2}
	workloads := workload.NewSet(cfg.Engine, workload.Dependencies{Cache: memo, Random: rng, Logger: log})
	selector := service.NewBottleneckSelector(cfg.Engine, workloads, rng, log, service.WithRecorder(metrics))

	router := NewRouter(Dependencies{
		Config:   cfg,
		Selector: selector,
		Metrics:  metrics,
		Cache:    memo,
		Random:   rng,
		Logger:   log,
		Version:  "test",
	})
	return middleware.Chain(router, middleware.LoggingMiddleware(log)), metrics, memo
}

func TestRouterEndToEnd(t *testing.T) {
	router, metrics, memo := newTestRouter(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.Header.Set(UUIDHeader, "u-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, int64(3), metrics.GetTriggered())
	assert.Equal(t, []string{"expensive-computation-2"}, memo.Keys())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "telemetry_demo_requests_total 3")
	assert.Contains(t, body, `telemetry_demo_operation_executions_total{operation="cache_loading"} 3`)
	assert.Contains(t, body, `telemetry_demo_cache_lookups_total{result="hit"} 2`)
	assert.Contains(t, body, "telemetry_demo_cache_computations_total 1")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "engine")
	assert.Contains(t, stats, "cache")
	assert.NotContains(t, stats, "rate_limit")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/cache/expensive-computation-2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entry CacheEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "expensive-computation-2", entry.Key)
	assert.Positive(t, entry.Size)
	assert.Equal(t, int64(2), memo.Stats().Hits, "inspecting an entry is not a lookup")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/cache/expensive-computation-7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errBody ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "NOT_FOUND", errBody.ErrorCode)
	assert.Equal(t, http.StatusNotFound, errBody.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/cache", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"removed":1`)
	assert.Zero(t, memo.Len())
}

func TestRouterHealthAndMethods(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/healthz", "/readiness", "/liveness"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}

	wrongMethods := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/data"},
		{http.MethodPost, "/api/slow"},
		{http.MethodPost, "/admin/cache"},
		{http.MethodGet, "/admin/metrics"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range wrongMethods {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, tt.method+" "+tt.path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trigger_probability":1`)
}

func TestHomeCarriesRequestID(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-me")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "trace-me", body.RequestID)
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, `a\"b\\c\n`, sanitizeLabel("a\"b\\c\n"))
}

func TestWriteErrorResponseMapsErrorCodes(t *testing.T) {
	log, _ := bufferLogger(t)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
		wantMsg  string
	}{
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
			wantErr:  "INTERNAL_ERROR",
			wantMsg:  "boom",
		},
		{
			name:     "wrapped timeout",
			err:      fmt.Errorf("engine: %w", apperrors.NewFanOutTimeoutError(10, time.Second, context.DeadlineExceeded)),
			wantCode: http.StatusGatewayTimeout,
			wantErr:  "FANOUT_TIMEOUT",
			wantMsg:  "Fan-out of 10 tasks did not complete within 1s",
		},
		{
			name:     "rate limited",
			err:      apperrors.NewError(apperrors.ErrCodeRateLimitExceeded, "rate_limiter", "slow down"),
			wantCode: http.StatusTooManyRequests,
			wantErr:  "RATE_LIMIT_EXCEEDED",
			wantMsg:  "slow down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeErrorResponse(rec, httptest.NewRequest(http.MethodGet, "/", nil), log, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantErr, body.ErrorCode)
			assert.Equal(t, tt.wantMsg, body.Error)
		})
	}
}
