package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/internal/middleware"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// Demo endpoint tunables
const (
	slowMinDelay     = 500 * time.Millisecond
	slowDelaySpread  = 2000
	errorProbability = 30
)

// DemoHandler serves the endpoints that produce plain traffic patterns:
// a fast home page, a slow endpoint and an intermittently failing one.
type DemoHandler struct {
	serverName string
	rng        domain.RandomSource
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *logger.Logger
}

// NewDemoHandler creates the demo handler
func NewDemoHandler(serverName string, rng domain.RandomSource, log *logger.Logger) *DemoHandler {
	return &DemoHandler{
		serverName: serverName,
		rng:        rng,
		sleep:      sleepContext,
		logger:     log.WithField("component", "demo_handler"),
	}
}

func (h *DemoHandler) response(r *http.Request, message string) Response {
	return Response{
		Message:   message,
		Timestamp: time.Now(),
		Server:    h.serverName,
		RequestID: middleware.GetRequestID(r.Context()),
	}
}

func (h *DemoHandler) requestFields(r *http.Request) map[string]interface{} {
	return map[string]interface{}{
		"path":        r.URL.Path,
		"method":      r.Method,
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
		"request_id":  middleware.GetRequestID(r.Context()),
	}
}

// HomeHandler handles GET /
func (h *DemoHandler) HomeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response(r, "Hello from Go Server!"))
	h.logger.WithFields(h.requestFields(r)).Info("HTTP request served")
}

// SlowHandler handles GET /api/slow
func (h *DemoHandler) SlowHandler(w http.ResponseWriter, r *http.Request) {
	delay := slowMinDelay + time.Duration(h.rng.IntN(slowDelaySpread))*time.Millisecond
	if err := h.sleep(r.Context(), delay); err != nil {
		h.logger.WithFields(h.requestFields(r)).WithError(err).Warn("Slow request abandoned by client")
		return
	}

	writeJSON(w, http.StatusOK, h.response(r, fmt.Sprintf("Slow response (took %v)", delay)))
	h.logger.WithFields(h.requestFields(r)).WithField("delay_ms", delay.Milliseconds()).Info("Slow request served")
}

// ErrorHandler handles GET /api/error
func (h *DemoHandler) ErrorHandler(w http.ResponseWriter, r *http.Request) {
	if h.rng.IntN(100) < errorProbability {
		writeJSON(w, http.StatusInternalServerError, h.response(r, "Internal Server Error"))
		h.logger.WithFields(h.requestFields(r)).WithField("status_code", http.StatusInternalServerError).
			Error("Error endpoint returned 500")
		return
	}

	writeJSON(w, http.StatusOK, h.response(r, "Success response"))
	h.logger.WithFields(h.requestFields(r)).WithField("status_code", http.StatusOK).
		Info("Error endpoint returned success")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
