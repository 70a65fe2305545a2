package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// ExternalCall asks a latency-injecting endpoint (httpbin style /delay/{n})
// to hold the response for a random number of seconds.
type ExternalCall struct {
	client   *http.Client
	baseURL  string
	minDelay int
	maxDelay int
	timeout  time.Duration
	rng      domain.RandomSource
	logger   *logger.Logger
}

// NewExternalCall creates the external call workload
func NewExternalCall(cfg domain.EngineConfig, deps Dependencies) *ExternalCall {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.ExternalTimeout}
	}

	minDelay, maxDelay := cfg.MinDelaySeconds, cfg.MaxDelaySeconds
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return &ExternalCall{
		client:   client,
		baseURL:  strings.TrimRight(cfg.DelayEndpoint, "/"),
		minDelay: minDelay,
		maxDelay: maxDelay,
		timeout:  cfg.ExternalTimeout,
		rng:      deps.Random,
		logger:   deps.Logger.WorkloadLogger(string(domain.OperationExternalCall)),
	}
}

// Kind implements domain.Workload
func (w *ExternalCall) Kind() domain.OperationKind {
	return domain.OperationExternalCall
}

// Execute performs the call. Any transport failure, including the deadline,
// is returned so the selector can fall back to local work.
func (w *ExternalCall) Execute(ctx context.Context, requestID string, tc domain.TelemetryContext) error {
	delay := w.minDelay + w.rng.IntN(w.maxDelay-w.minDelay+1)
	url := fmt.Sprintf("%s/delay/%d", w.baseURL, delay)

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.NewExternalCallError(url, err).WithRequestID(requestID)
	}
	req.Header.Set("X-Request-UUID", requestID)

	resp, err := w.client.Do(req)
	if err != nil {
		return w.classify(url, err).WithRequestID(requestID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return w.classify(url, err).WithRequestID(requestID)
	}

	tc.Put(domain.FieldHTTPResponseSize, len(body))

	w.logger.WithFields(map[string]interface{}{
		"url":           url,
		"status_code":   resp.StatusCode,
		"delay_seconds": delay,
		"request_uuid":  requestID,
	}).Debug("External call completed")

	return nil
}

func (w *ExternalCall) classify(url string, err error) *apperrors.DemoError {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewExternalTimeoutError(url, w.timeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewExternalTimeoutError(url, w.timeout, err)
	}
	return apperrors.NewExternalCallError(url, err)
}
