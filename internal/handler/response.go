package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/internal/middleware"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// Response is the JSON body of the demo endpoints
type Response struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Server    string    `json:"server"`
	RequestID string    `json:"request_id"`
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	ErrorCode string    `json:"error_code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes body as JSON with the given status code
func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// writeErrorResponse writes a standardized error response. The status code
// and error code come from err; errors outside the taxonomy map to 500.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	if !apperrors.IsDemoError(err) {
		err = apperrors.WrapError(err, apperrors.ErrCodeInternalError, "handler", err.Error())
	}
	var demoErr *apperrors.DemoError
	errors.As(err, &demoErr)

	requestID := middleware.GetRequestID(r.Context())
	code := apperrors.GetHTTPStatusCode(err)
	writeJSON(w, code, ErrorResponse{
		Error:     demoErr.Message,
		Code:      code,
		ErrorCode: string(apperrors.GetErrorCode(err)),
		Timestamp: time.Now(),
		RequestID: requestID,
	})

	entry := log.WithFields(map[string]interface{}{
		"error":      demoErr.Message,
		"error_code": demoErr.Code,
		"code":       code,
		"request_id": requestID,
	})
	if code >= http.StatusInternalServerError {
		entry.Error("API error response")
		return
	}
	entry.Warn("API error response")
}
