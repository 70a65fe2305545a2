package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// UUIDHeader carries the caller supplied request UUID
const UUIDHeader = "UUID"

// DataHandler serves /api/data: it runs the bottleneck engine and answers
// with a greeting naming the request UUID.
type DataHandler struct {
	selector domain.Selector
	greeting string
	now      func() time.Time
	logger   *logger.Logger
}

// NewDataHandler creates the data handler. greeting names the runtime in the
// response body ("Hello from <greeting>! UUID: ...").
func NewDataHandler(selector domain.Selector, greeting string, log *logger.Logger) *DataHandler {
	return &DataHandler{
		selector: selector,
		greeting: greeting,
		now:      time.Now,
		logger:   log.WithField("component", "data_handler"),
	}
}

// ServeHTTP implements http.Handler
func (h *DataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestUUID := r.Header.Get(UUIDHeader)
	if requestUUID == "" {
		requestUUID = "generated-" + strconv.FormatInt(h.now().UnixMilli(), 10)
	}

	tc := logger.NewContext()
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			tc.Put(domain.FieldErrorType, fmt.Sprintf("%T", rec))
			tc.Put(domain.FieldErrorMessage, err.Error())
			h.logger.WithContext(tc).WithError(err).Error("Error during request processing")

			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "Error processing request: %s", err.Error())
		}
	}()

	tc.Put(domain.FieldEventType, "server_request_received")
	tc.Put(domain.FieldRequestUUID, requestUUID)
	tc.Put(domain.FieldEndpoint, r.URL.Path)
	tc.Put(domain.FieldMethod, r.Method)
	h.logger.WithContext(tc).Debug("Request received")

	h.selector.Decide(r.Context(), requestUUID, tc)

	response := fmt.Sprintf("Hello from %s! UUID: %s", h.greeting, requestUUID)
	tc.Put(domain.FieldEventType, "server_response_sent")
	tc.Put(domain.FieldResponseBody, response)
	tc.Put(domain.FieldStatus, "success")
	h.logger.WithContext(tc).Info("Request processed successfully")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(response))
}
