package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// Header names sent with every request
const (
	HeaderUUID          = "UUID"
	HeaderClientName    = "X-Client-Name"
	HeaderRequestNumber = "X-Request-Number"
)

const defaultEndpoint = "/api/data"

// serverResponse is the JSON shape returned by the demo endpoints
type serverResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Server    string `json:"server"`
	RequestID string `json:"request_id"`
}

// Client generates steady load against a demo server
type Client struct {
	config     domain.ClientConfig
	endpoints  []string
	httpClient *http.Client
	newUUID    func() string
	logger     *logger.Logger
}

// New creates a polling client
func New(config domain.ClientConfig, log *logger.Logger) *Client {
	endpoints := config.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{defaultEndpoint}
	}

	return &Client{
		config:     config,
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: config.Timeout},
		newUUID:    uuid.NewString,
		logger:     log.ClientLogger(config.ClientName),
	}
}

// Run sends one request per tick until ctx is done or TotalRequests have been
// made. It returns the number of requests sent.
func (c *Client) Run(ctx context.Context) int {
	c.logger.WithFields(map[string]interface{}{
		"server_url":     c.config.ServerURL,
		"request_delay":  c.config.RequestDelay.String(),
		"total_requests": c.config.TotalRequests,
		"endpoints":      strings.Join(c.endpoints, ","),
	}).Info("Client starting")

	requestCount := 0
	ticker := time.NewTicker(c.config.RequestDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.WithField("total_requests_made", requestCount).Info("Client stopping")
			return requestCount
		case <-ticker.C:
			if c.config.TotalRequests > 0 && requestCount >= c.config.TotalRequests {
				c.logger.WithField("requests_completed", requestCount).Info("Client completed all requests")
				return requestCount
			}

			endpoint := c.endpoints[requestCount%len(c.endpoints)]
			c.makeRequest(ctx, c.config.ServerURL+endpoint, requestCount+1)
			requestCount++
		}
	}
}

// makeRequest performs a single GET and logs its outcome. Failures are
// logged and never stop the loop.
func (c *Client) makeRequest(ctx context.Context, url string, requestNum int) {
	start := time.Now()
	requestUUID := c.newUUID()

	reqLogger := c.logger.WithFields(map[string]interface{}{
		"url":          url,
		"request_num":  requestNum,
		"request_uuid": requestUUID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		reqLogger.WithError(err).Error("Error creating HTTP request")
		return
	}

	req.Header.Set("User-Agent", c.config.ClientName)
	req.Header.Set(HeaderClientName, c.config.ClientName)
	req.Header.Set(HeaderRequestNumber, strconv.Itoa(requestNum))
	req.Header.Set(HeaderUUID, requestUUID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reqLogger.WithError(err).Error("HTTP request failed")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		reqLogger.WithError(err).Error("Error reading response body")
		return
	}
	duration := time.Since(start)

	entry := reqLogger.WithFields(map[string]interface{}{
		"status_code": resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
	})

	var serverResp serverResponse
	if err := json.Unmarshal(body, &serverResp); err != nil {
		entry.WithField(domain.FieldResponseBody, string(body)).Info("HTTP request completed (raw response)")
		return
	}

	entry.WithFields(map[string]interface{}{
		"server_name": serverResp.Server,
		"message":     serverResp.Message,
		"request_id":  serverResp.RequestID,
	}).Info("HTTP request completed")
}

