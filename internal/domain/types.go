package domain

import (
	"fmt"
	"net/http"
	"time"
)

// OperationKind identifies one of the simulated slow operations
type OperationKind string

const (
	// OperationNone is reported when no bottleneck was injected
	OperationNone OperationKind = ""
	// OperationExternalCall calls a latency-injecting remote endpoint
	OperationExternalCall OperationKind = "http_client"
	// OperationPayloadTransform round-trips a large payload through JSON
	OperationPayloadTransform OperationKind = "json_processing"
	// OperationMemoizedComputation loads an expensive value through the shared cache
	OperationMemoizedComputation OperationKind = "cache_loading"
	// OperationCPUBound burns CPU on digests, big-int math and primes
	OperationCPUBound OperationKind = "cpu_intensive"
	// OperationConcurrentFanOut runs a batch of concurrent sub-tasks and joins them
	OperationConcurrentFanOut OperationKind = "concurrent_processing"
)

var allOperations = []OperationKind{
	OperationExternalCall,
	OperationPayloadTransform,
	OperationMemoizedComputation,
	OperationCPUBound,
	OperationConcurrentFanOut,
}

// AllOperations returns the closed set of operation kinds in selection order
func AllOperations() []OperationKind {
	ops := make([]OperationKind, len(allOperations))
	copy(ops, allOperations)
	return ops
}

// Valid reports whether the kind belongs to the closed set
func (k OperationKind) Valid() bool {
	for _, op := range allOperations {
		if op == k {
			return true
		}
	}
	return false
}

// String returns the telemetry label of the kind
func (k OperationKind) String() string {
	if k == OperationNone {
		return "none"
	}
	return string(k)
}

// ParseOperationKind converts a telemetry label back into an OperationKind
func ParseOperationKind(s string) (OperationKind, error) {
	kind := OperationKind(s)
	if !kind.Valid() {
		return OperationNone, fmt.Errorf("unknown operation kind: %s", s)
	}
	return kind, nil
}

// BottleneckDecision is the per-request outcome of the bottleneck selector.
// It is never persisted.
type BottleneckDecision struct {
	RequestID string        `json:"request_id"`
	Triggered bool          `json:"triggered"`
	Operation OperationKind `json:"operation,omitempty"`
	Duration  time.Duration `json:"duration"`
	// Err holds the failure of the selected workload, if any. It is informational
	// only and never turned into a request failure.
	Err error `json:"-"`
	// FellBack is set when a failed external call was replaced by the CPU-bound workload
	FellBack bool `json:"fell_back,omitempty"`
	// Recovered is set when that replacement succeeded
	Recovered bool `json:"recovered,omitempty"`
}

// Failed reports whether the decision ended with an unrecovered workload error
func (d BottleneckDecision) Failed() bool {
	return d.Err != nil && !d.Recovered
}

// DurationMs returns the measured duration in whole milliseconds
func (d BottleneckDecision) DurationMs() int64 {
	return d.Duration.Milliseconds()
}

// Telemetry field names written by the engine and the request handler
const (
	FieldPerformanceIssue         = "performance_issue"
	FieldSlowOperationType        = "slow_operation_type"
	FieldOperationDurationMs      = "operation_duration_ms"
	FieldHTTPResponseSize         = "http_response_size"
	FieldJSONSizeBytes            = "json_size_bytes"
	FieldProcessedJSONItems       = "processed_json_items"
	FieldCacheResultSize          = "cache_result_size"
	FieldComputationProgress      = "computation_progress"
	FieldConcurrentTasksCompleted = "concurrent_tasks_completed"
	FieldPrimesCalculated         = "primes_calculated"

	FieldEventType    = "event_type"
	FieldRequestUUID  = "request_uuid"
	FieldEndpoint     = "endpoint"
	FieldMethod       = "method"
	FieldResponseBody = "response_body"
	FieldStatus       = "status"
	FieldErrorType    = "error_type"
	FieldErrorMessage = "error_message"
)

// EngineConfig holds every tunable of the bottleneck engine
type EngineConfig struct {
	TriggerProbability float64 `yaml:"trigger_probability" json:"trigger_probability"`
	// Seed feeds the random source; zero means seed from the clock
	Seed uint64 `yaml:"seed" json:"seed"`

	DelayEndpoint   string        `yaml:"delay_endpoint" json:"delay_endpoint"`
	ExternalTimeout time.Duration `yaml:"external_timeout" json:"external_timeout"`
	MinDelaySeconds int           `yaml:"min_delay_seconds" json:"min_delay_seconds"`
	MaxDelaySeconds int           `yaml:"max_delay_seconds" json:"max_delay_seconds"`

	PayloadItems        int `yaml:"payload_items" json:"payload_items"`
	PayloadNestedFields int `yaml:"payload_nested_fields" json:"payload_nested_fields"`
	PayloadRounds       int `yaml:"payload_rounds" json:"payload_rounds"`

	MemoKeys  int `yaml:"memo_keys" json:"memo_keys"`
	MemoLines int `yaml:"memo_lines" json:"memo_lines"`

	CPURounds  int   `yaml:"cpu_rounds" json:"cpu_rounds"`
	CPUModulus int64 `yaml:"cpu_modulus" json:"cpu_modulus"`
	PrimeLimit int   `yaml:"prime_limit" json:"prime_limit"`

	FanOutTasks   int           `yaml:"fanout_tasks" json:"fanout_tasks"`
	FanOutLines   int           `yaml:"fanout_lines" json:"fanout_lines"`
	FanOutTimeout time.Duration `yaml:"fanout_timeout" json:"fanout_timeout"`
}

// DefaultEngineConfig returns the engine settings of the reference demo
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TriggerProbability:  0.3,
		DelayEndpoint:       "https://httpbin.org",
		ExternalTimeout:     10 * time.Second,
		MinDelaySeconds:     1,
		MaxDelaySeconds:     3,
		PayloadItems:        2000,
		PayloadNestedFields: 10,
		PayloadRounds:       10,
		MemoKeys:            20,
		MemoLines:           50000,
		CPURounds:           5000,
		CPUModulus:          982451653,
		PrimeLimit:          1000,
		FanOutTasks:         10,
		FanOutLines:         1000,
		FanOutTimeout:       30 * time.Second,
	}
}

// CacheConfig bounds the memoization cache
type CacheConfig struct {
	Capacity int           `yaml:"capacity" json:"capacity"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
}

// ClientConfig configures the polling client
type ClientConfig struct {
	ServerURL     string        `yaml:"server_url" json:"server_url"`
	RequestDelay  time.Duration `yaml:"request_delay" json:"request_delay"`
	ClientName    string        `yaml:"client_name" json:"client_name"`
	TotalRequests int           `yaml:"total_requests" json:"total_requests"`
	Endpoints     []string      `yaml:"endpoints" json:"endpoints"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// RequestContext contains request-specific information
type RequestContext struct {
	RequestID  string
	RemoteAddr string
	UserAgent  string
	Method     string
	Path       string
	StartTime  time.Time
}

// NewRequestContext creates a new RequestContext from an HTTP request
func NewRequestContext(r *http.Request, requestID string) *RequestContext {
	return &RequestContext{
		RequestID:  requestID,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Method:     r.Method,
		Path:       r.URL.Path,
		StartTime:  time.Now(),
	}
}
