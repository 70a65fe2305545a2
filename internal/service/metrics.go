package service

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mir00r/telemetry-demo/internal/domain"
)

// Metrics implements domain.DecisionRecorder and aggregates engine decisions
type Metrics struct {
	// Global counters
	totalRequests int64
	triggered     int64
	failures      int64
	fallbacks     int64

	// Per-operation metrics
	operationMetrics map[domain.OperationKind]*OperationMetrics
	mu               sync.RWMutex

	// Operation latency tracking
	latencyBuckets map[domain.OperationKind]*LatencyBuckets

	startTime time.Time
}

// OperationMetrics holds metrics for a specific operation kind
type OperationMetrics struct {
	Executions    int64     `json:"executions"`
	Failures      int64     `json:"failures"`
	Fallbacks     int64     `json:"fallbacks"`
	TotalLatency  int64     `json:"total_latency_ms"`
	MinLatency    int64     `json:"min_latency_ms"`
	MaxLatency    int64     `json:"max_latency_ms"`
	LastExecution time.Time `json:"last_execution"`
}

// LatencyBuckets holds latency distribution data
type LatencyBuckets struct {
	Under10ms   int64 `json:"under_10ms"`
	Under50ms   int64 `json:"under_50ms"`
	Under100ms  int64 `json:"under_100ms"`
	Under500ms  int64 `json:"under_500ms"`
	Under1000ms int64 `json:"under_1000ms"`
	Over1000ms  int64 `json:"over_1000ms"`
}

// OperationSnapshot is a consistent copy of one operation's metrics
type OperationSnapshot struct {
	Operation domain.OperationKind `json:"operation"`
	OperationMetrics
	AvgLatency float64        `json:"avg_latency_ms"`
	Latency    LatencyBuckets `json:"latency_distribution"`
}

// Snapshot is a consistent copy of every engine metric
type Snapshot struct {
	TotalRequests int64               `json:"total_requests"`
	Triggered     int64               `json:"triggered"`
	Failures      int64               `json:"failures"`
	Fallbacks     int64               `json:"fallbacks"`
	TriggerRate   float64             `json:"trigger_rate"`
	Uptime        time.Duration       `json:"uptime"`
	Operations    []OperationSnapshot `json:"operations"`
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		operationMetrics: make(map[domain.OperationKind]*OperationMetrics),
		latencyBuckets:   make(map[domain.OperationKind]*LatencyBuckets),
		startTime:        time.Now(),
	}
}

// RecordDecision implements domain.DecisionRecorder
func (m *Metrics) RecordDecision(decision domain.BottleneckDecision) {
	atomic.AddInt64(&m.totalRequests, 1)
	if !decision.Triggered {
		return
	}

	atomic.AddInt64(&m.triggered, 1)
	if decision.Failed() {
		atomic.AddInt64(&m.failures, 1)
	}
	if decision.FellBack {
		atomic.AddInt64(&m.fallbacks, 1)
	}

	latencyMs := decision.DurationMs()

	m.mu.Lock()
	defer m.mu.Unlock()

	op := m.operationMetrics[decision.Operation]
	if op == nil {
		op = &OperationMetrics{
			MinLatency: latencyMs,
			MaxLatency: latencyMs,
		}
		m.operationMetrics[decision.Operation] = op
	}
	buckets := m.latencyBuckets[decision.Operation]
	if buckets == nil {
		buckets = &LatencyBuckets{}
		m.latencyBuckets[decision.Operation] = buckets
	}

	op.Executions++
	op.TotalLatency += latencyMs
	op.LastExecution = time.Now()
	if decision.Failed() {
		op.Failures++
	}
	if decision.FellBack {
		op.Fallbacks++
	}
	if latencyMs < op.MinLatency {
		op.MinLatency = latencyMs
	}
	if latencyMs > op.MaxLatency {
		op.MaxLatency = latencyMs
	}

	switch {
	case latencyMs < 10:
		buckets.Under10ms++
	case latencyMs < 50:
		buckets.Under50ms++
	case latencyMs < 100:
		buckets.Under100ms++
	case latencyMs < 500:
		buckets.Under500ms++
	case latencyMs < 1000:
		buckets.Under1000ms++
	default:
		buckets.Over1000ms++
	}
}

// Snapshot returns a copy of the current metrics, operations in selection order
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		TotalRequests: atomic.LoadInt64(&m.totalRequests),
		Triggered:     atomic.LoadInt64(&m.triggered),
		Failures:      atomic.LoadInt64(&m.failures),
		Fallbacks:     atomic.LoadInt64(&m.fallbacks),
		Uptime:        time.Since(m.startTime),
	}
	if snap.TotalRequests > 0 {
		snap.TriggerRate = float64(snap.Triggered) / float64(snap.TotalRequests)
	}

	for kind, op := range m.operationMetrics {
		entry := OperationSnapshot{Operation: kind, OperationMetrics: *op}
		if op.Executions > 0 {
			entry.AvgLatency = float64(op.TotalLatency) / float64(op.Executions)
		}
		if buckets := m.latencyBuckets[kind]; buckets != nil {
			entry.Latency = *buckets
		}
		snap.Operations = append(snap.Operations, entry)
	}

	order := make(map[domain.OperationKind]int)
	for i, kind := range domain.AllOperations() {
		order[kind] = i
	}
	sort.Slice(snap.Operations, func(i, j int) bool {
		return order[snap.Operations[i].Operation] < order[snap.Operations[j].Operation]
	})

	return snap
}

// GetStats returns current statistics
func (m *Metrics) GetStats() map[string]interface{} {
	snap := m.Snapshot()

	operations := make(map[string]interface{}, len(snap.Operations))
	for _, op := range snap.Operations {
		operations[op.Operation.String()] = map[string]interface{}{
			"executions":           op.Executions,
			"failures":             op.Failures,
			"fallbacks":            op.Fallbacks,
			"avg_latency_ms":       op.AvgLatency,
			"min_latency_ms":       op.MinLatency,
			"max_latency_ms":       op.MaxLatency,
			"last_execution":       op.LastExecution,
			"latency_distribution": op.Latency,
		}
	}

	return map[string]interface{}{
		"total_requests": snap.TotalRequests,
		"triggered":      snap.Triggered,
		"failures":       snap.Failures,
		"fallbacks":      snap.Fallbacks,
		"trigger_rate":   snap.TriggerRate,
		"uptime_seconds": snap.Uptime.Seconds(),
		"operations":     operations,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.totalRequests, 0)
	atomic.StoreInt64(&m.triggered, 0)
	atomic.StoreInt64(&m.failures, 0)
	atomic.StoreInt64(&m.fallbacks, 0)

	m.operationMetrics = make(map[domain.OperationKind]*OperationMetrics)
	m.latencyBuckets = make(map[domain.OperationKind]*LatencyBuckets)
}

// GetTotalRequests returns the total number of decisions recorded
func (m *Metrics) GetTotalRequests() int64 {
	return atomic.LoadInt64(&m.totalRequests)
}

// GetTriggered returns how many decisions injected a bottleneck
func (m *Metrics) GetTriggered() int64 {
	return atomic.LoadInt64(&m.triggered)
}

// GetFallbacks returns how many external calls were replaced by local computation
func (m *Metrics) GetFallbacks() int64 {
	return atomic.LoadInt64(&m.fallbacks)
}
