package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/telemetry-demo/internal/domain"
)

func TestMetricsRecordDecision(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordDecision(domain.BottleneckDecision{})
	m.RecordDecision(domain.BottleneckDecision{
		Triggered: true,
		Operation: domain.OperationCPUBound,
		Duration:  5 * time.Millisecond,
	})
	m.RecordDecision(domain.BottleneckDecision{
		Triggered: true,
		Operation: domain.OperationCPUBound,
		Duration:  700 * time.Millisecond,
	})
	m.RecordDecision(domain.BottleneckDecision{
		Triggered: true,
		Operation: domain.OperationExternalCall,
		Duration:  1500 * time.Millisecond,
		Err:       errors.New("refused"),
		FellBack:  true,
	})
	m.RecordDecision(domain.BottleneckDecision{
		Triggered: true,
		Operation: domain.OperationExternalCall,
		Duration:  1200 * time.Millisecond,
		Err:       errors.New("refused"),
		FellBack:  true,
		Recovered: true,
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(5), snap.TotalRequests)
	assert.Equal(t, int64(4), snap.Triggered)
	assert.Equal(t, int64(1), snap.Failures, "only the unrecovered fallback is a failure")
	assert.Equal(t, int64(2), snap.Fallbacks)
	assert.InDelta(t, 0.8, snap.TriggerRate, 1e-9)

	require.Len(t, snap.Operations, 2)
	assert.Equal(t, domain.OperationExternalCall, snap.Operations[0].Operation)
	assert.Equal(t, domain.OperationCPUBound, snap.Operations[1].Operation)

	cpu := snap.Operations[1]
	assert.Equal(t, int64(2), cpu.Executions)
	assert.Equal(t, int64(5), cpu.MinLatency)
	assert.Equal(t, int64(700), cpu.MaxLatency)
	assert.InDelta(t, 352.5, cpu.AvgLatency, 1e-9)
	assert.Equal(t, int64(1), cpu.Latency.Under10ms)
	assert.Equal(t, int64(1), cpu.Latency.Under1000ms)

	ext := snap.Operations[0]
	assert.Equal(t, int64(2), ext.Fallbacks)
	assert.Equal(t, int64(1), ext.Failures)
	assert.Equal(t, int64(2), ext.Latency.Over1000ms)
}

func TestMetricsGetStatsAndReset(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordDecision(domain.BottleneckDecision{Triggered: true, Operation: domain.OperationPayloadTransform})

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats["total_requests"])
	operations, ok := stats["operations"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, operations, "json_processing")

	m.Reset()
	assert.Zero(t, m.GetTotalRequests())
	assert.Empty(t, m.Snapshot().Operations)
}
