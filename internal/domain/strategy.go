package domain

import (
	"context"
)

// TelemetryContext receives the structured fields produced while a request is served.
// Implementations must be safe for concurrent use.
type TelemetryContext interface {
	Put(key string, value interface{})
}

// Workload is one simulated slow operation. The set of implementations is closed
// and matches AllOperations.
type Workload interface {
	// Kind returns the operation kind the workload implements
	Kind() OperationKind

	// Execute runs the simulation on the calling goroutine and blocks for its
	// full cost. Incidental metadata is written to tc.
	Execute(ctx context.Context, requestID string, tc TelemetryContext) error
}

// RandomSource is the randomness consumed by the selector and workloads.
// Implementations must be safe for concurrent use.
type RandomSource interface {
	// Float64 returns a uniform value in [0,1)
	Float64() float64
	// IntN returns a uniform value in [0,n)
	IntN(n int) int
}

// DecisionRecorder observes every decision taken by the selector
type DecisionRecorder interface {
	RecordDecision(decision BottleneckDecision)
}

// Selector decides per request whether to inject a bottleneck
type Selector interface {
	Decide(ctx context.Context, requestID string, tc TelemetryContext) BottleneckDecision
}

// NopTelemetry discards every field
type NopTelemetry struct{}

// Put implements TelemetryContext
func (NopTelemetry) Put(string, interface{}) {}
