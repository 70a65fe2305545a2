package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/internal/workload"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// BottleneckSelector implements domain.Selector. For each request it draws once
// from the random source and, when the draw falls under the trigger
// probability, runs one uniformly chosen workload on the caller's goroutine.
type BottleneckSelector struct {
	probability float64
	workloads   workload.Set
	kinds       []domain.OperationKind
	rng         domain.RandomSource
	recorder    domain.DecisionRecorder
	logger      *logger.Logger
}

// SelectorOption customises a BottleneckSelector
type SelectorOption func(*BottleneckSelector)

// WithRecorder reports every decision to r
func WithRecorder(r domain.DecisionRecorder) SelectorOption {
	return func(s *BottleneckSelector) {
		s.recorder = r
	}
}

// NewBottleneckSelector creates a selector over the given workloads
func NewBottleneckSelector(
	cfg domain.EngineConfig,
	workloads workload.Set,
	rng domain.RandomSource,
	log *logger.Logger,
	opts ...SelectorOption,
) *BottleneckSelector {
	s := &BottleneckSelector{
		probability: cfg.TriggerProbability,
		workloads:   workloads,
		kinds:       domain.AllOperations(),
		rng:         rng,
		logger:      log.EngineLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Probability returns the configured trigger probability
func (s *BottleneckSelector) Probability() float64 {
	return s.probability
}

// Decide implements domain.Selector. Workload failures never escape: they are
// logged and attached to the decision, and a failed external call is replaced
// by the CPU-bound workload.
func (s *BottleneckSelector) Decide(ctx context.Context, requestID string, tc domain.TelemetryContext) domain.BottleneckDecision {
	decision := domain.BottleneckDecision{RequestID: requestID}

	if s.rng.Float64() >= s.probability {
		tc.Put(domain.FieldPerformanceIssue, false)
		s.record(decision)
		return decision
	}

	kind := s.kinds[s.rng.IntN(len(s.kinds))]
	decision.Triggered = true
	decision.Operation = kind

	tc.Put(domain.FieldPerformanceIssue, true)
	tc.Put(domain.FieldSlowOperationType, kind.String())

	log := s.logger.WithFields(map[string]interface{}{
		"request_uuid":               requestID,
		domain.FieldSlowOperationType: kind.String(),
	})
	log.Warn("Simulating realistic performance bottleneck")

	start := time.Now()
	s.execute(ctx, &decision, tc, log)
	decision.Duration = time.Since(start)

	tc.Put(domain.FieldOperationDurationMs, decision.DurationMs())
	log.Warn(fmt.Sprintf("Completed slow operation: %s in %dms", kind, decision.DurationMs()))

	s.record(decision)
	return decision
}

// execute runs kind and, when the external call fails, the CPU-bound
// workload in its place
func (s *BottleneckSelector) execute(
	ctx context.Context,
	decision *domain.BottleneckDecision,
	tc domain.TelemetryContext,
	log *logger.Logger,
) {
	err := s.run(ctx, decision.Operation, decision.RequestID, tc)
	if err == nil {
		return
	}

	if decision.Operation != domain.OperationExternalCall {
		log.WithError(err).Warn("Slow operation failed")
		decision.Err = err
		return
	}

	log.WithError(err).WithField("retryable", apperrors.IsRetryable(err)).
		Warn("HTTP client operation failed, falling back to local computation")
	decision.FellBack = true
	if fallbackErr := s.run(ctx, domain.OperationCPUBound, decision.RequestID, tc); fallbackErr != nil {
		log.WithError(fallbackErr).Warn("Fallback computation failed")
		decision.Err = errors.Join(err, fallbackErr)
		return
	}
	decision.Err = err
	decision.Recovered = true
}

func (s *BottleneckSelector) run(ctx context.Context, kind domain.OperationKind, requestID string, tc domain.TelemetryContext) error {
	w, err := s.workloads.Get(kind)
	if err != nil {
		return err
	}
	return w.Execute(ctx, requestID, tc)
}

func (s *BottleneckSelector) record(decision domain.BottleneckDecision) {
	if s.recorder != nil {
		s.recorder.RecordDecision(decision)
	}
}
