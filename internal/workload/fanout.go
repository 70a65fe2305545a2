package workload

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

const cancelCheckInterval = 100

// ConcurrentFanOut launches a fixed batch of sub-tasks and returns only once
// every one of them has finished.
type ConcurrentFanOut struct {
	tasks   int
	lines   int
	timeout time.Duration
	digest  crypto.Hash
	logger  *logger.Logger

	// onTaskDone, when set, is called as each sub-task finishes
	onTaskDone func(taskID int)
}

// NewConcurrentFanOut creates the fan-out workload
func NewConcurrentFanOut(cfg domain.EngineConfig, deps Dependencies) *ConcurrentFanOut {
	return &ConcurrentFanOut{
		tasks:   cfg.FanOutTasks,
		lines:   cfg.FanOutLines,
		timeout: cfg.FanOutTimeout,
		digest:  crypto.MD5,
		logger:  deps.Logger.WorkloadLogger(string(domain.OperationConcurrentFanOut)),
	}
}

// Kind implements domain.Workload
func (w *ConcurrentFanOut) Kind() domain.OperationKind {
	return domain.OperationConcurrentFanOut
}

// Execute implements domain.Workload. The barrier wait is bounded by the
// configured fan-out timeout; sub-tasks observe it and stop early.
func (w *ConcurrentFanOut) Execute(ctx context.Context, requestID string, tc domain.TelemetryContext) error {
	if w.tasks <= 0 {
		tc.Put(domain.FieldConcurrentTasksCompleted, 0)
		return nil
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var completed atomic.Int64
	p := pool.NewWithResults[string]().
		WithMaxGoroutines(w.tasks).
		WithContext(ctx)

	for i := 0; i < w.tasks; i++ {
		taskID := i
		p.Go(func(ctx context.Context) (string, error) {
			result, err := w.runTask(ctx, taskID, requestID)
			if err == nil {
				completed.Add(1)
			}
			if w.onTaskDone != nil {
				w.onTaskDone(taskID)
			}
			return result, err
		})
	}

	_, err := p.Wait()
	done := int(completed.Load())
	tc.Put(domain.FieldConcurrentTasksCompleted, done)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewFanOutTimeoutError(w.tasks, w.timeout, err).WithRequestID(requestID)
		}
		return err
	}
	return nil
}

func (w *ConcurrentFanOut) runTask(ctx context.Context, taskID int, requestID string) (string, error) {
	var b strings.Builder
	for j := 0; j < w.lines; j++ {
		if j%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		fmt.Fprintf(&b, "Task %d iteration %d for UUID %s\n", taskID, j, requestID)
	}

	sum, err := digestHex(w.digest, string(domain.OperationConcurrentFanOut), []byte(b.String()))
	if err != nil {
		w.logger.WithField("task_id", taskID).WithError(err).Warn("Digest unavailable")
		return fmt.Sprintf("Task %d completed", taskID), nil
	}
	return fmt.Sprintf("Task %d completed with hash: %s", taskID, sum), nil
}
