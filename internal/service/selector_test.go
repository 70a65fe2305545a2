package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/internal/workload"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// scriptedRandom replays fixed draws; once a script runs out the last value repeats
type scriptedRandom struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (r *scriptedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.floats[0]
	if len(r.floats) > 1 {
		r.floats = r.floats[1:]
	}
	return v
}

func (r *scriptedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.ints[0]
	if len(r.ints) > 1 {
		r.ints = r.ints[1:]
	}
	return v % n
}

// stubWorkload counts executions and returns a fixed error
type stubWorkload struct {
	kind  domain.OperationKind
	err   error
	mu    sync.Mutex
	calls int
}

func (w *stubWorkload) Kind() domain.OperationKind { return w.kind }

func (w *stubWorkload) Execute(ctx context.Context, requestID string, tc domain.TelemetryContext) error {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	return w.err
}

func (w *stubWorkload) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func stubSet() (workload.Set, map[domain.OperationKind]*stubWorkload) {
	set := workload.Set{}
	stubs := make(map[domain.OperationKind]*stubWorkload)
	for _, kind := range domain.AllOperations() {
		s := &stubWorkload{kind: kind}
		set[kind] = s
		stubs[kind] = s
	}
	return set, stubs
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "discard"})
	require.NoError(t, err)
	return log
}

func engineConfig(p float64) domain.EngineConfig {
	cfg := domain.DefaultEngineConfig()
	cfg.TriggerProbability = p
	cfg.PayloadItems = 20
	cfg.PayloadRounds = 2
	cfg.MemoLines = 100
	cfg.CPURounds = 100
	cfg.FanOutLines = 50
	cfg.ExternalTimeout = 2 * time.Second
	return cfg
}

func TestSelectorNeverTriggersAtZeroProbability(t *testing.T) {
	t.Parallel()

	set, stubs := stubSet()
	metrics := NewMetrics()
	selector := NewBottleneckSelector(engineConfig(0), set, domain.NewSeededRandom(7), testLogger(t),
		WithRecorder(metrics))

	for i := 0; i < 1000; i++ {
		tc := logger.NewContext()
		decision := selector.Decide(context.Background(), "req", tc)

		require.False(t, decision.Triggered)
		assert.Equal(t, domain.OperationNone, decision.Operation)
		assert.Zero(t, decision.Duration)

		issue, ok := tc.Get(domain.FieldPerformanceIssue)
		require.True(t, ok)
		assert.Equal(t, false, issue)
		_, ok = tc.Get(domain.FieldSlowOperationType)
		assert.False(t, ok)
	}

	for kind, stub := range stubs {
		assert.Zero(t, stub.count(), "workload %s must not run", kind)
	}
	assert.Equal(t, int64(1000), metrics.GetTotalRequests())
	assert.Zero(t, metrics.GetTriggered())
}

func TestSelectorAlwaysTriggersAtProbabilityOne(t *testing.T) {
	t.Parallel()

	set, stubs := stubSet()
	selector := NewBottleneckSelector(engineConfig(1), set, domain.NewSeededRandom(7), testLogger(t))

	for i := 0; i < 500; i++ {
		decision := selector.Decide(context.Background(), "req", domain.NopTelemetry{})
		require.True(t, decision.Triggered)
		require.True(t, decision.Operation.Valid())
	}

	total := 0
	for kind, stub := range stubs {
		assert.Positive(t, stub.count(), "workload %s never selected", kind)
		total += stub.count()
	}
	assert.Equal(t, 500, total)
}

func TestSelectorTriggerRateConverges(t *testing.T) {
	t.Parallel()

	set, _ := stubSet()
	selector := NewBottleneckSelector(engineConfig(0.3), set, domain.NewSeededRandom(20240611), testLogger(t))

	const trials = 10000
	triggered := 0
	for i := 0; i < trials; i++ {
		if selector.Decide(context.Background(), "req", domain.NopTelemetry{}).Triggered {
			triggered++
		}
	}

	assert.InDelta(t, 0.3, float64(triggered)/trials, 0.02)
}

func TestSelectorReportsSelectedOperation(t *testing.T) {
	t.Parallel()

	for i, kind := range domain.AllOperations() {
		kind, index := kind, i
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			set, stubs := stubSet()
			rng := &scriptedRandom{floats: []float64{0.1}, ints: []int{index}}
			selector := NewBottleneckSelector(engineConfig(0.3), set, rng, testLogger(t))
			tc := logger.NewContext()

			decision := selector.Decide(context.Background(), "req-1", tc)

			assert.True(t, decision.Triggered)
			assert.Equal(t, kind, decision.Operation)
			assert.Equal(t, 1, stubs[kind].count())

			label, _ := tc.Get(domain.FieldSlowOperationType)
			assert.Equal(t, kind.String(), label)
			_, ok := tc.Get(domain.FieldOperationDurationMs)
			assert.True(t, ok)
		})
	}
}

func TestSelectorFallsBackToCPUWhenExternalCallFails(t *testing.T) {
	t.Parallel()

	set, stubs := stubSet()
	stubs[domain.OperationExternalCall].err = apperrors.NewExternalCallError("http://unreachable", errors.New("connection refused"))
	metrics := NewMetrics()
	rng := &scriptedRandom{floats: []float64{0}, ints: []int{0}}
	selector := NewBottleneckSelector(engineConfig(1), set, rng, testLogger(t), WithRecorder(metrics))
	tc := logger.NewContext()

	decision := selector.Decide(context.Background(), "req-1", tc)

	assert.True(t, decision.FellBack)
	assert.Equal(t, domain.OperationExternalCall, decision.Operation)
	assert.ErrorIs(t, decision.Err, apperrors.ErrExternalCallFailed)
	assert.Equal(t, 1, stubs[domain.OperationCPUBound].count())

	label, _ := tc.Get(domain.FieldSlowOperationType)
	assert.Equal(t, "http_client", label)
	assert.Equal(t, int64(1), metrics.GetFallbacks())

	assert.True(t, decision.Recovered)
	assert.False(t, decision.Failed())
	assert.Zero(t, metrics.Snapshot().Failures, "a recovered fallback is not a failure")
}

func TestSelectorCountsFailedFallbackAsFailure(t *testing.T) {
	t.Parallel()

	set, stubs := stubSet()
	stubs[domain.OperationExternalCall].err = apperrors.NewExternalCallError("http://unreachable", errors.New("connection refused"))
	stubs[domain.OperationCPUBound].err = errors.New("cpu exploded")
	metrics := NewMetrics()
	rng := &scriptedRandom{floats: []float64{0}, ints: []int{0}}
	selector := NewBottleneckSelector(engineConfig(1), set, rng, testLogger(t), WithRecorder(metrics))

	decision := selector.Decide(context.Background(), "req-1", domain.NopTelemetry{})

	assert.True(t, decision.FellBack)
	assert.False(t, decision.Recovered)
	assert.True(t, decision.Failed())
	assert.ErrorIs(t, decision.Err, apperrors.ErrExternalCallFailed)
	assert.ErrorContains(t, decision.Err, "cpu exploded")

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(1), snap.Fallbacks)
}

func TestSelectorDoesNotFallBackForOtherFailures(t *testing.T) {
	t.Parallel()

	set, stubs := stubSet()
	stubs[domain.OperationConcurrentFanOut].err = apperrors.NewFanOutTimeoutError(10, time.Second, context.DeadlineExceeded)
	rng := &scriptedRandom{floats: []float64{0}, ints: []int{4}}
	selector := NewBottleneckSelector(engineConfig(1), set, rng, testLogger(t))

	decision := selector.Decide(context.Background(), "req-1", domain.NopTelemetry{})

	assert.False(t, decision.FellBack)
	assert.ErrorIs(t, decision.Err, apperrors.ErrFanOutTimeout)
	assert.Zero(t, stubs[domain.OperationCPUBound].count())
}

func TestSelectorUnreachableEndpointEndToEnd(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	cfg := engineConfig(1)
	cfg.DelayEndpoint = endpoint
	rng := &scriptedRandom{floats: []float64{0}, ints: []int{0}}
	log := testLogger(t)
	set := workload.NewSet(cfg, workload.Dependencies{
		Cache:  cache.New(domain.CacheConfig{Capacity: 10, TTL: time.Minute}),
		Random: rng,
		Logger: log,
	})
	selector := NewBottleneckSelector(cfg, set, rng, log)
	tc := logger.NewContext()

	decision := selector.Decide(context.Background(), "req-1", tc)

	assert.True(t, decision.FellBack)
	primes, ok := tc.Get(domain.FieldPrimesCalculated)
	require.True(t, ok, "the CPU-bound fallback must have run")
	assert.Equal(t, 168, primes)
	_, ok = tc.Get(domain.FieldHTTPResponseSize)
	assert.False(t, ok)
}

func TestSelectorMemoizedComputationEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := engineConfig(1)
	cfg.MemoLines = 50000
	memo := cache.New(domain.CacheConfig{Capacity: 10, TTL: time.Minute})
	// operation index 2 is the memoized computation, key index 5 for every draw
	rng := &scriptedRandom{floats: []float64{0}, ints: []int{2, 5, 2, 5}}
	log := testLogger(t)
	set := workload.NewSet(cfg, workload.Dependencies{Cache: memo, Random: rng, Logger: log})
	selector := NewBottleneckSelector(cfg, set, rng, log)

	tc1 := logger.NewContext()
	first := selector.Decide(context.Background(), "req-1", tc1)
	tc2 := logger.NewContext()
	second := selector.Decide(context.Background(), "req-2", tc2)

	assert.Equal(t, domain.OperationMemoizedComputation, first.Operation)
	assert.Equal(t, domain.OperationMemoizedComputation, second.Operation)
	assert.NoError(t, first.Err)
	assert.NoError(t, second.Err)

	// the miss synthesises and digests 50,000 lines; the hit is a map lookup
	assert.Less(t, second.Duration, first.Duration/10,
		"hit took %s, miss took %s", second.Duration, first.Duration)
	assert.Less(t, second.Duration, 5*time.Millisecond)

	size1, _ := tc1.Get(domain.FieldCacheResultSize)
	size2, _ := tc2.Get(domain.FieldCacheResultSize)
	assert.Equal(t, size1, size2)

	stats := memo.Stats()
	assert.Equal(t, int64(1), stats.Computations)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, []string{workload.CacheKey(5)}, memo.Keys())
}

func TestSelectorIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	set, stubs := stubSet()
	metrics := NewMetrics()
	selector := NewBottleneckSelector(engineConfig(0.5), set, domain.NewSeededRandom(99), testLogger(t),
		WithRecorder(metrics))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				selector.Decide(context.Background(), "req", logger.NewContext())
			}
		}()
	}
	wg.Wait()

	executed := 0
	for _, stub := range stubs {
		executed += stub.count()
	}
	assert.Equal(t, int64(1000), metrics.GetTotalRequests())
	assert.Equal(t, int64(executed), metrics.GetTriggered())
}
