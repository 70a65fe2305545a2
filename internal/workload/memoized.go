package workload

import (
	"context"
	"crypto"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// MemoizedComputation loads an expensive synthetic value through the shared
// cache. Only a miss pays for the synthesis and digest.
type MemoizedComputation struct {
	cache  *cache.MemoCache
	keys   int
	lines  int
	digest crypto.Hash
	rng    domain.RandomSource
	now    func() time.Time
	logger *logger.Logger
}

// NewMemoizedComputation creates the memoized computation workload
func NewMemoizedComputation(cfg domain.EngineConfig, deps Dependencies) *MemoizedComputation {
	return &MemoizedComputation{
		cache:  deps.Cache,
		keys:   cfg.MemoKeys,
		lines:  cfg.MemoLines,
		digest: crypto.SHA256,
		rng:    deps.Random,
		now:    time.Now,
		logger: deps.Logger.WorkloadLogger(string(domain.OperationMemoizedComputation)),
	}
}

// Kind implements domain.Workload
func (w *MemoizedComputation) Kind() domain.OperationKind {
	return domain.OperationMemoizedComputation
}

// Execute implements domain.Workload
func (w *MemoizedComputation) Execute(ctx context.Context, requestID string, tc domain.TelemetryContext) error {
	_, err := w.Load(ctx, CacheKey(w.rng.IntN(w.keys)), requestID, tc)
	return err
}

// Load returns the value for key, synthesising it on a miss
func (w *MemoizedComputation) Load(ctx context.Context, key, requestID string, tc domain.TelemetryContext) (string, error) {
	value, err := w.cache.Get(ctx, key, func(ctx context.Context) (string, error) {
		return w.synthesize(key, requestID), nil
	})
	if err != nil {
		return "", err
	}

	tc.Put(domain.FieldCacheResultSize, len(value))
	return value, nil
}

// Keys returns every key the workload can select
func (w *MemoizedComputation) Keys() []string {
	keys := make([]string, w.keys)
	for i := range keys {
		keys[i] = CacheKey(i)
	}
	return keys
}

// CacheKey names the i-th memoized computation
func CacheKey(i int) string {
	return "expensive-computation-" + strconv.Itoa(i)
}

func (w *MemoizedComputation) synthesize(key, requestID string) string {
	var b strings.Builder
	b.Grow(w.lines * (96 + len(key) + len(requestID)))

	for i := 0; i < w.lines; i++ {
		fmt.Fprintf(&b, "Expensive computation for %s iteration %d with UUID %s timestamp %d\n",
			key, i, requestID, w.now().UnixMilli())
	}
	content := b.String()

	sum, err := digestHex(w.digest, string(domain.OperationMemoizedComputation), []byte(content))
	if err != nil {
		w.logger.WithError(err).Warn("Digest unavailable, caching content without hash")
		return content
	}
	return content + " Hash: " + sum
}
