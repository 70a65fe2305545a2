package workload

import (
	"crypto"
	"encoding/hex"
	"net/http"

	// digest implementations used by the workloads
	_ "crypto/md5"
	_ "crypto/sha256"

	"github.com/mir00r/telemetry-demo/internal/cache"
	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

// Dependencies are the collaborators shared by the workloads
type Dependencies struct {
	// Cache is used only by the memoized computation workload
	Cache *cache.MemoCache
	// Random drives delays and key selection
	Random domain.RandomSource
	// HTTPClient performs the external call; nil means a client with the
	// configured external timeout
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Set is the closed collection of workloads indexed by kind
type Set map[domain.OperationKind]domain.Workload

// NewSet builds one workload per operation kind
func NewSet(cfg domain.EngineConfig, deps Dependencies) Set {
	return Set{
		domain.OperationExternalCall:        NewExternalCall(cfg, deps),
		domain.OperationPayloadTransform:    NewPayloadTransform(cfg, deps),
		domain.OperationMemoizedComputation: NewMemoizedComputation(cfg, deps),
		domain.OperationCPUBound:            NewCPUBound(cfg, deps),
		domain.OperationConcurrentFanOut:    NewConcurrentFanOut(cfg, deps),
	}
}

// Get returns the workload for kind
func (s Set) Get(kind domain.OperationKind) (domain.Workload, error) {
	w, ok := s[kind]
	if !ok {
		return nil, apperrors.NewUnknownOperationError(string(kind))
	}
	return w, nil
}

// digestHex hashes data with h, failing when h is not linked into the binary
func digestHex(h crypto.Hash, component string, data []byte) (string, error) {
	if !h.Available() {
		return "", apperrors.NewDigestUnavailableError(component, h.String())
	}
	hasher := h.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
