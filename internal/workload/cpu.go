package workload

import (
	"context"
	"crypto"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/mir00r/telemetry-demo/internal/domain"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

const progressInterval = 500

// CPUBound burns CPU with digests, big-integer arithmetic and a prime sieve
// by trial division. It performs no I/O and never fails.
type CPUBound struct {
	rounds     int
	modulus    int64
	primeLimit int
	digest     crypto.Hash
	logger     *logger.Logger
}

// CPUResult summarises one run of the CPU-bound simulation
type CPUResult struct {
	Rounds   int
	Digested bool
	Checksum int
	Primes   int
}

// NewCPUBound creates the CPU-bound workload
func NewCPUBound(cfg domain.EngineConfig, deps Dependencies) *CPUBound {
	return &CPUBound{
		rounds:     cfg.CPURounds,
		modulus:    cfg.CPUModulus,
		primeLimit: cfg.PrimeLimit,
		digest:     crypto.SHA256,
		logger:     deps.Logger.WorkloadLogger(string(domain.OperationCPUBound)),
	}
}

// Kind implements domain.Workload
func (w *CPUBound) Kind() domain.OperationKind {
	return domain.OperationCPUBound
}

// Execute implements domain.Workload
func (w *CPUBound) Execute(ctx context.Context, requestID string, tc domain.TelemetryContext) error {
	w.Burn(requestID, tc)
	return nil
}

// Burn runs the simulation and reports what it did
func (w *CPUBound) Burn(requestID string, tc domain.TelemetryContext) CPUResult {
	result := CPUResult{}

	if w.digest.Available() {
		result.Rounds, result.Checksum = w.digestRounds(requestID, tc)
		result.Digested = true
	} else {
		w.logger.WithField("algorithm", w.digest.String()).Warn("Digest unavailable, skipping digest rounds")
	}

	primes := PrimesUpTo(w.primeLimit)
	result.Primes = len(primes)
	tc.Put(domain.FieldPrimesCalculated, result.Primes)

	return result
}

func (w *CPUBound) digestRounds(requestID string, tc domain.TelemetryContext) (int, int) {
	base := requestID + strconv.FormatInt(time.Now().UnixMilli(), 10)
	hasher := w.digest.New()
	modulus := big.NewInt(w.modulus)
	number := new(big.Int)
	factor := new(big.Int)
	checksum := 0

	for i := 0; i < w.rounds; i++ {
		hasher.Reset()
		hasher.Write([]byte(base + strconv.Itoa(i)))
		number.SetBytes(hasher.Sum(nil))

		factor.SetInt64(int64(i + 1))
		number.Mul(number, factor)
		number.Mod(number, modulus)

		hexResult := strings.ReplaceAll(strings.ToLower(strings.ToUpper(number.Text(16))), "a", "x")
		checksum += len(hexResult)

		if i%progressInterval == 0 {
			tc.Put(domain.FieldComputationProgress, i)
		}
	}

	return w.rounds, checksum
}

// PrimesUpTo returns every prime ≤ limit using trial division
func PrimesUpTo(limit int) []int {
	var primes []int
	for n := 2; n <= limit; n++ {
		prime := true
		for d := 2; d*d <= n; d++ {
			if n%d == 0 {
				prime = false
				break
			}
		}
		if prime {
			primes = append(primes, n)
		}
	}
	return primes
}
