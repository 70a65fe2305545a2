package domain

import (
	"math/rand/v2"
	"sync"
	"time"
)

// SeededRandom is a RandomSource backed by a PCG generator behind a mutex
type SeededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRandom creates a reproducible random source. A zero seed is
// replaced by the current time.
func NewSeededRandom(seed uint64) *SeededRandom {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SeededRandom{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Float64 returns a uniform value in [0,1)
func (r *SeededRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// IntN returns a uniform value in [0,n)
func (r *SeededRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}
