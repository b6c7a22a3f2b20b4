package testutil

import (
	"math"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Fill overwrites dst with pseudo-random bytes.
func (r *RNG) Fill(dst []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.rand.Read(dst)
}

// Zipf returns a Zipfian-distributed value in [0, n).
// P(k) ∝ 1/k^s; s=1.0 is standard Zipf, larger s is more skewed.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, harmonic(n, s), s)
}

func harmonic(n int, s float64) float64 {
	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}
	return hns
}

// zipfLocked samples by inverse transform (caller must hold lock).
func (r *RNG) zipfLocked(n int, hns, s float64) int {
	if n <= 1 {
		return 0
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// BlockTrace returns n block numbers in [0, blocks) with Zipfian skew s, the
// access pattern of a file system with a few hot metadata blocks.
func (r *RNG) BlockTrace(n, blocks int, s float64) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	hns := harmonic(blocks, s)
	trace := make([]uint32, n)
	for i := range trace {
		trace[i] = uint32(r.zipfLocked(blocks, hns, s))
	}
	return trace
}

// UniformTrace returns n block numbers drawn uniformly from [0, blocks).
func (r *RNG) UniformTrace(n, blocks int) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	trace := make([]uint32, n)
	for i := range trace {
		trace[i] = uint32(r.rand.Intn(blocks))
	}
	return trace
}

// Shuffle permutes pages in place.
func (r *RNG) Shuffle(pages []uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(pages), func(i, j int) { pages[i], pages[j] = pages[j], pages[i] })
}

// Distinct reports the number of distinct values in trace.
func Distinct(trace []uint32) int {
	seen := make(map[uint32]struct{}, len(trace))
	for _, b := range trace {
		seen[b] = struct{}{}
	}
	return len(seen)
}
