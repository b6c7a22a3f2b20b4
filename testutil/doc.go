// Package testutil provides deterministic workloads for kcore tests.
//
// This package is intended for use in tests, examples and benchmarks only.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	block := make([]byte, param.BSIZE)
//	rng.Fill(block)
//
// # Block Traces
//
//	trace := rng.BlockTrace(10_000, 200, 1.2) // skewed, hot blocks first
//	trace := rng.UniformTrace(10_000, 200)
package testutil
