// Package testutil provides testing utilities for the HNSW index.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 128) // unit vectors for cosine/IP recall tests
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(dataset, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
