// Package distance provides vector distance calculations for the HNSW graph.
//
// Kernels are deterministic, allocation-free scalar Go. SIMD is intentionally
// not used here: the kernels must give bit-identical distances for equal
// inputs, and a hand-rolled vector kernel is not worth the portability risk
// at this scope.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance
//   - MetricCosine: inner-product distance over normalized vectors
//   - MetricDot: raw inner-product distance (1 - Σaᵢbᵢ)
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	ipDist := distance.InnerProduct(a, b)
//	normalized, ok := distance.NormalizeL2Copy(vec)
package distance
