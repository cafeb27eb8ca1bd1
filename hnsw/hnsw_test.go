package hnsw

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SehyeonOh/hnswlib/distance"
	"github.com/SehyeonOh/hnswlib/testutil"
)

func labelsOf(results []Result) []uint64 {
	out := make([]uint64, len(results))
	for i, r := range results {
		out[i] = r.Label
	}
	return out
}

// assertNoOrphanedNodes fails the test if any internal id has an empty
// layer-0 neighbor list once the graph holds more than one node. A node
// that lost the entry-point race during construction without falling
// through to insertNode ends up with zero edges: present in
// curElementCount and the label map, but unreachable from searchKnn.
func assertNoOrphanedNodes(t *testing.T, g *Graph) {
	t.Helper()
	count := g.curElementCount.Load()
	if count <= 1 {
		return
	}
	for id := uint32(0); id < count; id++ {
		n := g.neighbors(id, 0)
		assert.NotEmpty(t, n, "internal id %d has no layer-0 neighbors: orphaned node", id)
	}
}

// Scenario 1 from the spec: three cosine-normalized vectors, query for the
// two closest by inner-product distance.
func TestSearchKnnThreePointScenario(t *testing.T) {
	ctx := context.Background()

	idx, err := New(
		WithDimension(4),
		WithMaxElements(100),
		WithM(16),
		WithEfConstruction(200),
		WithMetric(distance.MetricCosine),
	)
	require.NoError(t, err)

	inv := float32(1) / 1.4142135 // 1/sqrt(2)
	require.NoError(t, idx.AddPoint(ctx, []float32{1, 0, 0, 0}, 1))
	require.NoError(t, idx.AddPoint(ctx, []float32{0, 1, 0, 0}, 2))
	require.NoError(t, idx.AddPoint(ctx, []float32{inv, inv, 0, 0}, 3))

	results, err := idx.SearchKnn(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, labelsOf(results))

	require.NoError(t, idx.MarkDeleted(1))
	results, err = idx.SearchKnn(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2}, labelsOf(results))
}

func TestAddPointUpdatesExistingLabel(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(4), WithMaxElements(10))
	require.NoError(t, err)

	require.NoError(t, idx.AddPoint(ctx, []float32{1, 1, 1, 1}, 7))
	require.NoError(t, idx.AddPoint(ctx, []float32{9, 9, 9, 9}, 8))
	require.EqualValues(t, 2, idx.Len())

	replacement := []float32{5, 5, 5, 5}
	require.NoError(t, idx.AddPoint(ctx, replacement, 7))
	assert.EqualValues(t, 2, idx.Len(), "re-inserting an existing label must not grow cur_element_count")

	results, err := idx.SearchKnn(ctx, replacement, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(7), results[0].Label)
}

func TestSearchKnnKExceedsElementCount(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(3), WithMaxElements(10))
	require.NoError(t, err)

	require.NoError(t, idx.AddPoint(ctx, []float32{1, 2, 3}, 1))
	require.NoError(t, idx.AddPoint(ctx, []float32{4, 5, 6}, 2))

	results, err := idx.SearchKnn(ctx, []float32{1, 2, 3}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchKnnAllDeletedReturnsEmpty(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(3), WithMaxElements(10))
	require.NoError(t, err)

	require.NoError(t, idx.AddPoint(ctx, []float32{1, 2, 3}, 1))
	require.NoError(t, idx.AddPoint(ctx, []float32{4, 5, 6}, 2))
	require.NoError(t, idx.MarkDeleted(1))
	require.NoError(t, idx.MarkDeleted(2))

	results, err := idx.SearchKnn(ctx, []float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMarkDeletedUnknownLabel(t *testing.T) {
	idx, err := New(WithDimension(3), WithMaxElements(10))
	require.NoError(t, err)

	err = idx.MarkDeleted(999)
	assert.ErrorIs(t, err, ErrLabelNotFound)
}

func TestUnmarkDeletedRestoresVisibility(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(3), WithMaxElements(10))
	require.NoError(t, err)

	require.NoError(t, idx.AddPoint(ctx, []float32{1, 2, 3}, 1))
	require.NoError(t, idx.MarkDeleted(1))
	require.NoError(t, idx.UnmarkDeleted(1))

	results, err := idx.SearchKnn(ctx, []float32{1, 2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].Label)
}

func TestAddPointCapacityError(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(2), WithMaxElements(2))
	require.NoError(t, err)

	require.NoError(t, idx.AddPoint(ctx, []float32{1, 1}, 1))
	require.NoError(t, idx.AddPoint(ctx, []float32{2, 2}, 2))

	err = idx.AddPoint(ctx, []float32{3, 3}, 3)
	var capErr *CapacityError
	assert.ErrorAs(t, err, &capErr)
}

func TestAddPointShapeMismatch(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(4), WithMaxElements(10))
	require.NoError(t, err)

	err = idx.AddPoint(ctx, []float32{1, 2, 3}, 1)
	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestSearchKnnEfBelowKUsesK(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(3), WithMaxElements(50))
	require.NoError(t, err)
	idx.SetEf(1)

	rng := testutil.NewRNG(42)
	for i, v := range rng.UniformVectors(30, 3) {
		require.NoError(t, idx.AddPoint(ctx, v, uint64(i)))
	}

	results, err := idx.SearchKnn(ctx, []float32{0.5, 0.5, 0.5}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 10)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()

	idx, err := New(
		WithDimension(8),
		WithMaxElements(500),
		WithM(16),
		WithEfConstruction(100),
		WithSeed(7),
	)
	require.NoError(t, err)

	rng := testutil.NewRNG(7)
	vectors := rng.UniformVectors(300, 8)
	for i, v := range vectors {
		require.NoError(t, idx.AddPoint(ctx, v, uint64(i)))
	}

	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, idx.SaveIndex(path))

	loaded, err := LoadIndex(path, WithDimension(8), WithMaxElements(500), WithM(16))
	require.NoError(t, err)

	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.g.entryPoint(), loaded.g.entryPoint())

	queries := rng.UniformVectors(20, 8)
	for _, q := range queries {
		before, err := idx.SearchKnn(ctx, q, 5)
		require.NoError(t, err)
		after, err := loaded.SearchKnn(ctx, q, 5)
		require.NoError(t, err)
		assert.Equal(t, labelsOf(before), labelsOf(after))
	}
}

func TestAddBatchConcurrentBuildSatisfiesInvariants(t *testing.T) {
	ctx := context.Background()

	idx, err := New(
		WithDimension(6),
		WithMaxElements(2000),
		WithM(16),
		WithEfConstruction(100),
	)
	require.NoError(t, err)

	rng := testutil.NewRNG(99)
	vectors := rng.UniformVectors(1000, 6)
	labels := make([]uint64, len(vectors))
	for i := range labels {
		labels[i] = uint64(i)
	}

	require.NoError(t, idx.AddBatch(ctx, vectors, labels))
	assert.EqualValues(t, len(vectors), idx.Len())

	g := idx.g
	for id := uint32(0); id < g.curElementCount.Load(); id++ {
		lvl := int(g.level[id])
		for layer := 0; layer <= lvl; layer++ {
			n := g.neighbors(id, layer)
			assert.LessOrEqual(t, len(n), g.maxNeighbors(layer))

			seen := make(map[uint32]struct{}, len(n))
			for _, nb := range n {
				_, dup := seen[nb]
				assert.False(t, dup, "duplicate neighbor id")
				seen[nb] = struct{}{}
				assert.Less(t, nb, g.curElementCount.Load())
			}
		}
	}

	ep := g.entryPoint()
	require.NotNil(t, ep)
	assert.Equal(t, int(g.level[ep.id]), ep.level)

	assertNoOrphanedNodes(t, g)
}

func TestRecallAgainstBruteForce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping recall benchmark in -short mode")
	}

	ctx := context.Background()
	const (
		n         = 3000
		dim       = 16
		k         = 10
		numQuery  = 200
		efSearch  = 80
	)

	rng := testutil.NewRNG(123)
	vectors := rng.UnitVectors(n, dim)

	idx, err := New(
		WithDimension(dim),
		WithMaxElements(uint32(n)),
		WithM(16),
		WithEfConstruction(200),
		WithMetric(distance.MetricCosine),
		WithEf(efSearch),
	)
	require.NoError(t, err)

	for i, v := range vectors {
		require.NoError(t, idx.AddPoint(ctx, v, uint64(i)))
	}

	queries := rng.UnitVectors(numQuery, dim)

	var totalRecall float64
	for _, q := range queries {
		truth := testutil.BruteForceSearch(vectors, q, k)

		approx, err := idx.SearchKnn(ctx, q, k)
		require.NoError(t, err)

		approxResults := make([]testutil.SearchResult, len(approx))
		for i, r := range approx {
			approxResults[i] = testutil.SearchResult{ID: r.Label, Distance: r.Distance}
		}

		totalRecall += testutil.ComputeRecall(truth, approxResults)
	}

	avgRecall := totalRecall / float64(numQuery)
	assert.GreaterOrEqual(t, avgRecall, 0.95, "average recall@%d too low: %f", k, avgRecall)
}

func TestConcurrentBuildMultiThreaded(t *testing.T) {
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("needs multiple CPUs to exercise lock contention")
	}

	ctx := context.Background()

	idx, err := New(
		WithDimension(8),
		WithMaxElements(5000),
		WithM(16),
		WithEfConstruction(100),
	)
	require.NoError(t, err)

	rng := testutil.NewRNG(1)
	vectors := rng.UniformVectors(2000, 8)
	labels := make([]uint64, len(vectors))
	for i := range labels {
		labels[i] = uint64(i)
	}

	require.NoError(t, idx.AddBatch(ctx, vectors, labels))
	assert.EqualValues(t, len(vectors), idx.Len())
	assertNoOrphanedNodes(t, idx.g)
}

// Scenario 5 from the spec: build concurrently with num_threads=8 vs
// num_threads=1 from the same seed. The two indexes need not come out
// identical, but both must satisfy the graph invariants (here, the
// layer-0-reachability check standing in for invariants 1-4) and both
// must clear recall >= 0.95 against brute force.
func TestConcurrentBuildEightThreadsVsSingleThreadSatisfyInvariantsAndRecall(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping recall benchmark in -short mode")
	}
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("needs multiple CPUs to exercise lock contention")
	}

	const (
		n         = 2000
		dim       = 8
		k         = 10
		numQuery  = 150
		efSearch  = 80
	)

	rng := testutil.NewRNG(1)
	vectors := rng.UniformVectors(n, dim)
	labels := make([]uint64, n)
	for i := range labels {
		labels[i] = uint64(i)
	}
	queries := rng.UniformVectors(numQuery, dim)

	build := func(numWorkers int) *Index {
		idx, err := New(
			WithDimension(dim),
			WithMaxElements(uint32(n)),
			WithM(16),
			WithEfConstruction(100),
			WithEf(efSearch),
			WithNumWorkers(numWorkers),
		)
		require.NoError(t, err)
		require.NoError(t, idx.AddBatch(context.Background(), vectors, labels))
		return idx
	}

	eightThreads := build(8)
	singleThread := build(1)

	for name, idx := range map[string]*Index{"num_threads=8": eightThreads, "num_threads=1": singleThread} {
		t.Run(name, func(t *testing.T) {
			assert.EqualValues(t, n, idx.Len())
			assertNoOrphanedNodes(t, idx.g)

			ctx := context.Background()
			var totalRecall float64
			for _, q := range queries {
				truth := testutil.BruteForceSearch(vectors, q, k)

				approx, err := idx.SearchKnn(ctx, q, k)
				require.NoError(t, err)

				approxResults := make([]testutil.SearchResult, len(approx))
				for i, r := range approx {
					approxResults[i] = testutil.SearchResult{ID: r.Label, Distance: r.Distance}
				}
				totalRecall += testutil.ComputeRecall(truth, approxResults)
			}

			avgRecall := totalRecall / float64(numQuery)
			assert.GreaterOrEqual(t, avgRecall, 0.95, "average recall@%d too low: %f", k, avgRecall)
		})
	}
}

func TestStatsTracksOperations(t *testing.T) {
	ctx := context.Background()

	idx, err := New(WithDimension(3), WithMaxElements(10))
	require.NoError(t, err)

	require.NoError(t, idx.AddPoint(ctx, []float32{1, 2, 3}, 1))
	_, err = idx.SearchKnn(ctx, []float32{1, 2, 3}, 1)
	require.NoError(t, err)

	stats := idx.Stats()
	assert.EqualValues(t, 1, stats.Inserts)
	assert.EqualValues(t, 1, stats.Searches)
	assert.EqualValues(t, 1, stats.CurElementCount)
	assert.Greater(t, stats.DistCalculations, uint64(0))
}
