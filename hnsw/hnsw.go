package hnsw

import (
	"context"
	"fmt"
	"time"
)

// Index is the public, concurrency-safe HNSW index. It wraps a *Graph with
// the ambient stack (logging, metrics) and the resolved construction
// options needed to reopen a saved file.
type Index struct {
	g    *Graph
	opts *Options
}

// Result is one entry of a SearchKnn response: a label and its distance to
// the query under the index's configured metric, ascending by distance.
type Result struct {
	Label    uint64
	Distance float32
}

// New creates an empty index. Dimension and MaxElements are required; all
// other parameters fall back to the defaults documented on their With*
// option.
func New(opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.Dimension <= 0 {
		return nil, fmt.Errorf("hnsw: New: WithDimension is required and must be > 0")
	}
	if o.MaxElements == 0 {
		return nil, fmt.Errorf("hnsw: New: WithMaxElements is required and must be > 0")
	}

	g, err := newGraph(o)
	if err != nil {
		return nil, err
	}

	return &Index{g: g, opts: o}, nil
}

// AddPoint inserts vector under label, or, if label is already present
// (tombstoned or not), replaces its stored vector in place and clears any
// tombstone. See Graph.addPoint for the concurrency contract.
func (idx *Index) AddPoint(ctx context.Context, vector []float32, label uint64) error {
	start := time.Now()
	err := idx.g.addPoint(vector, label)

	idx.g.counters.inserts.Add(1)
	if err != nil {
		idx.g.counters.insertErrors.Add(1)
	}
	idx.opts.Metrics.RecordInsert(time.Since(start), err)
	idx.opts.Logger.LogInsert(ctx, label, err)

	return err
}

// AddBatch inserts many (vector, label) pairs concurrently. See
// Graph.addBatch for cancellation semantics.
func (idx *Index) AddBatch(ctx context.Context, vectors [][]float32, labels []uint64) error {
	start := time.Now()
	err := idx.g.addBatch(ctx, vectors, labels)

	failed := 0
	if err != nil {
		failed = 1
	}
	idx.opts.Metrics.RecordBatchInsert(len(vectors), failed, time.Since(start))
	idx.opts.Logger.LogBatchInsert(ctx, len(vectors), err)

	return err
}

// SearchKnn returns the k labels closest to query in ascending distance
// order. ef defaults to the index's configured search-time beam width (see
// SetEf) but is never used below k.
func (idx *Index) SearchKnn(ctx context.Context, query []float32, k int) ([]Result, error) {
	start := time.Now()

	if len(query) != idx.g.dim {
		err := &ShapeMismatchError{Expected: idx.g.dim, Actual: len(query)}
		idx.g.counters.searches.Add(1)
		idx.g.counters.searchErrors.Add(1)
		idx.opts.Metrics.RecordSearch(k, time.Since(start), err)
		idx.opts.Logger.LogSearch(ctx, k, err)
		return nil, err
	}

	items := idx.g.searchKnn(query, k, idx.g.getEf())

	results := make([]Result, len(items))
	for i, it := range items {
		results[i] = Result{Label: idx.g.labelOf(it.Node), Distance: it.Distance}
	}

	idx.g.counters.searches.Add(1)
	idx.opts.Metrics.RecordSearch(k, time.Since(start), nil)
	idx.opts.Logger.LogSearch(ctx, k, nil)

	return results, nil
}

// MarkDeleted tombstones label: it stays structurally present in the graph
// (other nodes may still link to it) but is excluded from future SearchKnn
// results. Reversible via UnmarkDeleted.
func (idx *Index) MarkDeleted(label uint64) error {
	err := idx.g.markDeleted(label)
	idx.opts.Metrics.RecordDelete(err)
	idx.opts.Logger.LogDelete(context.Background(), label, false, err)
	return err
}

// UnmarkDeleted reverses a prior MarkDeleted for label.
func (idx *Index) UnmarkDeleted(label uint64) error {
	err := idx.g.unmarkDeleted(label)
	idx.opts.Metrics.RecordDelete(err)
	idx.opts.Logger.LogDelete(context.Background(), label, true, err)
	return err
}

// SetEf changes the search-time beam width used by subsequent SearchKnn
// calls. Safe to call concurrently with AddPoint/SearchKnn.
func (idx *Index) SetEf(ef int) {
	idx.g.setEf(ef)
}

// Len returns the number of elements currently stored, including
// tombstoned ones.
func (idx *Index) Len() uint32 {
	return idx.g.curElementCount.Load()
}

// Stats returns a point-in-time snapshot of the index's process-visible
// counters. None of these are persisted.
func (idx *Index) Stats() Stats {
	return Stats{
		DistCalculations: idx.g.counters.distCalculations.Load(),
		Hops:             idx.g.counters.hops.Load(),
		Inserts:          idx.g.counters.inserts.Load(),
		InsertErrors:     idx.g.counters.insertErrors.Load(),
		Searches:         idx.g.counters.searches.Load(),
		SearchErrors:     idx.g.counters.searchErrors.Load(),
		CurElementCount:  idx.g.curElementCount.Load(),
	}
}

// Close releases the index's arena, level-0 block, and visited-set pool so
// the garbage collector can reclaim them. Idempotent. Callers must not have
// any AddPoint/AddBatch/SearchKnn in flight when calling Close, the same
// quiescence contract SaveIndex carries.
func (idx *Index) Close() error {
	idx.g.close()
	return nil
}
