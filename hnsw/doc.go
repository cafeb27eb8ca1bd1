// Package hnsw implements a Hierarchical Navigable Small World index: a
// main-memory approximate-nearest-neighbor graph supporting concurrent
// insertion and concurrent k-nearest-neighbor search over dense float32
// vectors.
//
// # Usage
//
//	idx, err := hnsw.New(hnsw.WithDimension(128), hnsw.WithMaxElements(1_000_000))
//	if err != nil {
//		// handle error
//	}
//	defer idx.Close()
//
//	if err := idx.AddPoint(ctx, vec, label); err != nil {
//		// handle error
//	}
//
//	results, err := idx.SearchKnn(ctx, query, 10)
//
// # Concurrency
//
// All public methods are safe to call from multiple goroutines. AddPoint and
// SearchKnn synchronize through a small set of locks declared on the Graph
// type in graph.go;
// SaveIndex requires the caller to hold off concurrent inserts (see its doc
// comment).
//
// # Persistence
//
// SaveIndex/LoadIndex serialize the entire index to a single file in a fixed
// byte layout (see persist.go). The format carries no magic number or version
// field; compatibility is purely positional, matching the classic hnswlib
// on-disk format this package's graph storage mirrors.
package hnsw
