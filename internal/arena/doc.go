// Package arena provides a flat, contiguous byte arena used as the backing
// store for a graph's upper-layer neighbor-list blocks.
//
// Allocation is a single atomic compare-and-swap bump of an offset counter,
// so concurrent inserts can carve out node records without a lock. Loading
// a saved index re-populates the arena by re-running the same Alloc path
// node by node, so the arena implementation itself carries no persistence
// logic of its own.
package arena
