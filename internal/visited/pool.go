package visited

import "sync"

// Pool is a concurrent free-list of VisitedSets, each sized to track up to
// capacity internal ids. Get returns an existing set or allocates one;
// Put returns it to the free list after resetting its generation. Both
// operations are O(1) and never block beyond the brief internal mutex,
// since a set is held only for the duration of one search or insert.
type Pool struct {
	mu       sync.Mutex
	free     []*VisitedSet
	capacity int
}

// NewPool creates a Pool whose sets are pre-sized for capacity internal ids.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Get acquires a VisitedSet from the pool, growing it to at least capacity
// if the pool's notion of capacity has increased since the set was created.
func (p *Pool) Get() *VisitedSet {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		capacity := p.capacity
		p.mu.Unlock()
		return New(capacity)
	}
	v := p.free[n-1]
	p.free = p.free[:n-1]
	capacity := p.capacity
	p.mu.Unlock()

	v.EnsureCapacity(capacity)
	return v
}

// Put returns a VisitedSet to the pool, advancing its generation so the
// next Get sees a fresh, logically-empty set without clearing memory.
func (p *Pool) Put(v *VisitedSet) {
	v.Reset()
	p.mu.Lock()
	p.free = append(p.free, v)
	p.mu.Unlock()
}

// SetCapacity updates the capacity new and pooled sets should support. Sets
// already checked out are grown lazily on their next Get.
func (p *Pool) SetCapacity(capacity int) {
	p.mu.Lock()
	p.capacity = capacity
	p.mu.Unlock()
}
