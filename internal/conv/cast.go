package conv

import (
	"fmt"
	"math"
)

// Uint64ToInt converts a curElementCount read off a snapshot's size_t field
// to int, rejecting values that exceed the platform's int range before
// LoadIndex uses them as the level-0 block's byte length.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}

// Uint64ToUint32 converts a curElementCount read off a snapshot's size_t
// field to uint32, rejecting values above math.MaxUint32 before LoadIndex
// stores it as the graph's atomic element counter.
func Uint64ToUint32(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (too large)", v)
	}
	return uint32(v), nil
}
