//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// These cases mirror LoadIndex's use of Uint64ToInt/Uint64ToUint32 on the
// curElementCount field read off a snapshot's size_t: a legitimate count
// must round-trip, and a corrupted or adversarial file claiming more
// elements than the platform (or a uint32 element id) can address must fail
// closed with an error LoadIndex can wrap into an InvariantViolationError, not silently
// wrap around into a too-small allocation.

func TestUint64ToInt(t *testing.T) {
	t.Run("zero elements", func(t *testing.T) {
		got, err := Uint64ToInt(0)
		assert.NoError(t, err)
		assert.Equal(t, 0, got)
	})

	t.Run("plausible element count", func(t *testing.T) {
		got, err := Uint64ToInt(1_000_000)
		assert.NoError(t, err)
		assert.Equal(t, 1_000_000, got)
	})

	t.Run("largest representable int", func(t *testing.T) {
		got, err := Uint64ToInt(uint64(math.MaxInt))
		assert.NoError(t, err)
		assert.Equal(t, math.MaxInt, got)
	})

	t.Run("count exceeds platform int range", func(t *testing.T) {
		_, err := Uint64ToInt(uint64(math.MaxInt) + 1)
		assert.Error(t, err)
	})
}

func TestUint64ToUint32(t *testing.T) {
	t.Run("zero elements", func(t *testing.T) {
		got, err := Uint64ToUint32(0)
		assert.NoError(t, err)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("plausible element count", func(t *testing.T) {
		got, err := Uint64ToUint32(1_000_000)
		assert.NoError(t, err)
		assert.Equal(t, uint32(1_000_000), got)
	})

	t.Run("largest representable internal id count", func(t *testing.T) {
		got, err := Uint64ToUint32(math.MaxUint32)
		assert.NoError(t, err)
		assert.Equal(t, uint32(math.MaxUint32), got)
	})

	t.Run("count exceeds internal id range", func(t *testing.T) {
		_, err := Uint64ToUint32(math.MaxUint32 + 1)
		assert.Error(t, err)
	})
}
