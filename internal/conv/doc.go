// Package conv bounds-checks the size_t fields LoadIndex reads off a
// snapshot before they are used as a slice length or stored back into
// curElementCount. A crafted or truncated file can claim an element count
// that does not fit the platform's int or uint32 range; these conversions
// return an error, which LoadIndex wraps into an InvariantViolationError,
// instead of a silent wraparound or an
// out-of-range slice allocation.
package conv
