package hierarchy

import (
	"errors"
	"fmt"
)

var ErrBadPointer = errors.New("hierarchy: malformed pointer array")

// PointerArray delimits contiguous entity ranges per group: proteins
// [ptr[i], ptr[i+1]) belong to genome i. Length is n_groups + 1.
type PointerArray []int64

// Validate checks monotonicity and the boundary invariants: ptr[0] == 0
// and ptr[len-1] == total.
func (p PointerArray) Validate(total int64) error {
	if len(p) < 2 {
		return fmt.Errorf("%w: need at least 2 offsets, have %d", ErrBadPointer, len(p))
	}
	if p[0] != 0 {
		return fmt.Errorf("%w: first offset is %d, want 0", ErrBadPointer, p[0])
	}
	for i := 1; i < len(p); i++ {
		if p[i] < p[i-1] {
			return fmt.Errorf("%w: offset %d decreases (%d -> %d)", ErrBadPointer, i, p[i-1], p[i])
		}
	}
	if p[len(p)-1] != total {
		return fmt.Errorf("%w: last offset is %d, want total %d", ErrBadPointer, p[len(p)-1], total)
	}
	return nil
}

// NumGroups reports how many groups the array delimits.
func (p PointerArray) NumGroups() int { return len(p) - 1 }

// Range returns group i's half-open entity range.
func (p PointerArray) Range(i int) (start, end int64) { return p[i], p[i+1] }

// GroupSize reports the entity count of group i.
func (p PointerArray) GroupSize(i int) int64 { return p[i+1] - p[i] }
