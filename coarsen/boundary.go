package coarsen

import (
	"fmt"
	"strings"
)

// Boundary is the policy for voxels at the far end of an axis that do not fill a
// complete block.
type Boundary uint8

const (
	// Truncate drops trailing voxels that don't fill a complete block.  An axis
	// shorter than the factor still produces one block covering the whole axis.
	Truncate Boundary = iota

	// Fold merges trailing voxels into the last complete block along that axis.
	Fold

	// Partial keeps trailing voxels as their own, smaller, final block.
	Partial
)

// Boundaries lists all boundary policies.
var Boundaries = []Boundary{Truncate, Fold, Partial}

func (b Boundary) String() string {
	switch b {
	case Truncate:
		return "truncate"
	case Fold:
		return "fold"
	case Partial:
		return "partial"
	default:
		return fmt.Sprintf("unknown boundary %d", uint8(b))
	}
}

// ParseBoundary returns the Boundary for a name like "fold".  An empty string gives Truncate.
func ParseBoundary(s string) (Boundary, error) {
	switch strings.ToLower(s) {
	case "", "truncate", "floor":
		return Truncate, nil
	case "fold":
		return Fold, nil
	case "partial", "pad", "ceil":
		return Partial, nil
	default:
		return Truncate, fmt.Errorf("unknown boundary policy %q", s)
	}
}

// outLen returns the coarsened length of an axis of n voxels.
func (b Boundary) outLen(n, k int) int {
	if b == Partial {
		return (n + k - 1) / k
	}
	if n < k {
		return 1
	}
	return n / k
}

// span returns the half-open voxel range [lo, hi) reduced into output voxel i of an
// axis of n voxels with nOut output voxels.
func (b Boundary) span(i, n, nOut, k int) (lo, hi int) {
	lo = i * k
	hi = lo + k
	if b == Fold && i == nOut-1 {
		hi = n
	}
	if hi > n {
		hi = n
	}
	return
}
