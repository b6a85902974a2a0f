package vox

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxVoxels is the largest number of voxels accepted for a single grid.
const MaxVoxels int64 = 1 << 34

// maxGridVoxels also keeps Prod within int on 32-bit platforms.
var maxGridVoxels = min(MaxVoxels, int64(math.MaxInt))

// Dims is the size of a 3d grid along x, y, and z.
type Dims [3]int

// Prod returns the number of voxels in a grid of these dimensions.
func (d Dims) Prod() int {
	return d[0] * d[1] * d[2]
}

// Equals returns true if the two sizes are identical.
func (d Dims) Equals(d2 Dims) bool {
	return d[0] == d2[0] && d[1] == d2[1] && d[2] == d2[2]
}

// Check returns an error if any dimension is not positive or the total voxel count
// would exceed MaxVoxels.
func (d Dims) Check() error {
	total := int64(1)
	for dim := 0; dim < 3; dim++ {
		if d[dim] < 1 {
			return fmt.Errorf("dimension %d of size %s must be positive", dim, d)
		}
		if total > maxGridVoxels/int64(d[dim]) {
			return fmt.Errorf("size %s exceeds maximum of %d voxels", d, maxGridVoxels)
		}
		total *= int64(d[dim])
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("%d x %d x %d", d[0], d[1], d[2])
}

// ParseDims parses a string of the form "nx,ny,nz".
func ParseDims(s string) (Dims, error) {
	var d Dims
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return d, fmt.Errorf("expected 3 comma-separated dimensions, got %q", s)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return d, fmt.Errorf("bad dimension %q in %q: %v", part, s, err)
		}
		d[i] = n
	}
	return d, nil
}
