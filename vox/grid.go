package vox

import "fmt"

// Grid is a dense 3d array of integer labels in X->Y->Z order.  A Grid should be
// treated as immutable once constructed: neither Size nor Labels may be modified.
type Grid struct {
	Size   Dims
	Labels []int32
}

// NewGrid returns a Grid using the given label buffer without copying.  The buffer
// must hold exactly size.Prod() labels.
func NewGrid(size Dims, labels []int32) (*Grid, error) {
	if err := size.Check(); err != nil {
		return nil, err
	}
	if len(labels) != size.Prod() {
		return nil, fmt.Errorf("grid of size %s requires %d labels, got %d", size, size.Prod(), len(labels))
	}
	return &Grid{Size: size, Labels: labels}, nil
}

// MakeSolidGrid returns a grid where every voxel has the given label.
func MakeSolidGrid(size Dims, label int32) (*Grid, error) {
	if err := size.Check(); err != nil {
		return nil, err
	}
	labels := make([]int32, size.Prod())
	if label != 0 {
		for i := range labels {
			labels[i] = label
		}
	}
	return &Grid{Size: size, Labels: labels}, nil
}

// Index returns the position of voxel (x, y, z) within the flat label buffer.
func (g *Grid) Index(x, y, z int) int {
	return (z*g.Size[1]+y)*g.Size[0] + x
}

// Value returns the label at voxel (x, y, z).
func (g *Grid) Value(x, y, z int) int32 {
	return g.Labels[g.Index(x, y, z)]
}

// NumVoxels returns the number of voxels in the grid.
func (g *Grid) NumVoxels() int {
	return len(g.Labels)
}

// CountLabels returns the number of voxels for each distinct label.
func (g *Grid) CountLabels() map[int32]int {
	counts := make(map[int32]int)
	for _, lbl := range g.Labels {
		counts[lbl]++
	}
	return counts
}

// Equals returns true if both grids have the same size and labels.
func (g *Grid) Equals(g2 *Grid) bool {
	if g == nil || g2 == nil {
		return g == g2
	}
	if !g.Size.Equals(g2.Size) || len(g.Labels) != len(g2.Labels) {
		return false
	}
	for i, lbl := range g.Labels {
		if g2.Labels[i] != lbl {
			return false
		}
	}
	return true
}

func (g *Grid) String() string {
	return fmt.Sprintf("label grid %s", g.Size)
}
