// Package result hands a coarsened grid to callers as a shape tuple and a flat
// label buffer.
package result

import (
	"fmt"

	"github.com/janelia-flyem/voxcoarsen/vox"
)

// Shape holds the unsigned (nx, ny, nz) dimensions of a result.
type Shape [3]uint

// Prod returns the number of voxels described by the shape.
func (s Shape) Prod() uint {
	return s[0] * s[1] * s[2]
}

func (s Shape) String() string {
	return fmt.Sprintf("%d,%d,%d", s[0], s[1], s[2])
}

// Dims returns the shape as vox.Dims.
func (s Shape) Dims() vox.Dims {
	return vox.Dims{int(s[0]), int(s[1]), int(s[2])}
}

// ShapeOf returns the Shape of the given dimensions.
func ShapeOf(d vox.Dims) Shape {
	return Shape{uint(d[0]), uint(d[1]), uint(d[2])}
}

// Result is a coarsened grid ready for the caller.  Labels are in X->Y->Z order.
type Result struct {
	Shape  Shape
	Labels []int32
}

// Package returns a Result that takes over the grid's label buffer without copying.
// The grid must not be used by the caller's producer after packaging.
func Package(g *vox.Grid) Result {
	return Result{
		Shape:  ShapeOf(g.Size),
		Labels: g.Labels,
	}
}

// Valid returns true if the buffer length matches the shape.
func (r Result) Valid() bool {
	return uint(len(r.Labels)) == r.Shape.Prod()
}

// Grid returns the result viewed as a grid sharing the label buffer.
func (r Result) Grid() (*vox.Grid, error) {
	return vox.NewGrid(r.Shape.Dims(), r.Labels)
}
