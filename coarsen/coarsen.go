/*
Package coarsen reduces the resolution of voxel label grids by an integer factor.

The grid is partitioned into k x k x k blocks aligned to the origin and each block is
replaced by one representative label chosen by a Rule.  Voxels at the far end of an
axis that don't fill a complete block are handled according to a Boundary policy.
Output is deterministic and independent of the number of workers.
*/
package coarsen

import (
	"context"
	"fmt"
	"runtime"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"golang.org/x/sync/errgroup"
)

// Config holds the coarsening settings other than the factor.  The zero value uses
// the Mode rule, Truncate boundaries, background label 0, and GOMAXPROCS workers.
type Config struct {
	Rule       Rule
	Boundary   Boundary
	Background int32

	// Workers is the maximum number of goroutines used.  Zero or negative means GOMAXPROCS.
	Workers int
}

func (c Config) String() string {
	return fmt.Sprintf("rule %s, boundary %s, background %d", c.Rule, c.Boundary, c.Background)
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) check() error {
	if c.Rule > FirstNonzero {
		return fmt.Errorf("unknown reduction rule %d", uint8(c.Rule))
	}
	if c.Boundary > Partial {
		return fmt.Errorf("unknown boundary policy %d", uint8(c.Boundary))
	}
	return nil
}

// Stats describes a completed coarsening.
type Stats struct {
	InputSize  vox.Dims
	OutputSize vox.Dims

	// Blocks is the number of output voxels computed.
	Blocks int

	// UniformBlocks is the number of blocks whose voxels all had the same label.
	UniformBlocks int
}

// OutputSize returns the size of a grid of the given size coarsened by factor k.
func OutputSize(size vox.Dims, k int, b Boundary) (vox.Dims, error) {
	if k < 1 {
		return vox.Dims{}, vox.NewError(vox.CodeInvalidFactor, "coarsen factor must be at least 1, got %d", k)
	}
	var out vox.Dims
	for dim := 0; dim < 3; dim++ {
		out[dim] = b.outLen(size[dim], k)
	}
	return out, nil
}

// Coarsen returns a new grid reduced by factor k along each axis.  The input grid is
// not modified.  A factor of 1 returns a copy of the input.
func Coarsen(g *vox.Grid, k int, cfg Config) (*vox.Grid, error) {
	out, _, err := CoarsenStats(context.Background(), g, k, cfg)
	return out, err
}

// CoarsenContext is like Coarsen but stops early if ctx is done.
func CoarsenContext(ctx context.Context, g *vox.Grid, k int, cfg Config) (*vox.Grid, error) {
	out, _, err := CoarsenStats(ctx, g, k, cfg)
	return out, err
}

// CoarsenStats is like CoarsenContext but also returns statistics of the run.
func CoarsenStats(ctx context.Context, g *vox.Grid, k int, cfg Config) (*vox.Grid, Stats, error) {
	var stats Stats
	if g == nil {
		return nil, stats, fmt.Errorf("can't coarsen nil grid")
	}
	if err := cfg.check(); err != nil {
		return nil, stats, err
	}
	outSize, err := OutputSize(g.Size, k, cfg.Boundary)
	if err != nil {
		return nil, stats, err
	}
	stats.InputSize = g.Size
	stats.OutputSize = outSize
	stats.Blocks = outSize.Prod()

	if k == 1 {
		labels := make([]int32, len(g.Labels))
		copy(labels, g.Labels)
		out, err := vox.NewGrid(outSize, labels)
		return out, stats, err
	}

	timedLog := vox.NewTimeLog()
	var spans [3][][2]int
	for dim := 0; dim < 3; dim++ {
		spans[dim] = make([][2]int, outSize[dim])
		for i := range spans[dim] {
			lo, hi := cfg.Boundary.span(i, g.Size[dim], outSize[dim], k)
			spans[dim][i] = [2]int{lo, hi}
		}
	}

	labels := make([]int32, outSize.Prod())
	uniform := make([]int, outSize[2])

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.workers())
	for z := 0; z < outSize[2]; z++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			uniform[z] = coarsenPlane(g, labels, z, &spans, cfg)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, stats, err
	}
	for _, n := range uniform {
		stats.UniformBlocks += n
	}

	out, err := vox.NewGrid(outSize, labels)
	if err != nil {
		return nil, stats, err
	}
	timedLog.Debugf("Coarsened %s grid by %d to %s (%s, %d of %d blocks uniform)",
		g.Size, k, outSize, cfg, stats.UniformBlocks, stats.Blocks)
	return out, stats, nil
}

// coarsenPlane computes output plane z into labels and returns the number of uniform
// blocks.  Each plane writes a disjoint portion of labels.
func coarsenPlane(g *vox.Grid, labels []int32, z int, spans *[3][][2]int, cfg Config) int {
	nx, ny := g.Size[0], g.Size[1]
	nxOut, nyOut := len(spans[0]), len(spans[1])
	zlo, zhi := spans[2][z][0], spans[2][z][1]

	var block []int32
	var numUniform int
	for y := 0; y < nyOut; y++ {
		ylo, yhi := spans[1][y][0], spans[1][y][1]
		for x := 0; x < nxOut; x++ {
			xlo, xhi := spans[0][x][0], spans[0][x][1]

			block = block[:0]
			first := g.Labels[(zlo*ny+ylo)*nx+xlo]
			isUniform := true
			for iz := zlo; iz < zhi; iz++ {
				for iy := ylo; iy < yhi; iy++ {
					row := (iz*ny + iy) * nx
					for _, lbl := range g.Labels[row+xlo : row+xhi] {
						if lbl != first {
							isUniform = false
						}
						block = append(block, lbl)
					}
				}
			}

			i := (z*nyOut+y)*nxOut + x
			if isUniform {
				labels[i] = first
				numUniform++
			} else {
				labels[i] = cfg.Rule.reduce(block, cfg.Background)
			}
		}
	}
	return numUniform
}

// Pyramid returns successive coarsenings of g by factor k, starting with the first
// coarsened level.  It stops after the given number of levels or once a level
// reaches a single voxel.  A factor of 1 yields a single level.
func Pyramid(ctx context.Context, g *vox.Grid, k, levels int, cfg Config) ([]*vox.Grid, error) {
	if k < 1 {
		return nil, vox.NewError(vox.CodeInvalidFactor, "coarsen factor must be at least 1, got %d", k)
	}
	if levels < 1 {
		return nil, fmt.Errorf("number of pyramid levels must be at least 1, got %d", levels)
	}
	var pyramid []*vox.Grid
	cur := g
	for level := 1; level <= levels; level++ {
		next, err := CoarsenContext(ctx, cur, k, cfg)
		if err != nil {
			return nil, fmt.Errorf("pyramid level %d: %w", level, err)
		}
		pyramid = append(pyramid, next)
		vox.Debugf("Pyramid level %d: %s\n", level, next.Size)
		if next.Size.Prod() == 1 || k == 1 {
			break
		}
		cur = next
	}
	return pyramid, nil
}
