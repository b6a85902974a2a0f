package voxcoarsen

import (
	"context"

	"github.com/janelia-flyem/voxcoarsen/coarsen"
	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/result"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

// Version is the version of the voxcoarsen library and tools.
const Version = "1.0.0"

// Options modify a coarsening run.  The zero value reads local files and cloud
// blobs with the mode rule and truncated boundaries.
type Options struct {
	coarsen.Config

	// Loader reads the dataset.  If nil, format.DefaultLoader is used.
	Loader *format.Loader
}

// VoxelCoarsen loads the voxel dataset at file, coarsens it by coarsenSize along each
// axis with the default mode rule, and returns the coarsened shape and its flat
// labels in X->Y->Z order.  On failure no partial result is returned.
func VoxelCoarsen(file string, coarsenSize uint) (result.Shape, []int32, error) {
	r, err := Run(context.Background(), file, coarsenSize, Options{})
	if err != nil {
		return result.Shape{}, nil, err
	}
	return r.Shape, r.Labels, nil
}

// Run is like VoxelCoarsen with control over rule, boundary, workers, and loader.
func Run(ctx context.Context, file string, coarsenSize uint, opts Options) (result.Result, error) {
	if coarsenSize == 0 {
		return result.Result{}, vox.NewError(vox.CodeInvalidFactor, "coarsen size must be at least 1")
	}
	if uint64(coarsenSize) > uint64(vox.MaxVoxels) {
		return result.Result{}, vox.NewError(vox.CodeInvalidFactor, "coarsen size %d too large", coarsenSize)
	}
	loader := opts.Loader
	if loader == nil {
		loader = format.DefaultLoader
	}
	grid, err := loader.Load(ctx, file)
	if err != nil {
		return result.Result{}, err
	}
	coarse, err := coarsen.CoarsenContext(ctx, grid, int(coarsenSize), opts.Config)
	if err != nil {
		return result.Result{}, err
	}
	return result.Package(coarse), nil
}
