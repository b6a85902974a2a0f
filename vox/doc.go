/*
Package vox holds the core types shared by the voxcoarsen packages: grid dimensions,
dense label grids, the error taxonomy, and package-level logging.

Label grids are stored as a flat []int32 in X->Y->Z order, i.e., x varies fastest,
then y, then z.  The index of voxel (x, y, z) in a grid of size (nx, ny, nz) is

	(z*ny + y)*nx + x

Every package in this module reads and writes buffers in that order.
*/
package vox
