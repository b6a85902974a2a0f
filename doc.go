/*
Package voxcoarsen reduces the resolution of 3d label volumes.

A voxel dataset is a dense grid of integer labels, e.g., grain or segment ids, stored
with x varying fastest, then y, then z.  Coarsening by an integer factor k replaces
each k x k x k block of input voxels with a single output voxel whose label is chosen
by a reduction rule.  The default rule picks the most frequent label in the block with
ties going to the lowest label, so a block that is half background and half label 1
coarsens to background.

Library use

	shape, labels, err := voxcoarsen.VoxelCoarsen("grains.vxl", 2)

The returned shape is (nx', ny', nz') and labels holds nx'*ny'*nz' labels in the
same X->Y->Z order as the input.  Errors carry one of three codes accessible via
errors.Is with vox.ErrIO, vox.ErrFormat, or vox.ErrInvalidFactor.

Run allows a different reduction rule (mode, mode-nonzero, first-nonzero), a
boundary policy for dimensions not divisible by k (truncate, fold, partial), a
worker count, and a custom loader for cloud buckets.

Supported dataset formats

	vxl      Binary header "VOXL" followed by int32 labels, optionally compressed
	         with snappy, zstd, or gzip.
	txt      Whitespace-separated "nx ny nz" followed by labels.  Lines starting
	         with '#' are ignored.
	json     {"version": "1.0.0", "dims": [nx, ny, nz], "labels": [...]}
	msgpack  Map with the same keys as json.
	arrow    Arrow IPC stream with a single int32 "label" column and nx/ny/nz
	         schema metadata.

Datasets can be local paths, file:// URLs, or gs://, s3:// blob URLs.  The HTTP
server only accepts blob URLs when its [server] allow_blobs setting is true.

Commands

The voxcoarsen tool in cmd/voxcoarsen exposes the library from the command line.
In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	voxcoarsen about
	voxcoarsen info <dataset>
	voxcoarsen coarsen <dataset> <factor> [output]
	voxcoarsen pyramid <dataset> <factor> <levels> <output prefix>
	voxcoarsen convert <dataset> <output>
	voxcoarsen serve

The serve command starts an HTTP server configured by a TOML file given with
-config.  See the server package for the HTTP API.
*/
package voxcoarsen
