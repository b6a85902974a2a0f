package format

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// arrowContinuation starts every message of an Arrow IPC stream.
var arrowContinuation = []byte{0xff, 0xff, 0xff, 0xff}

// arrowBatchVoxels is the number of labels per record batch when writing.
const arrowBatchVoxels = 1 << 20

var arrowDimKeys = [3]string{"nx", "ny", "nz"}

func arrowSchema(size vox.Dims) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{arrowDimKeys[0], arrowDimKeys[1], arrowDimKeys[2], "version"},
		[]string{strconv.Itoa(size[0]), strconv.Itoa(size[1]), strconv.Itoa(size[2]), JSONVersion.String()},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "label", Type: arrow.PrimitiveTypes.Int32},
	}, &md)
}

func decodeArrow(data []byte) (*vox.Grid, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, err
	}
	defer rdr.Release()

	schema := rdr.Schema()
	if len(schema.Fields()) != 1 || schema.Field(0).Type.ID() != arrow.INT32 {
		return nil, vox.NewError(vox.CodeFormat, "arrow voxel stream must have a single int32 column, got %s", schema)
	}
	var size vox.Dims
	md := schema.Metadata()
	for dim, key := range arrowDimKeys {
		i := md.FindKey(key)
		if i < 0 {
			return nil, vox.NewError(vox.CodeFormat, "arrow voxel stream metadata missing %q", key)
		}
		if size[dim], err = strconv.Atoi(md.Values()[i]); err != nil {
			return nil, vox.NewError(vox.CodeFormat, "bad arrow metadata %s=%q", key, md.Values()[i])
		}
	}
	if err := size.Check(); err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "bad arrow voxel stream")
	}

	numVoxels := size.Prod()
	labels := make([]int32, 0, min(numVoxels, len(data)/4))
	for rdr.Next() {
		rec := rdr.Record()
		col, ok := rec.Column(0).(*array.Int32)
		if !ok {
			return nil, vox.NewError(vox.CodeFormat, "arrow label column is %T, not int32", rec.Column(0))
		}
		if col.NullN() != 0 {
			return nil, vox.NewError(vox.CodeFormat, "arrow label column has %d null labels", col.NullN())
		}
		if len(labels)+col.Len() > numVoxels {
			return nil, vox.NewError(vox.CodeFormat, "arrow voxel stream has more than %d labels", numVoxels)
		}
		labels = append(labels, col.Int32Values()...)
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	if len(labels) != numVoxels {
		return nil, vox.NewError(vox.CodeFormat, "arrow voxel stream has %d labels, expected %d for %s grid", len(labels), numVoxels, size)
	}
	return vox.NewGrid(size, labels)
}

func encodeArrow(w io.Writer, g *vox.Grid) error {
	pool := memory.NewGoAllocator()
	schema := arrowSchema(g.Size)
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))

	builder := array.NewInt32Builder(pool)
	defer builder.Release()
	for start := 0; start < len(g.Labels); start += arrowBatchVoxels {
		end := start + arrowBatchVoxels
		if end > len(g.Labels) {
			end = len(g.Labels)
		}
		builder.AppendValues(g.Labels[start:end], nil)
		col := builder.NewArray()
		record := array.NewRecord(schema, []arrow.Array{col}, int64(end-start))
		err := writer.Write(record)
		record.Release()
		col.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("can't write arrow record batch: %v", err)
		}
	}
	return writer.Close()
}
