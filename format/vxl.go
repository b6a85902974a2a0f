package format

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"github.com/blang/semver"
)

const (
	vxlMagic      = "VOXL"
	vxlHeaderSize = 20
)

// VXLVersion is the version written into new vxl files.
var VXLVersion = semver.Version{Major: 1, Minor: 0}

// readableVXL is the range of vxl versions this package can decode.
var readableVXL = semver.MustParseRange(">=1.0.0 <2.0.0")

// VXLHeader is the fixed-size header of a vxl file.
type VXLHeader struct {
	Version     semver.Version
	Compression Compression
	Size        vox.Dims
}

// ReadVXLHeader parses the header at the start of a vxl file.
func ReadVXLHeader(data []byte) (VXLHeader, error) {
	var hdr VXLHeader
	if len(data) < vxlHeaderSize {
		return hdr, vox.NewError(vox.CodeFormat, "vxl data has %d bytes, less than %d byte header", len(data), vxlHeaderSize)
	}
	if string(data[0:4]) != vxlMagic {
		return hdr, vox.NewError(vox.CodeFormat, "vxl data does not start with %q magic", vxlMagic)
	}
	hdr.Version = semver.Version{Major: uint64(data[4]), Minor: uint64(data[5])}
	if !readableVXL(hdr.Version) {
		return hdr, vox.NewError(vox.CodeFormat, "unsupported vxl version %s", hdr.Version)
	}
	hdr.Compression = Compression(data[6])
	if hdr.Compression > Gzip {
		return hdr, vox.NewError(vox.CodeFormat, "unknown vxl compression %d", data[6])
	}
	for dim := 0; dim < 3; dim++ {
		off := 8 + dim*4
		hdr.Size[dim] = int(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	if err := hdr.Size.Check(); err != nil {
		return hdr, vox.WrapError(vox.CodeFormat, err, "bad vxl header")
	}
	return hdr, nil
}

func decodeVXL(data []byte) (*vox.Grid, error) {
	hdr, err := ReadVXLHeader(data)
	if err != nil {
		return nil, err
	}
	numVoxels := hdr.Size.Prod()
	payload, err := decompress(hdr.Compression, data[vxlHeaderSize:], numVoxels*4)
	if err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "bad vxl payload for %s grid", hdr.Size)
	}
	return vox.NewGrid(hdr.Size, bytesToLabels(payload))
}

func encodeVXL(w io.Writer, g *vox.Grid, c Compression) error {
	hdr := make([]byte, vxlHeaderSize)
	copy(hdr[0:4], vxlMagic)
	hdr[4] = uint8(VXLVersion.Major)
	hdr[5] = uint8(VXLVersion.Minor)
	hdr[6] = uint8(c)
	for dim := 0; dim < 3; dim++ {
		if g.Size[dim] > int(^uint32(0)) {
			return fmt.Errorf("dimension %d of grid %s too large for vxl", dim, g.Size)
		}
		off := 8 + dim*4
		binary.LittleEndian.PutUint32(hdr[off:off+4], uint32(g.Size[dim]))
	}
	payload, err := compress(c, labelsToBytes(g.Labels))
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func labelsToBytes(labels []int32) []byte {
	b := make([]byte, len(labels)*4)
	for i, lbl := range labels {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], uint32(lbl))
	}
	return b
}

func bytesToLabels(b []byte) []int32 {
	labels := make([]int32, len(b)/4)
	for i := range labels {
		labels[i] = int32(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return labels
}
