/*
Package format reads and writes voxel label grids.

Supported formats, all storing labels in X->Y->Z order (x fastest):

	vxl      binary "VOXL" header with dimensions followed by little-endian int32
	         labels, optionally compressed with snappy, zstd, or gzip.
	text     grain map text: "nx ny nz" on the first data line followed by
	         whitespace-separated integer labels.  Lines starting with '#' are ignored.
	json     {"version": "1.0.0", "dims": [nx, ny, nz], "labels": [...]}
	msgpack  map with the same keys as json.
	arrow    Arrow IPC stream with one int32 column "label" and dims stored in the
	         schema metadata keys "nx", "ny", and "nz".

A Loader reads a dataset from a local path or a cloud blob URL and decodes it.
*/
package format

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/janelia-flyem/voxcoarsen/vox"
)

// Format identifies a voxel file encoding.
type Format uint8

const (
	Unknown Format = iota
	VXL
	Text
	JSON
	MsgPack
	Arrow
)

// Formats lists all supported formats.
var Formats = []Format{VXL, Text, JSON, MsgPack, Arrow}

func (f Format) String() string {
	switch f {
	case VXL:
		return "vxl"
	case Text:
		return "text"
	case JSON:
		return "json"
	case MsgPack:
		return "msgpack"
	case Arrow:
		return "arrow"
	default:
		return "unknown"
	}
}

// Extension returns the preferred file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case VXL:
		return ".vxl"
	case Text:
		return ".txt"
	case JSON:
		return ".json"
	case MsgPack:
		return ".msgpack"
	case Arrow:
		return ".arrow"
	default:
		return ""
	}
}

// ContentType returns the MIME type used when serving this format over HTTP.
func (f Format) ContentType() string {
	switch f {
	case Text:
		return "text/plain"
	case JSON:
		return "application/json"
	case MsgPack:
		return "application/x-msgpack"
	case Arrow:
		return "application/vnd.apache.arrow.stream"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat returns the Format for a name like "vxl" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "vxl", "voxl", "bin", "":
		return VXL, nil
	case "text", "txt", "grain", "gmap":
		return Text, nil
	case "json":
		return JSON, nil
	case "msgpack", "mpk":
		return MsgPack, nil
	case "arrow", "arrows":
		return Arrow, nil
	default:
		return Unknown, fmt.Errorf("unknown voxel format %q", s)
	}
}

// FromExtension returns the format implied by a file name or Unknown.
func FromExtension(name string) Format {
	ext := filepath.Ext(name)
	if ext == "" {
		return Unknown
	}
	f, err := ParseFormat(ext)
	if err != nil || ext == ".bin" {
		return Unknown
	}
	return f
}

// Sniff guesses the format from the leading bytes of a dataset.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte(vxlMagic)):
		return VXL
	case bytes.HasPrefix(data, arrowContinuation):
		return Arrow
	case len(data) > 0 && isMsgpackMap(data[0]):
		return MsgPack
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return JSON
	}
	return Text
}

// DetectFormat picks a format using the name's extension, falling back on content.
func DetectFormat(name string, data []byte) Format {
	if f := FromExtension(name); f != Unknown {
		return f
	}
	return Sniff(data)
}

// Options control encoding.
type Options struct {
	// Compression applies to the vxl format only.
	Compression Compression
}

// Decode parses a dataset.  The name is used only to pick a format by extension and
// may be empty.  Failures are returned as vox.CodeFormat errors.
func Decode(data []byte, name string) (*vox.Grid, Format, error) {
	f := DetectFormat(name, data)
	g, err := DecodeFormat(data, f)
	return g, f, err
}

// DecodeFormat parses a dataset of a known format.
func DecodeFormat(data []byte, f Format) (*vox.Grid, error) {
	var g *vox.Grid
	var err error
	switch f {
	case VXL:
		g, err = decodeVXL(data)
	case Text:
		g, err = decodeText(data)
	case JSON:
		g, err = decodeJSON(data)
	case MsgPack:
		g, err = decodeMsgpack(data)
	case Arrow:
		g, err = decodeArrow(data)
	default:
		return nil, vox.NewError(vox.CodeFormat, "unsupported voxel format %s", f)
	}
	if err != nil {
		if vox.ErrorCode(err) == vox.CodeFormat {
			return nil, err
		}
		return nil, vox.WrapError(vox.CodeFormat, err, "bad %s voxel data", f)
	}
	return g, nil
}

// Encode writes the grid to w in the given format.
func Encode(w io.Writer, g *vox.Grid, f Format, opts Options) error {
	if g == nil {
		return fmt.Errorf("can't encode nil grid")
	}
	switch f {
	case VXL:
		return encodeVXL(w, g, opts.Compression)
	case Text:
		return encodeText(w, g)
	case JSON:
		return encodeJSON(w, g)
	case MsgPack:
		return encodeMsgpack(w, g)
	case Arrow:
		return encodeArrow(w, g)
	default:
		return fmt.Errorf("unsupported voxel format %s", f)
	}
}

// Marshal returns the encoding of the grid in the given format.
func Marshal(g *vox.Grid, f Format, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, g, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
