package format

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the payload compression used in a vxl file.
type Compression uint8

const (
	Uncompressed Compression = iota
	Snappy
	Zstd
	Gzip
)

func (c Compression) String() string {
	switch c {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown compression %d", uint8(c))
	}
}

// ParseCompression returns the Compression for a name like "snappy".  An empty
// string means Uncompressed.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "raw":
		return Uncompressed, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	case "gzip", "gz":
		return Gzip, nil
	default:
		return Uncompressed, fmt.Errorf("unknown compression %q", s)
	}
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case Uncompressed:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("can't compress with %s", c)
	}
}

// decompress returns the uncompressed payload, which must be exactly expected bytes.
func decompress(c Compression, data []byte, expected int) ([]byte, error) {
	var out []byte
	var err error
	switch c {
	case Uncompressed:
		out = data
	case Snappy:
		var n int
		if n, err = snappy.DecodedLen(data); err != nil {
			return nil, err
		}
		if n != expected {
			return nil, fmt.Errorf("snappy payload decodes to %d bytes, expected %d", n, expected)
		}
		out, err = snappy.Decode(nil, data)
	case Zstd:
		var hdr zstd.Header
		if err = hdr.Decode(data); err != nil {
			return nil, err
		}
		if hdr.HasFCS && hdr.FrameContentSize != uint64(expected) {
			return nil, fmt.Errorf("zstd frame decodes to %d bytes, expected %d", hdr.FrameContentSize, expected)
		}
		var dec *zstd.Decoder
		if dec, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(expected)+vox.Mega)); err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err = dec.DecodeAll(data, nil)
	case Gzip:
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(data)); err != nil {
			return nil, err
		}
		defer zr.Close()
		out, err = io.ReadAll(io.LimitReader(zr, int64(expected)+1))
	default:
		return nil, fmt.Errorf("unknown compression %d", uint8(c))
	}
	if err != nil {
		return nil, err
	}
	if len(out) != expected {
		return nil, fmt.Errorf("%s payload holds %d bytes, expected %d", c, len(out), expected)
	}
	return out, nil
}
