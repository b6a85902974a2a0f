package format

import (
	"io"
	"math"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"github.com/tinylib/msgp/msgp"
)

func isMsgpackMap(b byte) bool {
	// fixmap, map16, map32
	return b&0xf0 == 0x80 || b == 0xde || b == 0xdf
}

func decodeMsgpack(data []byte) (*vox.Grid, error) {
	var doc gridDoc
	var haveDims bool
	sz, o, err := msgp.ReadMapHeaderBytes(data)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < sz; i++ {
		var key []byte
		if key, o, err = msgp.ReadMapKeyZC(o); err != nil {
			return nil, err
		}
		switch string(key) {
		case "version":
			if doc.Version, o, err = msgp.ReadStringBytes(o); err != nil {
				return nil, err
			}
		case "dims":
			var n uint32
			if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
				return nil, err
			}
			if n != 3 {
				return nil, vox.NewError(vox.CodeFormat, "msgpack dims has %d entries, expected 3", n)
			}
			for dim := 0; dim < 3; dim++ {
				var v uint64
				if v, o, err = msgp.ReadUint64Bytes(o); err != nil {
					return nil, err
				}
				if v > uint64(vox.MaxVoxels) || v > math.MaxInt {
					return nil, vox.NewError(vox.CodeFormat, "msgpack dimension %d too large", v)
				}
				doc.Dims[dim] = int(v)
			}
			haveDims = true
		case "labels":
			var n uint32
			if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
				return nil, err
			}
			// each label takes at least one byte
			if int(n) > len(o) {
				return nil, vox.NewError(vox.CodeFormat, "msgpack declares %d labels in %d bytes", n, len(o))
			}
			doc.Labels = make([]int32, n)
			for j := range doc.Labels {
				if doc.Labels[j], o, err = msgp.ReadInt32Bytes(o); err != nil {
					return nil, err
				}
			}
		default:
			if o, err = msgp.Skip(o); err != nil {
				return nil, err
			}
		}
	}
	if !haveDims || doc.Version == "" {
		return nil, vox.NewError(vox.CodeFormat, "msgpack voxel data missing version or dims")
	}
	return doc.grid()
}

func encodeMsgpack(w io.Writer, g *vox.Grid) error {
	b := make([]byte, 0, 64+len(g.Labels)*5)
	b = msgp.AppendMapHeader(b, 3)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendString(b, JSONVersion.String())
	b = msgp.AppendString(b, "dims")
	b = msgp.AppendArrayHeader(b, 3)
	for dim := 0; dim < 3; dim++ {
		b = msgp.AppendUint64(b, uint64(g.Size[dim]))
	}
	b = msgp.AppendString(b, "labels")
	b = msgp.AppendArrayHeader(b, uint32(len(g.Labels)))
	for _, lbl := range g.Labels {
		b = msgp.AppendInt32(b, lbl)
	}
	_, err := w.Write(b)
	return err
}
