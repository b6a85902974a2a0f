package format

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/tinylib/msgp/msgp"
)

func makeTestGrid(t *testing.T, size vox.Dims) *vox.Grid {
	labels := make([]int32, size.Prod())
	for i := range labels {
		labels[i] = int32(i%7) - 2
	}
	g, err := vox.NewGrid(size, labels)
	if err != nil {
		t.Fatalf("can't make test grid: %v\n", err)
	}
	return g
}

func TestRoundTrip(t *testing.T) {
	g := makeTestGrid(t, vox.Dims{5, 3, 4})
	for _, f := range Formats {
		data, err := Marshal(g, f, Options{})
		if err != nil {
			t.Fatalf("can't encode %s: %v\n", f, err)
		}
		got, err := DecodeFormat(data, f)
		if err != nil {
			t.Fatalf("can't decode %s: %v\n", f, err)
		}
		if !got.Equals(g) {
			t.Errorf("%s round trip gave different grid: %v vs %v\n", f, got.Labels, g.Labels)
		}
		if sniffed := Sniff(data); sniffed != f {
			t.Errorf("expected %s data to sniff as %s, got %s\n", f, f, sniffed)
		}
	}
}

func TestVXLCompression(t *testing.T) {
	g := makeTestGrid(t, vox.Dims{16, 8, 9})
	for _, c := range []Compression{Uncompressed, Snappy, Zstd, Gzip} {
		data, err := Marshal(g, VXL, Options{Compression: c})
		if err != nil {
			t.Fatalf("can't encode vxl with %s: %v\n", c, err)
		}
		hdr, err := ReadVXLHeader(data)
		if err != nil {
			t.Fatalf("bad header with %s: %v\n", c, err)
		}
		if hdr.Compression != c || !hdr.Size.Equals(g.Size) {
			t.Errorf("expected header %s %s, got %s %s\n", c, g.Size, hdr.Compression, hdr.Size)
		}
		got, _, err := Decode(data, "")
		if err != nil {
			t.Fatalf("can't decode vxl with %s: %v\n", c, err)
		}
		if !got.Equals(g) {
			t.Errorf("vxl with %s didn't round trip\n", c)
		}
	}
}

func TestVXLErrors(t *testing.T) {
	g := makeTestGrid(t, vox.Dims{4, 4, 4})
	good, err := Marshal(g, VXL, Options{})
	if err != nil {
		t.Fatalf("can't encode vxl: %v\n", err)
	}

	badMagic := append([]byte{}, good...)
	copy(badMagic, "VOXX")

	badVersion := append([]byte{}, good...)
	badVersion[4] = 2

	badCompression := append([]byte{}, good...)
	badCompression[6] = 9

	zeroDim := append([]byte{}, good...)
	binary.LittleEndian.PutUint32(zeroDim[12:16], 0)

	bigDim := append([]byte{}, good...)
	binary.LittleEndian.PutUint32(bigDim[8:12], 5)

	corrupt := append([]byte{}, good[:vxlHeaderSize]...)
	corrupt[6] = uint8(Snappy)
	corrupt = append(corrupt, 0xff, 0xff, 0xff)

	tests := map[string][]byte{
		"truncated header": good[:10],
		"bad magic":        badMagic,
		"version 2":        badVersion,
		"bad compression":  badCompression,
		"zero dimension":   zeroDim,
		"length mismatch":  bigDim,
		"short payload":    good[:len(good)-4],
		"long payload":     append(append([]byte{}, good...), 1, 2, 3, 4),
		"corrupt snappy":   corrupt,
	}
	for name, data := range tests {
		_, err := DecodeFormat(data, VXL)
		if err == nil {
			t.Errorf("%s: expected error\n", name)
			continue
		}
		if !vox.IsCode(err, vox.CodeFormat) {
			t.Errorf("%s: expected format error, got %v\n", name, err)
		}
	}
}

func TestTextGrainMap(t *testing.T) {
	text := `# grain map exported from a cellular automata run
2 2 2
# z = 0
1 1
2 2
# z = 1
3 3 4 4
`
	g, f, err := Decode([]byte(text), "grains.txt")
	if err != nil {
		t.Fatalf("can't decode grain map: %v\n", err)
	}
	if f != Text {
		t.Errorf("expected text format, got %s\n", f)
	}
	expected := []int32{1, 1, 2, 2, 3, 3, 4, 4}
	for i, lbl := range expected {
		if g.Labels[i] != lbl {
			t.Fatalf("expected labels %v, got %v\n", expected, g.Labels)
		}
	}
	if g.Value(1, 1, 1) != 4 || g.Value(0, 1, 0) != 2 {
		t.Errorf("bad x-fastest indexing of grain map\n")
	}

	bad := []string{
		"",
		"# only comments\n",
		"2 2\n1 2 3 4\n",
		"2 2 x\n",
		"2 2 2\n1 2 3 4 5 6 7\n",
		"2 2 2\n1 2 3 4 5 6 7 8 9\n",
		"1 1 1\nbanana\n",
		"1 1 1\n99999999999\n",
	}
	for _, s := range bad {
		if _, err := DecodeFormat([]byte(s), Text); !vox.IsCode(err, vox.CodeFormat) {
			t.Errorf("expected format error for %q, got %v\n", s, err)
		}
	}
}

func TestJSONValidation(t *testing.T) {
	good := `{"version": "1.0.0", "dims": [2, 1, 1], "labels": [5, -3]}`
	g, err := DecodeFormat([]byte(good), JSON)
	if err != nil {
		t.Fatalf("can't decode json grid: %v\n", err)
	}
	if g.Labels[0] != 5 || g.Labels[1] != -3 {
		t.Errorf("bad json labels: %v\n", g.Labels)
	}

	bad := []string{
		`{"dims": [2, 1, 1], "labels": [5, -3]}`,
		`{"version": "1.0.0", "dims": [2, 1], "labels": [5, -3]}`,
		`{"version": "1.0.0", "dims": [0, 1, 1], "labels": []}`,
		`{"version": "1.0.0", "dims": [2, 1, 1], "labels": [5, 1.5]}`,
		`{"version": "1.0.0", "dims": [2, 1, 1], "labels": [5]}`,
		`{"version": "2.0.0", "dims": [2, 1, 1], "labels": [5, -3]}`,
		`{"version": "1.0", "dims": [2, 1, 1], "labels": [5, -3]}`,
		`{"version": "1.0.0", "dims": [2, 1, 1], "labels": [5, 3000000000]}`,
		`{"version": "1.0.0", "dims": [2, 1, 1], "labels": [5, -3]`,
	}
	for _, s := range bad {
		if _, err := DecodeFormat([]byte(s), JSON); !vox.IsCode(err, vox.CodeFormat) {
			t.Errorf("expected format error for %s, got %v\n", s, err)
		}
	}
}

func TestMsgpackErrors(t *testing.T) {
	g := makeTestGrid(t, vox.Dims{3, 3, 3})
	data, err := Marshal(g, MsgPack, Options{})
	if err != nil {
		t.Fatalf("can't encode msgpack: %v\n", err)
	}
	if _, err := DecodeFormat(data[:len(data)-3], MsgPack); !vox.IsCode(err, vox.CodeFormat) {
		t.Errorf("expected format error for truncated msgpack, got %v\n", err)
	}
}

func TestArrowErrors(t *testing.T) {
	g := makeTestGrid(t, vox.Dims{3, 3, 3})
	data, err := Marshal(g, Arrow, Options{})
	if err != nil {
		t.Fatalf("can't encode arrow: %v\n", err)
	}
	if _, err := DecodeFormat(data[:len(data)/2], Arrow); !vox.IsCode(err, vox.CodeFormat) {
		t.Errorf("expected format error for truncated arrow, got %v\n", err)
	}
	if _, err := DecodeFormat([]byte("not arrow"), Arrow); !vox.IsCode(err, vox.CodeFormat) {
		t.Errorf("expected format error for garbage arrow, got %v\n", err)
	}
}

// Headers that declare far more voxels than the input could hold must fail
// before any label buffer is sized from them.
func TestHugeHeaderSmallInput(t *testing.T) {
	huge := vox.Dims{4096, 4096, 256}
	type input struct {
		f    Format
		data []byte
	}
	tests := map[string]input{
		"text":             {Text, []byte("4096 4096 256\n")},
		"text with labels": {Text, []byte("4096 4096 256\n1 2 3 4\n")},
		"json":             {JSON, []byte(`{"version": "1.0.0", "dims": [4096, 4096, 256], "labels": [1]}`)},
	}

	for _, c := range []Compression{Uncompressed, Snappy, Zstd, Gzip} {
		hdr := make([]byte, vxlHeaderSize)
		copy(hdr, vxlMagic)
		hdr[4] = uint8(VXLVersion.Major)
		hdr[5] = uint8(VXLVersion.Minor)
		hdr[6] = uint8(c)
		for dim := 0; dim < 3; dim++ {
			binary.LittleEndian.PutUint32(hdr[8+dim*4:], uint32(huge[dim]))
		}
		tests["vxl header only "+c.String()] = input{VXL, hdr}

		payload, err := compress(c, []byte{1, 0, 0, 0})
		if err != nil {
			t.Fatalf("can't compress with %s: %v\n", c, err)
		}
		tests["vxl one label "+c.String()] = input{VXL, append(append([]byte{}, hdr...), payload...)}
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(arrowSchema(huge)))
	if err := w.Close(); err != nil {
		t.Fatalf("can't write empty arrow stream: %v\n", err)
	}
	tests["arrow"] = input{Arrow, buf.Bytes()}

	o := msgp.AppendMapHeader(nil, 3)
	o = msgp.AppendString(o, "version")
	o = msgp.AppendString(o, JSONVersion.String())
	o = msgp.AppendString(o, "dims")
	o = msgp.AppendArrayHeader(o, 3)
	for _, d := range huge {
		o = msgp.AppendUint64(o, uint64(d))
	}
	o = msgp.AppendString(o, "labels")
	o = msgp.AppendArrayHeader(o, 1)
	o = msgp.AppendInt32(o, 1)
	tests["msgpack"] = input{MsgPack, o}

	for name, tc := range tests {
		_, err := DecodeFormat(tc.data, tc.f)
		if err == nil {
			t.Errorf("%s: expected error for %s header on %d bytes\n", name, huge, len(tc.data))
			continue
		}
		if !vox.IsCode(err, vox.CodeFormat) {
			t.Errorf("%s: expected format error, got %v\n", name, err)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected Format
	}{
		{"a.vxl", "", VXL},
		{"a.grain", "", Text},
		{"dir/a.JSON", "", JSON},
		{"a.mpk", "", MsgPack},
		{"a.arrows", "", Arrow},
		{"a.bin", "VOXL....", VXL},
		{"noext", "  {\"version\"", JSON},
		{"noext", "4 4 4\n", Text},
		{"noext", "\x83", MsgPack},
	}
	for _, tc := range tests {
		if got := DetectFormat(tc.name, []byte(tc.data)); got != tc.expected {
			t.Errorf("expected %s for %q, got %s\n", tc.expected, tc.name, got)
		}
	}
	for _, f := range Formats {
		parsed, err := ParseFormat(f.String())
		if err != nil || parsed != f {
			t.Errorf("can't parse format name %q: %v\n", f, err)
		}
		if FromExtension("x"+f.Extension()) != f {
			t.Errorf("extension %q doesn't map back to %s\n", f.Extension(), f)
		}
	}
	if _, err := ParseFormat("tiff"); err == nil {
		t.Errorf("expected error parsing unknown format\n")
	}
}

func TestEncodeText(t *testing.T) {
	g := makeTestGrid(t, vox.Dims{3, 2, 1})
	var buf bytes.Buffer
	if err := Encode(&buf, g, Text, Options{}); err != nil {
		t.Fatalf("can't encode text: %v\n", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected comment, header and 2 rows, got:\n%s", buf.String())
	}
	if lines[1] != "3 2 1" || lines[2] != "-2 -1 0" || lines[3] != "1 2 3" {
		t.Errorf("unexpected text encoding:\n%s", buf.String())
	}
}
