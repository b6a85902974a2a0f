package format

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/janelia-flyem/voxcoarsen/vox"
)

// decodeText parses a grain map.  The first non-comment line holds the dimensions and
// all following tokens are labels, which may span any number of lines.
func decodeText(data []byte) (*vox.Grid, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*vox.Kilo), 16*vox.Mega)

	var size vox.Dims
	var labels []int32
	var haveHeader bool
	var lineNum, n int
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := bytes.Fields(line)
		if !haveHeader {
			if len(fields) != 3 {
				return nil, vox.NewError(vox.CodeFormat, "line %d: expected header with 3 dimensions, got %q", lineNum, line)
			}
			for dim, field := range fields {
				v, err := strconv.Atoi(string(field))
				if err != nil {
					return nil, vox.NewError(vox.CodeFormat, "line %d: bad dimension %q", lineNum, field)
				}
				size[dim] = v
			}
			if err := size.Check(); err != nil {
				return nil, vox.WrapError(vox.CodeFormat, err, "line %d: bad text header", lineNum)
			}
			// each label needs a digit and a separator
			if size.Prod() > (len(data)+1)/2 {
				return nil, vox.NewError(vox.CodeFormat, "line %d: %s grid can't fit in %d bytes of text", lineNum, size, len(data))
			}
			labels = make([]int32, size.Prod())
			haveHeader = true
			continue
		}
		for _, field := range fields {
			v, err := strconv.ParseInt(string(field), 10, 32)
			if err != nil {
				return nil, vox.NewError(vox.CodeFormat, "line %d: bad label %q", lineNum, field)
			}
			if n >= len(labels) {
				return nil, vox.NewError(vox.CodeFormat, "line %d: more than %d labels for %s grid", lineNum, len(labels), size)
			}
			labels[n] = int32(v)
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "can't scan text voxel data")
	}
	if !haveHeader {
		return nil, vox.NewError(vox.CodeFormat, "text voxel data has no dimension header")
	}
	if n != len(labels) {
		return nil, vox.NewError(vox.CodeFormat, "text voxel data has %d labels, expected %d for %s grid", n, len(labels), size)
	}
	return vox.NewGrid(size, labels)
}

// encodeText writes one x row per line.
func encodeText(w io.Writer, g *vox.Grid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# voxel label grid, x fastest then y then z\n")
	fmt.Fprintf(bw, "%d %d %d\n", g.Size[0], g.Size[1], g.Size[2])
	nx := g.Size[0]
	buf := make([]byte, 0, 12)
	for i, lbl := range g.Labels {
		buf = strconv.AppendInt(buf[:0], int64(lbl), 10)
		if (i+1)%nx == 0 {
			buf = append(buf, '\n')
		} else {
			buf = append(buf, ' ')
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
