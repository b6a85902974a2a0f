package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/janelia-flyem/voxcoarsen/vox"

	"github.com/blang/semver"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONVersion is the document version written into json and msgpack encodings.
var JSONVersion = semver.Version{Major: 1, Minor: 0, Patch: 0}

var readableJSON = semver.MustParseRange(">=1.0.0 <2.0.0")

const gridSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "voxel label grid",
	"type": "object",
	"required": ["version", "dims", "labels"],
	"properties": {
		"version": {"type": "string"},
		"dims": {
			"type": "array",
			"minItems": 3,
			"maxItems": 3,
			"items": {"type": "integer", "minimum": 1}
		},
		"labels": {
			"type": "array",
			"items": {"type": "integer", "minimum": -2147483648, "maximum": 2147483647}
		}
	}
}`

var (
	compiledSchema *jsonschema.Schema
	schemaOnce     sync.Once
	schemaErr      error
)

func getSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("voxelgrid.json", gridSchema)
	})
	return compiledSchema, schemaErr
}

// gridDoc is the document form shared by json and msgpack.
type gridDoc struct {
	Version string  `json:"version"`
	Dims    [3]int  `json:"dims"`
	Labels  []int32 `json:"labels"`
}

func (doc gridDoc) grid() (*vox.Grid, error) {
	ver, err := semver.Parse(doc.Version)
	if err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "bad document version %q", doc.Version)
	}
	if !readableJSON(ver) {
		return nil, vox.NewError(vox.CodeFormat, "unsupported document version %s", ver)
	}
	g, err := vox.NewGrid(vox.Dims(doc.Dims), doc.Labels)
	if err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "bad voxel document")
	}
	return g, nil
}

func decodeJSON(data []byte) (*vox.Grid, error) {
	sch, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("can't compile voxel grid schema: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "bad json voxel data")
	}
	if err := sch.Validate(v); err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "json voxel data fails schema")
	}
	var doc gridDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, vox.WrapError(vox.CodeFormat, err, "bad json voxel data")
	}
	return doc.grid()
}

func encodeJSON(w io.Writer, g *vox.Grid) error {
	doc := gridDoc{
		Version: JSONVersion.String(),
		Dims:    [3]int(g.Size),
		Labels:  g.Labels,
	}
	return json.NewEncoder(w).Encode(doc)
}
