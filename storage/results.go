package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/janelia-flyem/voxcoarsen/coarsen"
	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

// resultKeyPrefix leads every result key so other data can share a store.
const resultKeyPrefix = "vc1:"

// ResultKey identifies a coarsened result by input content and parameters.
type ResultKey struct {
	Content    uint64 // xxhash of the encoded input dataset
	Factor     int
	Rule       coarsen.Rule
	Boundary   coarsen.Boundary
	Background int32
}

// NewResultKey returns the key for coarsening the given encoded dataset.
func NewResultKey(data []byte, factor int, cfg coarsen.Config) ResultKey {
	return ResultKey{
		Content:    xxhash.Sum64(data),
		Factor:     factor,
		Rule:       cfg.Rule,
		Boundary:   cfg.Boundary,
		Background: cfg.Background,
	}
}

// Bytes returns the store key.
func (k ResultKey) Bytes() []byte {
	b := make([]byte, len(resultKeyPrefix), len(resultKeyPrefix)+22)
	copy(b, resultKeyPrefix)
	b = binary.BigEndian.AppendUint64(b, k.Content)
	b = binary.BigEndian.AppendUint64(b, uint64(k.Factor))
	b = append(b, byte(k.Rule), byte(k.Boundary))
	b = binary.BigEndian.AppendUint32(b, uint32(k.Background))
	return b
}

func (k ResultKey) String() string {
	return fmt.Sprintf("%016x/k=%d/%s/%s/bg=%d", k.Content, k.Factor, k.Rule, k.Boundary, k.Background)
}

// ResultCache stores coarsened grids in a Store as snappy-compressed vxl.
type ResultCache struct {
	store Store
}

// NewResultCache returns a cache backed by the given store.
func NewResultCache(store Store) *ResultCache {
	return &ResultCache{store: store}
}

// Get returns the cached grid for a key or found = false.
func (c *ResultCache) Get(key ResultKey) (g *vox.Grid, found bool, err error) {
	if c == nil || c.store == nil {
		return nil, false, nil
	}
	data, found, err := c.store.Get(key.Bytes())
	if err != nil || !found {
		return nil, false, err
	}
	g, err = format.DecodeFormat(data, format.VXL)
	if err != nil {
		return nil, false, fmt.Errorf("bad cached result %s: %v", key, err)
	}
	vox.Debugf("result cache hit for %s\n", key)
	return g, true, nil
}

// Put stores a grid for a key.
func (c *ResultCache) Put(key ResultKey, g *vox.Grid) error {
	if c == nil || c.store == nil {
		return nil
	}
	data, err := format.Marshal(g, format.VXL, format.Options{Compression: format.Snappy})
	if err != nil {
		return err
	}
	return c.store.Put(key.Bytes(), data)
}
