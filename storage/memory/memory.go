// Package memory provides an in-memory result store using freecache.  Entries are
// evicted in approximate LRU order once the configured size is exceeded.
package memory

import (
	"fmt"

	"github.com/blang/semver"
	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxcoarsen/storage"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

// DefaultSize is the cache size in MB if none is configured.
const DefaultSize = 256

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		vox.Errorf("Unable to make semver in memory store: %v\n", err)
	}
	storage.RegisterEngine(Engine{"memory", "In-memory freecache", ver})
}

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a freecache store of config.Size MB.
func (e Engine) NewStore(config storage.StoreConfig) (storage.Store, error) {
	if config.Size < 0 {
		return nil, fmt.Errorf("bad memory store size %d MB", config.Size)
	}
	mb := config.Size
	if mb == 0 {
		mb = DefaultSize
	}
	return New(mb * vox.Mega), nil
}

// TestConfig returns a small memory store configuration.
func (e Engine) TestConfig() storage.StoreConfig {
	return storage.StoreConfig{Engine: e.name, Size: 4, Testing: true}
}

// Delete is a no-op since nothing persists.
func (e Engine) Delete(config storage.StoreConfig) error {
	return nil
}

// Store is a storage.Store held in memory.
type Store struct {
	bytes int
	cache *freecache.Cache
}

// New returns a store holding up to the given number of bytes.  The smallest
// store is 512 KB and no single entry may exceed 1/1024 of the store size.
func New(bytes int) *Store {
	return &Store{bytes: bytes, cache: freecache.NewCache(bytes)}
}

func (s *Store) String() string {
	return fmt.Sprintf("memory store (%s, %d entries)", humanize.Bytes(uint64(s.bytes)), s.cache.EntryCount())
}

// Get returns a value given a key.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	value, err := s.cache.Get(key)
	if err == freecache.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put writes a value with given key.  Entries too large for the store are dropped.
func (s *Store) Put(key, value []byte) error {
	err := s.cache.Set(key, value, 0)
	if err == freecache.ErrLargeEntry {
		vox.Debugf("not caching %s entry in %s\n", humanize.Bytes(uint64(len(value))), s)
		return nil
	}
	return err
}

// Close releases the cached entries.
func (s *Store) Close() error {
	s.cache.Clear()
	return nil
}
