/*
	Package storage provides a unified interface to the engines that persist
	coarsened results.  Each engine registers itself at init time, e.g., by
	importing the engine package for its side effects:

		import _ "github.com/janelia-flyem/voxcoarsen/storage/badger"

	Values are simply []byte at this level.  Serialization of grids occurs in the
	ResultCache, which keys results by the content of the input dataset and the
	coarsening parameters.
*/
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver"

	"github.com/janelia-flyem/voxcoarsen/vox"
)

// Store is a simple key/value store.  Implementations must be safe for concurrent use.
type Store interface {
	fmt.Stringer

	// Get returns the value for a key.  If the key is not present, found is false
	// and err is nil.
	Get(key []byte) (value []byte, found bool, err error)

	// Put writes a value with the given key.  A store may silently drop entries it
	// cannot hold, in which case a later Get returns not found.
	Put(key, value []byte) error

	// Close releases the store.
	Close() error
}

// Engine is a storage engine that can create stores.
type Engine interface {
	fmt.Stringer
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore returns a new store for the given configuration.
	NewStore(config StoreConfig) (Store, error)
}

// TestableEngine is an engine that can create throwaway stores for testing.
type TestableEngine interface {
	Engine

	// TestConfig returns a configuration for a new, empty testing store.
	TestConfig() StoreConfig

	// Delete removes any persistent data for the given configuration.
	Delete(config StoreConfig) error
}

// StoreConfig is the [store] section of a TOML configuration.
type StoreConfig struct {
	// Engine is the name of a registered engine, e.g., "badger" or "memory".
	Engine string

	// Path is the directory of a persistent store.
	Path string

	// Size is the capacity in MB of an in-memory store.
	Size int

	// Testing stores are placed under the OS temp directory.
	Testing bool
}

func (c StoreConfig) String() string {
	switch {
	case c.Path != "":
		return fmt.Sprintf("%s @ %s", c.Engine, c.Path)
	case c.Size != 0:
		return fmt.Sprintf("%s (%d MB)", c.Engine, c.Size)
	default:
		return c.Engine
	}
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine registers an Engine for voxcoarsen use.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	vox.Debugf("Engine %q registered with voxcoarsen server.\n", e)
	engines[e.GetName()] = e
}

// GetEngine returns an Engine of the given name.
func GetEngine(name string) (Engine, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, found := engines[name]
	return e, found
}

// GetTestableEngine returns the first registered TestableEngine, or nil if none is
// available.
func GetTestableEngine() TestableEngine {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if te, ok := engines[name].(TestableEngine); ok {
			return te
		}
	}
	return nil
}

// EnginesAvailable returns a description of the available storage engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var descs []string
	for _, e := range engines {
		descs = append(descs, fmt.Sprintf("%s: %s", e, e.GetDescription()))
	}
	sort.Strings(descs)
	return strings.Join(descs, "; ")
}

// Open returns a Store using the engine named in the configuration.
func Open(config StoreConfig) (Store, error) {
	if config.Engine == "" {
		return nil, fmt.Errorf("no storage engine specified")
	}
	e, found := GetEngine(config.Engine)
	if !found {
		return nil, fmt.Errorf("storage engine %q not available; have: %s", config.Engine, EnginesAvailable())
	}
	store, err := e.NewStore(config)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s store: %v", config, err)
	}
	vox.Infof("Opened result store %s\n", store)
	return store, nil
}
