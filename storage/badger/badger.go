// Package badger provides a persistent result store using BadgerDB.
package badger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxcoarsen/storage"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

const (
	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.
	DefaultSyncWrites = false

	// SyncInterval is how often buffered writes are synced to disk.
	SyncInterval = 30 * time.Second
)

func init() {
	ver, err := semver.Make("0.2.0")
	if err != nil {
		vox.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

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

// NewStore returns a badger store.  The passed config must contain a path.
func (e Engine) NewStore(config storage.StoreConfig) (storage.Store, error) {
	return e.newDB(config)
}

func parseConfig(config storage.StoreConfig) (string, error) {
	if config.Path == "" {
		return "", fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	if config.Testing {
		return filepath.Join(os.TempDir(), config.Path), nil
	}
	return config.Path, nil
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func syncPeriodically(db *BadgerDB) {
	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			vox.Debugf("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				vox.Errorf("Unable to sync badger @ %s: %v\n", db.directory, err)
			}
		}
	}
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config storage.StoreConfig) (*BadgerDB, error) {
	path, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		vox.Infof("Database not already at path (%s). Creating directory...\n", path)
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %v", path, err)
		}
	}

	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(1).
		WithSyncWrites(DefaultSyncWrites).
		WithLoggingLevel(badger.WARNING)

	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	db := &BadgerDB{
		directory:  path,
		config:     config,
		bdp:        bdp,
		stopSyncCh: make(chan struct{}),
	}
	go syncPeriodically(db)
	return db, nil
}

// ---- TestableEngine interface implementation -------

// TestConfig returns the configuration of a new badger store in the temp directory.
func (e Engine) TestConfig() storage.StoreConfig {
	return storage.StoreConfig{
		Engine:  e.name,
		Path:    fmt.Sprintf("voxcoarsen-test-badger-%x", uuid.NewV4().Bytes()),
		Testing: true,
	}
}

// Delete implements the TestableEngine interface by providing a way to dispose
// of testing databases.
func (e Engine) Delete(config storage.StoreConfig) error {
	path, err := parseConfig(config)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("can't delete old datastore %q: %v", path, err)
		}
	}
	return nil
}

// --- The BadgerDB Implementation must satisfy a storage.Store interface ----

type BadgerDB struct {
	// Directory of datastore
	directory string

	// Config at time of Open()
	config storage.StoreConfig

	bdp *badger.DB

	closeOnce  sync.Once
	stopSyncCh chan struct{}
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Get returns a value given a key.
func (db *BadgerDB) Get(key []byte) ([]byte, bool, error) {
	if db == nil || db.bdp == nil {
		return nil, false, fmt.Errorf("can't call Get on closed or nil BadgerDB")
	}
	var value []byte
	var found bool
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, found, err
}

// Put writes a value with given key.
func (db *BadgerDB) Put(key, value []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed or nil BadgerDB")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Close closes the BadgerDB.
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	var err error
	db.closeOnce.Do(func() {
		close(db.stopSyncCh)
		err = db.bdp.Close()
		vox.Infof("Closed Badger DB @ %s\n", db.directory)
	})
	return err
}
