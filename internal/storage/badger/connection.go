package badger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/appello-dev/appello/internal/common"
)

// gcInterval is how often the value log garbage collector runs.
const gcInterval = 5 * time.Minute

// BadgerDB manages the Badger database connection. Badger's directory
// lock guarantees a single process owns the store, so cross-process
// mutual exclusion on tasks comes for free.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.StorageConfig
	gcStop chan struct{}
}

// NewBadgerDB opens (and optionally resets) the Badger database.
func NewBadgerDB(logger arbor.ILogger, config *common.StorageConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Use arbor instead of the default badger logger

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	db := &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
		gcStop: make(chan struct{}),
	}
	go db.runGC()

	return db, nil
}

// runGC periodically reclaims value log space. Badger never does this on
// its own; without it the store only grows.
func (db *BadgerDB) runGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-db.gcStop:
			return
		case <-ticker.C:
			err := db.store.Badger().RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				db.logger.Warn().Err(err).Msg("Value log GC failed")
			}
		}
	}
}

// Store returns the underlying badgerhold store.
func (db *BadgerDB) Store() *badgerhold.Store {
	return db.store
}

// Close stops the GC loop and closes the database connection.
func (db *BadgerDB) Close() error {
	if db.gcStop != nil {
		close(db.gcStop)
	}
	if db.store == nil {
		return nil
	}
	return db.store.Close()
}
