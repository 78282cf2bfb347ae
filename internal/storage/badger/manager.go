package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
)

// Manager aggregates the badger-backed storage implementations behind
// one connection lifecycle.
type Manager struct {
	db        *BadgerDB
	tasks     interfaces.TaskStorage
	postings  interfaces.PostingStorage
	proposals interfaces.ProposalStorage
	kv        interfaces.KeyValueStorage
	logger    arbor.ILogger
}

// NewManager opens the database and wires up the storage backends.
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		tasks:     NewTaskStorage(db, logger),
		postings:  NewPostingStorage(db, logger),
		proposals: NewProposalStorage(db, logger),
		kv:        NewKVStorage(db, logger),
		logger:    logger,
	}, nil
}

func (m *Manager) TaskStorage() interfaces.TaskStorage         { return m.tasks }
func (m *Manager) PostingStorage() interfaces.PostingStorage   { return m.postings }
func (m *Manager) ProposalStorage() interfaces.ProposalStorage { return m.proposals }
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage { return m.kv }

// Close closes the underlying database.
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
