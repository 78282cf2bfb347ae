package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/appello-dev/appello/internal/interfaces"
)

// kvRecord is the stored shape of one key/value setting.
type kvRecord struct {
	Key   string `badgerhold:"key"`
	Value string
}

// KVStorage holds small mutable settings such as the active proposal
// prompt.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a key/value storage instance.
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var record kvRecord
	if err := s.db.Store().Get(key, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", fmt.Errorf("key not found: %s", key)
		}
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return record.Value, nil
}

func (s *KVStorage) Set(ctx context.Context, key, value string) error {
	record := kvRecord{Key: key, Value: value}
	if err := s.db.Store().Upsert(key, record); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("KV entry updated")
	return nil
}
