package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
)

// CursorStore persists the per-category discovery cursor (the UID of the
// newest tile seen on the last successful run) across restarts. A missing
// or unreadable file starts every category from scratch, which only costs
// a longer first walk.
type CursorStore struct {
	path    string
	logger  arbor.ILogger
	mu      sync.Mutex
	cursors map[string]int64
}

// NewCursorStore loads cursors from the given TOML file. The file not
// existing yet is not an error.
func NewCursorStore(path string, logger arbor.ILogger) *CursorStore {
	store := &CursorStore{
		path:    path,
		logger:  logger,
		cursors: make(map[string]int64),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to read cursor file, starting empty")
		}
		return store
	}
	if err := toml.Unmarshal(data, &store.cursors); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to parse cursor file, starting empty")
		store.cursors = make(map[string]int64)
	}
	return store
}

// Get returns the stored cursor for a category.
func (s *CursorStore) Get(category string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor, ok := s.cursors[category]
	return cursor, ok
}

// Save merges the given updates into the stored cursors and rewrites the
// file. Categories not present in updates keep their previous cursor, so
// a run that only visited some categories does not lose the others.
func (s *CursorStore) Save(updates map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for category, cursor := range updates {
		s.cursors[category] = cursor
	}

	data, err := toml.Marshal(s.cursors)
	if err != nil {
		return fmt.Errorf("failed to encode cursors: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cursor directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cursor file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace cursor file: %w", err)
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("categories", len(s.cursors)).
		Msg("Discovery cursors saved")
	return nil
}
