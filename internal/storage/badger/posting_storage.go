package badger

import (
	"context"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// PostingStorage persists discovered postings keyed by canonical URL.
type PostingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPostingStorage creates a posting storage instance.
func NewPostingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PostingStorage {
	return &PostingStorage{
		db:     db,
		logger: logger,
	}
}

// Insert stores a new posting. A duplicate URL or external UID returns
// models.ErrPostingExists; discovery treats that as success, which is
// what makes repeated walks over a listing page idempotent.
func (s *PostingStorage) Insert(ctx context.Context, posting *models.JobPosting) error {
	if posting.URL == "" {
		return fmt.Errorf("posting URL is required")
	}

	// The UID check and the insert share one transaction so two callers
	// racing on the same posting cannot both pass the check.
	err := s.db.Store().Badger().Update(func(txn *badger.Txn) error {
		// UID uniqueness is checked separately because URL is the key.
		if posting.UID != 0 {
			count, err := s.db.Store().TxCount(txn, &models.JobPosting{}, badgerhold.Where("UID").Eq(posting.UID))
			if err != nil {
				return fmt.Errorf("failed to check posting uid: %w", err)
			}
			if count > 0 {
				return models.ErrPostingExists
			}
		}
		return s.db.Store().TxInsert(txn, posting.URL, *posting)
	})
	if err != nil {
		if err == badgerhold.ErrKeyExists || err == models.ErrPostingExists {
			return models.ErrPostingExists
		}
		return fmt.Errorf("failed to insert posting: %w", err)
	}

	s.logger.Info().
		Str("job_url", posting.URL).
		Int64("job_uid", posting.UID).
		Str("title", posting.Title).
		Msg("Posting stored")
	return nil
}

func (s *PostingStorage) GetByURL(ctx context.Context, jobURL string) (*models.JobPosting, error) {
	var posting models.JobPosting
	if err := s.db.Store().Get(jobURL, &posting); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("posting not found: %s", jobURL)
		}
		return nil, fmt.Errorf("failed to get posting: %w", err)
	}
	return &posting, nil
}

func (s *PostingStorage) SetGenerationStatus(ctx context.Context, jobURL string, status string) error {
	var posting models.JobPosting
	if err := s.db.Store().Get(jobURL, &posting); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("posting not found: %s", jobURL)
		}
		return fmt.Errorf("failed to get posting: %w", err)
	}

	posting.GenerationStatus = status
	if err := s.db.Store().Update(jobURL, posting); err != nil {
		return fmt.Errorf("failed to update generation status: %w", err)
	}

	s.logger.Debug().
		Str("job_url", jobURL).
		Str("generation_status", status).
		Msg("Posting generation status updated")
	return nil
}

func (s *PostingStorage) List(ctx context.Context, limit int) ([]*models.JobPosting, error) {
	var postings []models.JobPosting
	if err := s.db.Store().Find(&postings, nil); err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}

	sort.Slice(postings, func(i, j int) bool {
		return postings[i].DiscoveredAt.After(postings[j].DiscoveredAt)
	})
	if limit > 0 && limit < len(postings) {
		postings = postings[:limit]
	}

	result := make([]*models.JobPosting, len(postings))
	for i := range postings {
		result[i] = &postings[i]
	}
	return result, nil
}
