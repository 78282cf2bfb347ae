package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// ProposalStorage persists generated proposals keyed by posting URL.
type ProposalStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProposalStorage creates a proposal storage instance.
func NewProposalStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProposalStorage {
	return &ProposalStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProposalStorage) Insert(ctx context.Context, proposal *models.Proposal) error {
	if proposal.JobURL == "" {
		return fmt.Errorf("proposal job URL is required")
	}

	if err := s.db.Store().Upsert(proposal.JobURL, *proposal); err != nil {
		return fmt.Errorf("failed to store proposal: %w", err)
	}

	s.logger.Info().
		Str("job_url", proposal.JobURL).
		Str("job_type", string(proposal.JobType)).
		Msg("Proposal stored")
	return nil
}

func (s *ProposalStorage) GetByURL(ctx context.Context, jobURL string) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := s.db.Store().Get(jobURL, &proposal); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return &proposal, nil
}

func (s *ProposalStorage) MarkApplied(ctx context.Context, jobURL string, approvedBy string) error {
	var proposal models.Proposal
	if err := s.db.Store().Get(jobURL, &proposal); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.ErrProposalNotFound
		}
		return fmt.Errorf("failed to get proposal: %w", err)
	}

	proposal.Applied = true
	proposal.ApprovedBy = approvedBy
	if err := s.db.Store().Update(jobURL, proposal); err != nil {
		return fmt.Errorf("failed to mark proposal applied: %w", err)
	}

	s.logger.Info().
		Str("job_url", jobURL).
		Str("approved_by", approvedBy).
		Msg("Proposal marked applied")
	return nil
}

func (s *ProposalStorage) List(ctx context.Context, limit int) ([]*models.Proposal, error) {
	var proposals []models.Proposal
	if err := s.db.Store().Find(&proposals, nil); err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].CreatedAt.After(proposals[j].CreatedAt)
	})
	if limit > 0 && limit < len(proposals) {
		proposals = proposals[:limit]
	}

	result := make([]*models.Proposal, len(proposals))
	for i := range proposals {
		result[i] = &proposals[i]
	}
	return result, nil
}
