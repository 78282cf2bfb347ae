package interfaces

import (
	"context"

	"github.com/appello-dev/appello/internal/models"
)

// PostingFilter decides whether a discovered posting is worth storing.
// Implementations must be pure predicates with no side effects.
type PostingFilter interface {
	IsAllowed(detail *models.PostingDetail) bool
}

// ProposalGenerator turns a stored posting into submission content.
// The apply session never invokes this directly; it only reads the
// stored result.
type ProposalGenerator interface {
	Generate(ctx context.Context, jobURL string) (*models.Proposal, error)
}
