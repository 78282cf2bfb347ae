package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/models"
)

func testPosting(url string, uid int64) *models.JobPosting {
	return &models.JobPosting{
		URL:   url,
		UID:   uid,
		Title: "Build a data pipeline",
		Detail: models.PostingDetail{
			ClientLocation: "Berlin, Germany",
			Compensation:   models.CompensationHourly,
			Summary:        "ETL work on a warehouse",
		},
		GenerationStatus: models.GenerationPending,
		DiscoveredAt:     time.Now(),
	}
}

func TestPostingInsertIdempotent(t *testing.T) {
	db := newTestDB(t)
	storage := NewPostingStorage(db, arbor.NewLogger())
	ctx := context.Background()

	posting := testPosting("https://example.com/jobs/1", 101)
	require.NoError(t, storage.Insert(ctx, posting))

	// Same URL again: no-op success signalled by the sentinel.
	err := storage.Insert(ctx, testPosting("https://example.com/jobs/1", 101))
	assert.ErrorIs(t, err, models.ErrPostingExists)

	// Same UID under a different URL is also a duplicate.
	err = storage.Insert(ctx, testPosting("https://example.com/jobs/1-copy", 101))
	assert.ErrorIs(t, err, models.ErrPostingExists)

	postings, err := storage.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, postings, 1)
}

func TestPostingGenerationStatus(t *testing.T) {
	db := newTestDB(t)
	storage := NewPostingStorage(db, arbor.NewLogger())
	ctx := context.Background()

	posting := testPosting("https://example.com/jobs/2", 102)
	require.NoError(t, storage.Insert(ctx, posting))

	require.NoError(t, storage.SetGenerationStatus(ctx, posting.URL, models.GenerationApplied))

	stored, err := storage.GetByURL(ctx, posting.URL)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationApplied, stored.GenerationStatus)
	assert.Equal(t, int64(102), stored.UID)

	err = storage.SetGenerationStatus(ctx, "https://example.com/jobs/missing", models.GenerationApplied)
	assert.Error(t, err)
}

func TestProposalLifecycle(t *testing.T) {
	db := newTestDB(t)
	storage := NewProposalStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.GetByURL(ctx, "https://example.com/jobs/3")
	assert.ErrorIs(t, err, models.ErrProposalNotFound)

	proposal := &models.Proposal{
		JobURL:      "https://example.com/jobs/3",
		UID:         103,
		JobType:     models.CompensationHourly,
		Profile:     models.DefaultProfile,
		CoverLetter: "Hello, this project matches my background.",
		Answers: []models.QuestionAnswer{
			{Question: "What is your experience?", Answer: "Five years of pipeline work."},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, storage.Insert(ctx, proposal))

	require.NoError(t, storage.MarkApplied(ctx, proposal.JobURL, "reviewer@example.com"))

	stored, err := storage.GetByURL(ctx, proposal.JobURL)
	require.NoError(t, err)
	assert.True(t, stored.Applied)
	assert.Equal(t, "reviewer@example.com", stored.ApprovedBy)
	assert.Len(t, stored.Answers, 1)
}

func TestKVRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := storage.Get(ctx, "proposal_prompt")
	assert.Error(t, err)

	require.NoError(t, storage.Set(ctx, "proposal_prompt", "You are the freelancer."))
	value, err := storage.Get(ctx, "proposal_prompt")
	require.NoError(t, err)
	assert.Equal(t, "You are the freelancer.", value)

	require.NoError(t, storage.Set(ctx, "proposal_prompt", "Updated prompt."))
	value, err = storage.Get(ctx, "proposal_prompt")
	require.NoError(t, err)
	assert.Equal(t, "Updated prompt.", value)
}
