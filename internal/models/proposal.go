package models

import (
	"errors"
	"time"
)

// ErrProposalNotFound is returned when no proposal exists for a posting.
var ErrProposalNotFound = errors.New("proposal not found")

// DefaultProfile is the account's standard specialization; anything
// else requires the profile-selection step during submission.
const DefaultProfile = "general_profile"

// QuestionAnswer pairs one screening question with its generated answer.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Proposal is generated submission content tied 1:1 to a JobPosting.
// Created by the proposal generator, read by the apply session before
// submission, and mutated by it after a successful submission.
type Proposal struct {
	JobURL      string           `json:"job_url" badgerhold:"key"`
	UID         int64            `json:"job_uuid" badgerhold:"index"`
	JobType     CompensationType `json:"job_type"`
	Profile     string           `json:"profile"`
	CoverLetter string           `json:"cover_letter"`
	Answers     []QuestionAnswer `json:"questions_and_answers"`
	Applied     bool             `json:"applied"`
	ApprovedBy  string           `json:"approved_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
