package models

import (
	"errors"
	"time"
)

// ErrPostingExists is the idempotent-insert outcome: the posting was
// already stored by a previous run. Callers treat it as success.
var ErrPostingExists = errors.New("posting already exists")

// Generation status labels for a posting's proposal pipeline. Free-form
// by design; these are the values the system itself writes.
const (
	GenerationPending    = "pending"
	GenerationProcessing = "processing"
	GenerationGenerated  = "generated"
	GenerationFailed     = "failed"
	GenerationApplied    = "applied"
)

// CompensationType distinguishes the two submission flows.
type CompensationType string

const (
	CompensationHourly     CompensationType = "Hourly"
	CompensationFixedPrice CompensationType = "Fixed Price"
)

// PostingDetail is the structured description extracted from a posting
// page. Fields the page did not expose are left empty.
type PostingDetail struct {
	ClientLocation  string           `json:"client_location"`
	HireRate        string           `json:"hire_rate"`
	TotalSpent      string           `json:"total_spent"`
	MemberSince     string           `json:"member_since"`
	PaymentVerified bool             `json:"payment_verified"`
	Summary         string           `json:"summary"`
	DurationType    string           `json:"duration_type"`
	Duration        string           `json:"duration"`
	Compensation    CompensationType `json:"job_type"`
	Rate            string           `json:"rate"`
	Skills          []string         `json:"skills"`
	Qualified       bool             `json:"qualified"`
	Questions       []string         `json:"questions"`
}

// JobPosting is one discovered unit of external content. URL is the
// badgerhold key; UID is the site's numeric identity. Both are unique.
type JobPosting struct {
	URL              string        `json:"job_url" badgerhold:"key"`
	UID              int64         `json:"job_uuid" badgerhold:"index"`
	Title            string        `json:"job_title"`
	Detail           PostingDetail `json:"job_description"`
	GenerationStatus string        `json:"proposal_generation_status" badgerhold:"index"`
	DiscoveredAt     time.Time     `json:"discovered_at"`
}
