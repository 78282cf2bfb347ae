package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/models"
)

func verifiedDetail() *models.PostingDetail {
	return &models.PostingDetail{
		PaymentVerified: true,
		Qualified:       true,
		Summary:         "Build a data pipeline with nightly loads.",
		Skills:          []string{"Python", "PostgreSQL"},
	}
}

func TestFilterDefaultsAllowEverything(t *testing.T) {
	f := New(common.FilterConfig{}, arbor.NewLogger())
	assert.True(t, f.IsAllowed(&models.PostingDetail{}))
}

func TestFilterPaymentVerification(t *testing.T) {
	f := New(common.FilterConfig{RequirePaymentVerified: true}, arbor.NewLogger())

	assert.True(t, f.IsAllowed(verifiedDetail()))

	unverified := verifiedDetail()
	unverified.PaymentVerified = false
	assert.False(t, f.IsAllowed(unverified))
}

func TestFilterQualification(t *testing.T) {
	f := New(common.FilterConfig{RequireQualified: true}, arbor.NewLogger())

	unqualified := verifiedDetail()
	unqualified.Qualified = false
	assert.False(t, f.IsAllowed(unqualified))
}

func TestFilterBlockedKeywords(t *testing.T) {
	f := New(common.FilterConfig{BlockedKeywords: []string{"crypto", "NFT"}}, arbor.NewLogger())

	assert.True(t, f.IsAllowed(verifiedDetail()))

	blocked := verifiedDetail()
	blocked.Summary = "Launch our NFT marketplace."
	assert.False(t, f.IsAllowed(blocked))
}

func TestFilterRequiredSkills(t *testing.T) {
	f := New(common.FilterConfig{RequiredSkills: []string{"python", "Go"}}, arbor.NewLogger())

	assert.True(t, f.IsAllowed(verifiedDetail()))

	unrelated := verifiedDetail()
	unrelated.Skills = []string{"Photoshop"}
	assert.False(t, f.IsAllowed(unrelated))
}
