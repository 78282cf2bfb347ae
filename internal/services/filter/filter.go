package filter

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/models"
)

// Filter is a config-driven predicate applied to every posting before it
// is stored. Pure: no storage access, no side effects.
type Filter struct {
	config common.FilterConfig
	logger arbor.ILogger
}

func New(config common.FilterConfig, logger arbor.ILogger) *Filter {
	return &Filter{config: config, logger: logger}
}

// IsAllowed reports whether a posting passes every configured rule.
func (f *Filter) IsAllowed(detail *models.PostingDetail) bool {
	if f.config.RequirePaymentVerified && !detail.PaymentVerified {
		return false
	}
	if f.config.RequireQualified && !detail.Qualified {
		return false
	}

	summary := strings.ToLower(detail.Summary)
	for _, keyword := range f.config.BlockedKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(summary, strings.ToLower(keyword)) {
			return false
		}
	}

	if len(f.config.RequiredSkills) > 0 && !f.hasRequiredSkill(detail.Skills) {
		return false
	}
	return true
}

// hasRequiredSkill reports whether at least one of the required skills
// appears in the posting's skill tags.
func (f *Filter) hasRequiredSkill(skills []string) bool {
	tagged := make(map[string]bool, len(skills))
	for _, skill := range skills {
		tagged[strings.ToLower(strings.TrimSpace(skill))] = true
	}
	for _, required := range f.config.RequiredSkills {
		if tagged[strings.ToLower(strings.TrimSpace(required))] {
			return true
		}
	}
	return false
}
