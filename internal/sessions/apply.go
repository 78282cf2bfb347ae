package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// ApplySession drives one approved proposal through the submission
// form. It fills everything the form asks for but the final submit
// stays with a human; the session's job ends at a completed form and
// the local bookkeeping.
type ApplySession struct {
	base
	proposals interfaces.ProposalStorage
	postings  interfaces.PostingStorage
}

// NewApplySession wires an apply session. Single use, one per task.
func NewApplySession(
	browser interfaces.BrowserSurface,
	proposals interfaces.ProposalStorage,
	postings interfaces.PostingStorage,
	site common.SiteConfig,
	browserCfg common.BrowserConfig,
	logger arbor.ILogger,
) *ApplySession {
	return &ApplySession{
		base: base{
			browser:   browser,
			site:      site,
			challenge: browserCfg.ChallengeSelector,
			delay:     browserCfg.ActionDelay,
			logger:    logger,
		},
		proposals: proposals,
		postings:  postings,
	}
}

// Run executes the application flow for one job URL. A withdrawn
// posting is a successful outcome: there is nothing left to apply to
// and retrying cannot change that.
func (s *ApplySession) Run(ctx context.Context, jobURL, approvedBy string) Outcome {
	defer s.parkHome(ctx)

	proposal, err := s.proposals.GetByURL(ctx, jobURL)
	if err != nil {
		if errors.Is(err, models.ErrProposalNotFound) {
			return failedOutcome("no proposal stored for %s", jobURL)
		}
		return failedOutcome("failed to load proposal: %v", err)
	}

	if err := s.login(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Apply login failed")
		return failedOutcome("login failed: %v", err)
	}

	withdrawn, err := s.reachBiddingPage(ctx, jobURL)
	if err != nil {
		return failedOutcome("failed to reach bidding page: %v", err)
	}
	if withdrawn {
		s.logger.Info().Str("job_url", jobURL).Msg("Posting no longer available")
		return doneOutcome("job no longer available")
	}

	if err := s.selectProfile(ctx, proposal.Profile); err != nil {
		return failedOutcome("profile selection failed: %v", err)
	}

	if proposal.JobType != models.CompensationFixedPrice {
		if err := s.fillForm(ctx, proposal); err != nil {
			return failedOutcome("failed to fill submission form: %v", err)
		}
	}

	if err := s.finalize(ctx, jobURL, approvedBy); err != nil {
		return failedOutcome("%v", err)
	}

	s.logger.Info().
		Str("job_url", jobURL).
		Str("profile", proposal.Profile).
		Msg("Application session completed")
	return doneOutcome("application prepared for %s", jobURL)
}

// reachBiddingPage opens the posting and clicks through to the
// submission form. A "no longer available" alert is reported as
// withdrawn rather than as an error.
func (s *ApplySession) reachBiddingPage(ctx context.Context, jobURL string) (withdrawn bool, err error) {
	err = s.browser.Navigate(ctx, jobURL, interfaces.NavigateOptions{
		WaitVisible:       selSubmitProposal,
		ChallengeSelector: s.challenge,
		Referer:           s.site.BaseURL,
	})
	if err != nil {
		if text, ok := s.browser.Text(ctx, selAlertContent); ok &&
			strings.Contains(strings.ToLower(text), "no longer available") {
			return true, nil
		}
		return false, err
	}

	if err := s.browser.Click(ctx, selSubmitProposal, interfaces.ClickOptions{ExpectNavigation: true}); err != nil {
		return false, fmt.Errorf("failed to open submission form: %w", err)
	}
	s.pause(ctx)
	return false, nil
}

// selectProfile switches the submission to a special profile. The
// dropdown being absent is tolerated: some postings only offer the
// general profile and the submission still goes through.
func (s *ApplySession) selectProfile(ctx context.Context, profile string) error {
	if profile == "" || profile == models.DefaultProfile {
		return nil
	}
	if !s.browser.Exists(ctx, selProfileDropdown) {
		s.logger.Warn().Str("profile", profile).Msg("Profile dropdown not found, continuing with default")
		return nil
	}

	if err := s.browser.Click(ctx, selDropdownToggle, interfaces.ClickOptions{WaitVisible: selDropdownMenu}); err != nil {
		return fmt.Errorf("failed to open profile dropdown: %w", err)
	}
	s.pause(ctx)

	html, err := s.browser.HTML(ctx, selDropdownMenu)
	if err != nil {
		return fmt.Errorf("failed to snapshot profile dropdown: %w", err)
	}
	index, err := findProfileOption(html, profile)
	if err != nil {
		return err
	}

	optionSelector := fmt.Sprintf("%s li[role=\"option\"]:nth-of-type(%d)", selDropdownMenu, index+1)
	if err := s.browser.Click(ctx, optionSelector, interfaces.ClickOptions{}); err != nil {
		return fmt.Errorf("failed to pick profile option: %w", err)
	}
	s.pause(ctx)

	if selected, ok := s.browser.Text(ctx, selDropdownTitle); ok {
		if strings.TrimSpace(selected) != profile {
			return fmt.Errorf("profile selection did not stick, wanted %q got %q", profile, strings.TrimSpace(selected))
		}
	}
	return nil
}

// findProfileOption locates the dropdown option matching the profile
// name and returns its position among the options.
func findProfileOption(html, profile string) (int, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return 0, fmt.Errorf("failed to parse profile dropdown: %w", err)
	}

	index := -1
	doc.Find(`li[role="option"]`).EachWithBreak(func(i int, option *goquery.Selection) bool {
		text := strings.TrimSpace(option.Find("span.air3-menu-item-text > span").Text())
		if text == profile {
			index = i
			return false
		}
		return true
	})
	if index < 0 {
		return 0, fmt.Errorf("profile %q not offered in dropdown", profile)
	}
	return index, nil
}

// fillForm fills the cover letter and every question the form asks.
// Questions are matched by exact text against the stored answers after
// stripping the stored numbering; a question with no stored answer
// fails the session rather than submitting a blank.
func (s *ApplySession) fillForm(ctx context.Context, proposal *models.Proposal) error {
	if err := s.browser.SetValue(ctx, selCoverLetter, proposal.CoverLetter); err != nil {
		return fmt.Errorf("failed to fill cover letter: %w", err)
	}
	s.pause(ctx)

	answers := make(map[string]string, len(proposal.Answers))
	for _, qa := range proposal.Answers {
		answers[stripQuestionNumber(qa.Question)] = strings.TrimSpace(qa.Answer)
	}
	if len(answers) == 0 {
		return nil
	}

	html, err := s.browser.HTML(ctx, selQuestionContainer)
	if err != nil {
		// The form has no question blocks; nothing to fill.
		s.logger.Debug().Err(err).Msg("No question blocks on submission form")
		return nil
	}
	questions, err := parseFormQuestions(html)
	if err != nil {
		return err
	}

	for i, question := range questions {
		answer, ok := answers[question]
		if !ok {
			return fmt.Errorf("no stored answer for question %q", question)
		}
		textareaSelector := fmt.Sprintf("%s > div:nth-of-type(%d) textarea", selQuestionContainer, i+1)
		if err := s.browser.SetValue(ctx, textareaSelector, answer); err != nil {
			return fmt.Errorf("failed to fill answer %d: %w", i+1, err)
		}
		s.pause(ctx)
	}
	return nil
}

// parseFormQuestions returns the question labels in form order.
func parseFormQuestions(html string) ([]string, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse question blocks: %w", err)
	}

	var questions []string
	doc.Find("label.label").Each(func(_ int, label *goquery.Selection) {
		questions = append(questions, strings.TrimSpace(label.Text()))
	})
	return questions, nil
}

// finalize records the submission locally: the proposal flips to
// applied and the posting's generation status advances. The external
// form is already filled at this point, so a failure here leaves the
// two sides inconsistent; it is reported as a failure and logged loudly
// instead of being papered over.
func (s *ApplySession) finalize(ctx context.Context, jobURL, approvedBy string) error {
	if err := s.proposals.MarkApplied(ctx, jobURL, approvedBy); err != nil {
		s.logger.Error().Err(err).
			Str("job_url", jobURL).
			Msg("Submission prepared but proposal record not updated, state is inconsistent")
		return fmt.Errorf("failed to record application: %w", err)
	}
	if err := s.postings.SetGenerationStatus(ctx, jobURL, models.GenerationApplied); err != nil {
		s.logger.Error().Err(err).
			Str("job_url", jobURL).
			Msg("Submission prepared but posting status not updated, state is inconsistent")
		return fmt.Errorf("failed to advance posting status: %w", err)
	}
	return nil
}
