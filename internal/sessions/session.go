package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// Outcome is a session's terminal result, mapped onto the task's final
// status by the handler that ran it.
type Outcome struct {
	Status  models.TaskStatus
	Message string
}

func doneOutcome(format string, args ...interface{}) Outcome {
	return Outcome{Status: models.TaskStatusDone, Message: fmt.Sprintf(format, args...)}
}

func failedOutcome(format string, args ...interface{}) Outcome {
	return Outcome{Status: models.TaskStatusFailed, Message: fmt.Sprintf(format, args...)}
}

// base carries what every browser session needs: the surface, the site
// endpoints and credentials, and pacing between actions.
type base struct {
	browser   interfaces.BrowserSurface
	site      common.SiteConfig
	challenge string
	delay     time.Duration
	logger    arbor.ILogger
}

// pause sleeps the configured action delay, honoring cancellation. The
// remote site tolerates slow humans better than fast machines.
func (b *base) pause(ctx context.Context) {
	if b.delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(b.delay):
	}
}

// parkHome moves the browser to a neutral page so a session never leaves
// the site's pages open between tasks. Best effort.
func (b *base) parkHome(ctx context.Context) {
	if err := b.browser.NavigateHome(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to park browser on home page")
	}
}

// login drives the account login flow. A session that finds the sidebar
// profile with the expected account is already authenticated and returns
// immediately; a different account is logged out first. The security
// answer step only runs when the site asks for it.
func (b *base) login(ctx context.Context) error {
	err := b.browser.Navigate(ctx, b.site.LoginURL, interfaces.NavigateOptions{
		ChallengeSelector: b.challenge,
		Referer:           b.site.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if b.browser.Exists(ctx, selSidebarProfile) {
		if b.isExpectedAccount(ctx) {
			b.logger.Debug().Msg("Already logged in")
			return nil
		}
		b.logger.Warn().Str("expected", b.site.ProfileName).Msg("Different account logged in, logging out")
		if err := b.logout(ctx); err != nil {
			return err
		}
	}

	if !b.browser.Exists(ctx, selLoginUsername) {
		return fmt.Errorf("login page not recognized, no username field")
	}
	b.pause(ctx)

	if err := b.browser.FillAndSubmit(ctx, selLoginUsername, b.site.Username); err != nil {
		return fmt.Errorf("failed to submit username: %w", err)
	}
	b.pause(ctx)

	if b.browser.Exists(ctx, selLoginRemember) {
		if err := b.browser.Click(ctx, selLoginRemember, interfaces.ClickOptions{}); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to tick remember-me, continuing")
		}
	}
	if err := b.browser.FillAndSubmit(ctx, selLoginPassword, b.site.Password); err != nil {
		return fmt.Errorf("failed to submit password: %w", err)
	}
	b.pause(ctx)

	if b.site.SecurityAnswer != "" && b.browser.Exists(ctx, selLoginAnswer) {
		if err := b.browser.FillAndSubmit(ctx, selLoginAnswer, b.site.SecurityAnswer); err != nil {
			return fmt.Errorf("failed to submit security answer: %w", err)
		}
		b.pause(ctx)
	}

	if !b.browser.Exists(ctx, selSidebarProfile) {
		return fmt.Errorf("login did not complete, sidebar profile not found")
	}
	return nil
}

// isExpectedAccount checks the logged-in profile title against the
// configured profile name. No configured name means any account passes.
func (b *base) isExpectedAccount(ctx context.Context) bool {
	if b.site.ProfileName == "" {
		return true
	}
	title, ok := b.browser.Text(ctx, selProfileTitle)
	if !ok {
		return true
	}
	return strings.Contains(title, b.site.ProfileName)
}

// logout signs the current account out through the account menu.
func (b *base) logout(ctx context.Context) error {
	if err := b.browser.Click(ctx, selAccountMenu, interfaces.ClickOptions{}); err != nil {
		return fmt.Errorf("failed to open account menu: %w", err)
	}
	b.pause(ctx)
	if err := b.browser.Click(ctx, selLogoutTrigger, interfaces.ClickOptions{ExpectNavigation: true}); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	b.pause(ctx)
	return nil
}
