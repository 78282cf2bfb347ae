package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
)

// Surface drives a single persistent Chrome instance. One instance backs
// all sessions so cookies and the logged-in state survive between tasks;
// the dispatcher's sequential loop guarantees no two sessions touch it
// at once.
type Surface struct {
	config  common.BrowserConfig
	homeURL string
	logger  arbor.ILogger
	limiter *rate.Limiter

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewSurface launches the browser and verifies it responds. Callers own
// the returned surface and must Close it.
func NewSurface(config common.BrowserConfig, homeURL string, logger arbor.ILogger) (*Surface, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(config.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	startupCtx, startupCancel := context.WithTimeout(browserCtx, config.StepTimeout)
	defer startupCancel()
	if err := chromedp.Run(startupCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	limit := rate.Inf
	if config.ActionDelay > 0 {
		limit = rate.Every(config.ActionDelay)
	}

	logger.Info().
		Bool("headless", config.Headless).
		Dur("step_timeout", config.StepTimeout).
		Msg("Browser launched")

	return &Surface{
		config:        config,
		homeURL:       homeURL,
		logger:        logger,
		limiter:       rate.NewLimiter(limit, 1),
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Close shuts the browser down.
func (s *Surface) Close() {
	s.browserCancel()
	s.allocCancel()
	s.logger.Debug().Msg("Browser closed")
}

// run executes actions against the browser, paced by the rate limiter
// and bounded by both the step timeout and the caller's context.
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.config.StepTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *Surface) Navigate(ctx context.Context, url string, opts interfaces.NavigateOptions) error {
	actions := []chromedp.Action{network.Enable()}
	if opts.Referer != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{"Referer": opts.Referer}))
	}
	actions = append(actions, chromedp.Navigate(url))

	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if opts.ChallengeSelector != "" {
		if err := s.waitChallenge(ctx, opts.ChallengeSelector); err != nil {
			return err
		}
	}
	if opts.WaitVisible != "" {
		if err := s.run(ctx, chromedp.WaitVisible(opts.WaitVisible, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("selector %s never became visible on %s: %w", opts.WaitVisible, url, err)
		}
	}
	return nil
}

func (s *Surface) Click(ctx context.Context, selector string, opts interfaces.ClickOptions) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	if opts.ExpectNavigation {
		if err := s.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
			return fmt.Errorf("page never became ready after clicking %s: %w", selector, err)
		}
	}
	if opts.WaitVisible != "" {
		if err := s.run(ctx, chromedp.WaitVisible(opts.WaitVisible, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("selector %s never became visible after click: %w", opts.WaitVisible, err)
		}
	}
	return nil
}

func (s *Surface) Text(ctx context.Context, selector string) (string, bool) {
	if !s.Exists(ctx, selector) {
		return "", false
	}
	var text string
	if err := s.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		s.logger.Debug().Err(err).Str("selector", selector).Msg("Text extraction failed")
		return "", false
	}
	return strings.TrimSpace(text), true
}

func (s *Surface) Attribute(ctx context.Context, selector, name string) (string, bool) {
	var value string
	var ok bool
	if err := s.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", false
	}
	return value, ok
}

func (s *Surface) Exists(ctx context.Context, selector string) bool {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", strconv.Quote(selector))
	if err := s.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		s.logger.Debug().Err(err).Str("selector", selector).Msg("Existence check failed")
		return false
	}
	return found
}

func (s *Surface) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read html of %s: %w", selector, err)
	}
	return html, nil
}

// SetValue writes a form control's value directly and fires an input
// event so the page's framework notices the change. Direct assignment
// avoids per-keystroke typing on long cover letters.
func (s *Surface) SetValue(ctx context.Context, selector, text string) error {
	notify := fmt.Sprintf(
		"document.querySelector(%s).dispatchEvent(new Event('input', {bubbles: true}))",
		strconv.Quote(selector),
	)
	err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, text, chromedp.ByQuery),
		chromedp.Evaluate(notify, nil),
	)
	if err != nil {
		return fmt.Errorf("failed to set value of %s: %w", selector, err)
	}
	return nil
}

// FillAndSubmit types into a field and presses enter, the way the login
// form advances between steps.
func (s *Surface) FillAndSubmit(ctx context.Context, selector, text string) error {
	err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill and submit %s: %w", selector, err)
	}
	return nil
}

func (s *Surface) SolveChallengeIfPresent(ctx context.Context) error {
	if s.config.ChallengeSelector == "" {
		return nil
	}
	return s.waitChallenge(ctx, s.config.ChallengeSelector)
}

// waitChallenge polls until the anti-bot challenge disappears or the
// challenge timeout elapses. The challenge solves itself or a human
// intervenes; there is no automation to beat it.
func (s *Surface) waitChallenge(ctx context.Context, selector string) error {
	if !s.Exists(ctx, selector) {
		return nil
	}
	s.logger.Warn().Str("selector", selector).Msg("Challenge detected, waiting for it to clear")

	deadline := time.Now().Add(s.config.ChallengeTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
		if !s.Exists(ctx, selector) {
			s.logger.Info().Msg("Challenge cleared")
			return nil
		}
	}
	return fmt.Errorf("challenge did not clear within %s", s.config.ChallengeTimeout)
}

func (s *Surface) NavigateHome(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Navigate(s.homeURL)); err != nil {
		return fmt.Errorf("failed to navigate home: %w", err)
	}
	return nil
}
