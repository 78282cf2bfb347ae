package interfaces

import "context"

// NavigateOptions tunes a navigation step.
type NavigateOptions struct {
	// WaitVisible blocks until the selector is visible after load.
	WaitVisible string
	// ChallengeSelector, when non-empty, is checked after navigation;
	// if present the surface waits for the challenge to clear.
	ChallengeSelector string
	// Referer is sent with the navigation request.
	Referer string
}

// ClickOptions tunes a click step.
type ClickOptions struct {
	// WaitVisible blocks until the selector is visible after the click.
	WaitVisible string
	// ExpectNavigation waits for a page load event after the click.
	ExpectNavigation bool
}

// BrowserSurface is the capability interface the sessions drive. All
// operations are fallible and must return errors rather than panic;
// every call is bounded by its context so a hang in one step cannot
// stall the worker loop.
type BrowserSurface interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	Click(ctx context.Context, selector string, opts ClickOptions) error

	// Text returns the text content of the first match; ok is false
	// when the selector matched nothing.
	Text(ctx context.Context, selector string) (text string, ok bool)
	Attribute(ctx context.Context, selector, name string) (value string, ok bool)
	Exists(ctx context.Context, selector string) bool

	// HTML returns the outer HTML of the first match, for callers that
	// parse a snapshot instead of round-tripping per element.
	HTML(ctx context.Context, selector string) (string, error)

	// SetValue fills a form control with the given text.
	SetValue(ctx context.Context, selector, text string) error

	// FillAndSubmit fills a form control and submits it (enter key).
	FillAndSubmit(ctx context.Context, selector, text string) error

	// SolveChallengeIfPresent waits out an anti-bot challenge if one is
	// currently displayed.
	SolveChallengeIfPresent(ctx context.Context) error

	// NavigateHome parks the browser on a neutral page between sessions.
	NavigateHome(ctx context.Context) error
}
