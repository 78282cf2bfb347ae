package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/appello-dev/appello/internal/common"
	"github.com/appello-dev/appello/internal/interfaces"
	"github.com/appello-dev/appello/internal/models"
)

// feedCategory is the cursor bucket for the logged-in landing feed,
// which is walked alongside the configured category listings.
const feedCategory = "Best Match"

// DiscoverySession walks the configured category listings newest-first,
// visits each posting published since the previous run, and stores the
// ones that pass the filter. One session run backs one discover task.
type DiscoverySession struct {
	base
	postings interfaces.PostingStorage
	cursors  *CursorStore
	filter   interfaces.PostingFilter

	// sessionCursors collects the newest UID seen per category this run;
	// persisted only when the whole session succeeds.
	sessionCursors map[string]int64
	newCount       int
}

// NewDiscoverySession wires a discovery session. The session is single
// use; construct a fresh one per task.
func NewDiscoverySession(
	browser interfaces.BrowserSurface,
	postings interfaces.PostingStorage,
	cursors *CursorStore,
	filter interfaces.PostingFilter,
	site common.SiteConfig,
	browserCfg common.BrowserConfig,
	logger arbor.ILogger,
) *DiscoverySession {
	return &DiscoverySession{
		base: base{
			browser:   browser,
			site:      site,
			challenge: browserCfg.ChallengeSelector,
			delay:     browserCfg.ActionDelay,
			logger:    logger,
		},
		postings:       postings,
		cursors:        cursors,
		filter:         filter,
		sessionCursors: make(map[string]int64),
	}
}

// Run executes the full discovery walk. Postings stored before a later
// failure are retained; the cursor file is only rewritten when every
// category completed, so a failed run re-walks from the old cursors.
func (s *DiscoverySession) Run(ctx context.Context) Outcome {
	defer s.parkHome(ctx)

	startTime := time.Now()
	if err := s.login(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Discovery login failed")
		return failedOutcome("login failed: %v", err)
	}

	if err := s.walkFeed(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Feed walk failed")
		return failedOutcome("feed walk failed: %v", err)
	}

	categories := make([]string, 0, len(s.site.Categories))
	for category := range s.site.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		if err := s.walkCategory(ctx, category, s.site.Categories[category]); err != nil {
			s.logger.Error().Err(err).Str("category", category).Msg("Category walk failed")
			return failedOutcome("category %s failed: %v", category, err)
		}
		s.pause(ctx)
	}

	if err := s.cursors.Save(s.sessionCursors); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist discovery cursors")
		return failedOutcome("failed to persist cursors: %v", err)
	}

	s.logger.Info().
		Int("new_postings", s.newCount).
		Dur("duration", time.Since(startTime)).
		Msg("Discovery session completed")
	return doneOutcome("%d new postings discovered", s.newCount)
}

// walkFeed walks the logged-in landing feed when the best-match tab is
// present. An absent tab is tolerated; the category listings still run.
func (s *DiscoverySession) walkFeed(ctx context.Context) error {
	if !s.browser.Exists(ctx, selBestMatchTab) {
		s.logger.Warn().Msg("Best-match tab not found, skipping feed walk")
		return nil
	}
	if err := s.browser.Click(ctx, selBestMatchTab, interfaces.ClickOptions{}); err != nil {
		return fmt.Errorf("failed to open best-match feed: %w", err)
	}
	s.pause(ctx)

	html, err := s.browser.HTML(ctx, "html")
	if err != nil {
		return fmt.Errorf("failed to snapshot feed: %w", err)
	}
	tiles, err := parseFeedTiles(html, s.site.BaseURL)
	if err != nil {
		return err
	}
	return s.walkTiles(ctx, feedCategory, tiles)
}

func (s *DiscoverySession) walkCategory(ctx context.Context, category, url string) error {
	err := s.browser.Navigate(ctx, url, interfaces.NavigateOptions{
		WaitVisible:       selJobsList,
		ChallengeSelector: s.challenge,
		Referer:           s.site.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to open listing: %w", err)
	}

	html, err := s.browser.HTML(ctx, selJobsList)
	if err != nil {
		return fmt.Errorf("failed to snapshot listing: %w", err)
	}
	tiles, err := parseListingTiles(html, s.site.BaseURL)
	if err != nil {
		return err
	}
	return s.walkTiles(ctx, category, tiles)
}

// walkTiles visits each tile until one of the stop conditions fires:
// the tile UID matches the cursor from the previous run, or the recency
// label has aged past minute granularity. The first tile's UID becomes
// the category's next cursor either way.
func (s *DiscoverySession) walkTiles(ctx context.Context, category string, tiles []listingTile) error {
	prior, hasPrior := s.cursors.Get(category)

	for i, tile := range tiles {
		if i == 0 {
			s.sessionCursors[category] = tile.UID
		}

		if hasPrior && tile.UID == prior {
			s.logger.Debug().
				Str("category", category).
				Int64("uid", tile.UID).
				Msg("Reached previous cursor, stopping walk")
			break
		}
		if !isFresh(tile.PostedLabel) {
			s.logger.Debug().
				Str("category", category).
				Str("posted", tile.PostedLabel).
				Msg("Reached stale postings, stopping walk")
			break
		}

		if err := s.visitPosting(ctx, category, tile); err != nil {
			return err
		}
		s.pause(ctx)
	}
	return nil
}

// visitPosting opens one posting and stores it if it passes the filter.
// Per-item problems (private posting, flaky page, duplicate) are skips;
// only a storage write error is escalated.
func (s *DiscoverySession) visitPosting(ctx context.Context, category string, tile listingTile) error {
	err := s.browser.Navigate(ctx, tile.URL, interfaces.NavigateOptions{
		WaitVisible:       selClientLocation,
		ChallengeSelector: s.challenge,
		Referer:           s.site.BaseURL,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("url", tile.URL).Msg("Failed to open posting, skipping")
		return nil
	}

	html, err := s.browser.HTML(ctx, "html")
	if err != nil {
		s.logger.Warn().Err(err).Str("url", tile.URL).Msg("Failed to snapshot posting, skipping")
		return nil
	}

	title, detail, err := parsePostingDetail(html)
	if err != nil {
		if errors.Is(err, errPrivatePosting) {
			s.logger.Debug().Str("url", tile.URL).Msg("Private posting, skipping")
		} else {
			s.logger.Warn().Err(err).Str("url", tile.URL).Msg("Failed to extract posting, skipping")
		}
		return nil
	}

	if !s.filter.IsAllowed(detail) {
		s.logger.Debug().Str("category", category).Str("url", tile.URL).Msg("Posting rejected by filter")
		return nil
	}

	posting := &models.JobPosting{
		URL:              tile.URL,
		UID:              tile.UID,
		Title:            title,
		Detail:           *detail,
		GenerationStatus: models.GenerationPending,
		DiscoveredAt:     time.Now(),
	}
	if err := s.postings.Insert(ctx, posting); err != nil {
		if errors.Is(err, models.ErrPostingExists) {
			s.logger.Debug().Str("url", tile.URL).Msg("Posting already stored")
			return nil
		}
		return fmt.Errorf("failed to store posting %s: %w", tile.URL, err)
	}

	s.newCount++
	s.logger.Info().
		Str("category", category).
		Str("title", title).
		Int64("uid", tile.UID).
		Msg("New posting stored")
	return nil
}
