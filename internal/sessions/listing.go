package sessions

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/appello-dev/appello/internal/models"
)

// errPrivatePosting marks a posting page that hides client details. The
// walk skips these and keeps going; every other parse failure on a
// posting page is also a skip, but a missing tile link is a structural
// break and fails the whole session.
var errPrivatePosting = errors.New("private posting or structure changed")

// listingTile is one entry parsed from a listing or feed snapshot, in
// page order (newest first).
type listingTile struct {
	UID         int64
	URL         string
	Title       string
	PostedLabel string
}

var leadingNumber = regexp.MustCompile(`^\d+\.\s*`)

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// parseListingTiles extracts the job tiles from a category listing
// snapshot. Relative tile links are prefixed with baseURL. A tile
// without a link means the page structure changed; nothing downstream
// can be trusted, so that is an error rather than a skip.
func parseListingTiles(html, baseURL string) ([]listingTile, error) {
	return parseTiles(html, baseURL, selJobTile, selTileLink, attrTileUID, selTilePosted)
}

// parseFeedTiles extracts the job tiles from the logged-in landing feed,
// which uses its own markup.
func parseFeedTiles(html, baseURL string) ([]listingTile, error) {
	return parseTiles(html, baseURL, selFeedTile, selFeedLink, attrFeedUID, selFeedPosted)
}

func parseTiles(html, baseURL, tileSel, linkSel, uidAttr, postedSel string) ([]listingTile, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing snapshot: %w", err)
	}

	var tiles []listingTile
	var parseErr error
	doc.Find(tileSel).EachWithBreak(func(i int, tile *goquery.Selection) bool {
		link := tile.Find(linkSel).First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			parseErr = fmt.Errorf("tile %d has no link, site structure may have changed", i)
			return false
		}

		uid := int64(0)
		if raw, ok := link.Attr(uidAttr); ok {
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
				uid = parsed
			}
		}

		var posted []string
		tile.Find(postedSel).Each(func(_ int, span *goquery.Selection) {
			posted = append(posted, strings.TrimSpace(span.Text()))
		})

		tiles = append(tiles, listingTile{
			UID:         uid,
			URL:         baseURL + href,
			Title:       strings.TrimSpace(link.Text()),
			PostedLabel: strings.Join(posted, " "),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return tiles, nil
}

// isFresh reports whether a recency label still carries second or minute
// granularity. Anything coarser means the walk has reached postings old
// enough to have been seen by a previous run.
func isFresh(postedLabel string) bool {
	for _, token := range strings.Fields(strings.ToLower(postedLabel)) {
		switch token {
		case "second", "seconds", "minute", "minutes":
			return true
		}
	}
	return false
}

// parsePostingDetail extracts the structured description from a posting
// page snapshot. A missing client location is the private-posting
// signal and returns errPrivatePosting.
func parsePostingDetail(html string) (string, *models.PostingDetail, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse posting snapshot: %w", err)
	}

	title := strings.TrimSpace(doc.Find(selDetailTitle).First().Text())

	detail := &models.PostingDetail{}
	detail.ClientLocation = strings.TrimSpace(doc.Find(selClientLocation).First().Text())
	if detail.ClientLocation == "" {
		return title, nil, errPrivatePosting
	}

	detail.HireRate = strings.TrimSpace(doc.Find(selClientStats).First().Text())
	detail.TotalSpent = strings.TrimSpace(doc.Find(selClientSpend).First().Text())
	detail.MemberSince = strings.TrimSpace(doc.Find(selClientSince).First().Text())
	detail.PaymentVerified = doc.Find(selPaymentVerified).Length() > 0

	detail.Summary = convertSummary(doc)

	if duration := doc.Find(selDurationType).First(); duration.Length() > 0 {
		if kind, ok := duration.Attr("data-cy"); ok {
			detail.DurationType = strings.TrimSpace(kind)
		}
	}
	detail.Duration = strings.TrimSpace(doc.Find(selDurationValue).First().Text())

	if fixed := doc.Find(selFixedPrice).First(); fixed.Length() > 0 {
		detail.Compensation = models.CompensationFixedPrice
		detail.Rate = strings.TrimSpace(fixed.Text())
	} else {
		detail.Compensation = models.CompensationHourly
		var rates []string
		doc.Find(selHourlyRate).Each(func(_ int, rate *goquery.Selection) {
			rates = append(rates, strings.TrimSpace(rate.Text()))
		})
		detail.Rate = strings.Join(rates, "-")
	}

	doc.Find(selSkills).Each(func(_ int, skill *goquery.Selection) {
		if text := strings.TrimSpace(skill.Text()); text != "" {
			detail.Skills = append(detail.Skills, text)
		}
	})

	detail.Qualified = true
	if doc.Find(selQualificationUL).Length() > 0 {
		doc.Find(selQualifications).EachWithBreak(func(_ int, qual *goquery.Selection) bool {
			if title, ok := qual.Attr("title"); ok && title == "You do not meet this qualification" {
				detail.Qualified = false
				return false
			}
			return true
		})
	}

	doc.Find(selQuestionItems).Each(func(i int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		detail.Questions = append(detail.Questions, fmt.Sprintf("%d. %s", i+1, text))
	})

	return title, detail, nil
}

// convertSummary renders the posting description paragraphs as markdown
// so formatting survives into the proposal prompt. Falls back to plain
// text when conversion fails.
func convertSummary(doc *goquery.Document) string {
	var parts []string
	converter := md.NewConverter("", true, nil)
	doc.Find(selDetailSummary).Each(func(_ int, paragraph *goquery.Selection) {
		raw, err := goquery.OuterHtml(paragraph)
		if err != nil {
			parts = append(parts, strings.TrimSpace(paragraph.Text()))
			return
		}
		converted, err := converter.ConvertString(raw)
		if err != nil {
			parts = append(parts, strings.TrimSpace(paragraph.Text()))
			return
		}
		parts = append(parts, strings.TrimSpace(converted))
	})
	return strings.Join(parts, "\n\n")
}

// stripQuestionNumber removes the stored "N. " numbering so questions
// match the plain text shown on the submission form.
func stripQuestionNumber(question string) string {
	return leadingNumber.ReplaceAllString(strings.TrimSpace(question), "")
}
