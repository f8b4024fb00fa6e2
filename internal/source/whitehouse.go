package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shawcc/trumpsword/internal/domain"
)

// DefaultWhiteHouseURL is the presidential actions index.
const DefaultWhiteHouseURL = "https://www.whitehouse.gov/presidential-actions/"

// WhiteHouse scrapes the presidential actions listing. Older entries live
// under "<base>page/<n>/".
type WhiteHouse struct {
	BaseURL string
	Fetcher *Fetcher
	Policy  CrawlPolicy
}

// NewWhiteHouse creates the adapter. An empty baseURL uses DefaultWhiteHouseURL.
func NewWhiteHouse(baseURL string, f *Fetcher, policy CrawlPolicy) *WhiteHouse {
	if baseURL == "" {
		baseURL = DefaultWhiteHouseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &WhiteHouse{BaseURL: baseURL, Fetcher: f, Policy: policy}
}

func (w *WhiteHouse) Name() domain.Source { return domain.SourceWhiteHouse }

func (w *WhiteHouse) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	return w.page(ctx, 1)
}

// FetchHistorical walks listing pages newest first until a page has no
// entries, every entry on a page predates cutoff, or the page cap is hit.
// A failure after the first page ends the crawl with what was collected.
func (w *WhiteHouse) FetchHistorical(ctx context.Context, cutoff time.Time) ([]domain.RawItem, error) {
	var all []domain.RawItem
	for n := 1; n <= w.Policy.pages(); n++ {
		if n > 1 {
			if err := w.Policy.pause(ctx); err != nil {
				break
			}
		}
		items, err := w.page(ctx, n)
		if err != nil {
			if n == 1 {
				return nil, err
			}
			break
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if allBefore(items, cutoff) {
			break
		}
	}
	return since(all, cutoff), nil
}

func (w *WhiteHouse) pageURL(n int) string {
	if n <= 1 {
		return w.BaseURL
	}
	return fmt.Sprintf("%spage/%d/", w.BaseURL, n)
}

func (w *WhiteHouse) page(ctx context.Context, n int) ([]domain.RawItem, error) {
	pageURL := w.pageURL(n)
	body, err := w.Fetcher.Get(ctx, pageURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	return ParseWhiteHouseListing(body, pageURL)
}

// ParseWhiteHouseListing extracts actions from one listing page. Relative
// links are resolved against pageURL.
func ParseWhiteHouseListing(body []byte, pageURL string) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse white house listing: %w", err)
	}
	base, _ := url.Parse(pageURL)

	entries := doc.Find(".post")
	if entries.Length() == 0 {
		entries = doc.Find("article")
	}

	items := make([]domain.RawItem, 0, entries.Length())
	entries.Each(func(_ int, s *goquery.Selection) {
		heading := s.Find("h2").First()
		title := strings.TrimSpace(heading.Text())
		href, ok := heading.Find("a").Attr("href")
		if !ok {
			href, ok = s.Find("a").First().Attr("href")
		}
		if title == "" || !ok {
			return
		}
		link := href
		if base != nil {
			if ref, err := base.Parse(href); err == nil {
				link = ref.String()
			}
		}

		date, _ := s.Find("time").Attr("datetime")
		if date == "" {
			date = strings.TrimSpace(s.Find(".entry-date, .posted-on").First().Text())
		}

		items = append(items, domain.RawItem{
			Source:  domain.SourceWhiteHouse,
			Key:     domain.Key{URL: link},
			Title:   title,
			Summary: strings.TrimSpace(s.Find("p").First().Text()),
			Date:    parseDate(date),
			Action:  &domain.ActionPayload{Category: actionCategory(link, title)},
		})
	})
	return items, nil
}

// actionCategory guesses the action kind from its URL slug or title.
func actionCategory(link, title string) string {
	text := strings.ToLower(link + " " + title)
	switch {
	case strings.Contains(text, "executive-order"), strings.Contains(text, "executive order"):
		return "executive-order"
	case strings.Contains(text, "proclamation"):
		return "proclamation"
	case strings.Contains(text, "memorandum"):
		return "memorandum"
	case strings.Contains(text, "nominat"):
		return "nomination"
	}
	return ""
}

func allBefore(items []domain.RawItem, cutoff time.Time) bool {
	for _, it := range items {
		if it.Date.IsZero() || !it.Date.Before(cutoff) {
			return false
		}
	}
	return true
}
