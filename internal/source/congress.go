package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shawcc/trumpsword/internal/domain"
)

// DefaultCongressFeed lists the most recently updated bills.
const DefaultCongressFeed = "https://www.congress.gov/rss/bill/most-recent-bills.xml"

const congressLimit = 20

// billTitle matches "H.R. 123 - ..." and "S. 45 ..." style titles.
var billTitle = regexp.MustCompile(`(?i)^\s*((?:H|S)\.?\s?(?:J\.?\s?|Con\.?\s?)?(?:R\.?|Res\.?)?)\s*(\d+)`)

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// Congress reads the congress.gov bill RSS feed.
//
// The feed only carries recent bills, so a historical fetch is the same
// single page filtered by date.
type Congress struct {
	FeedURL string
	Fetcher *Fetcher
	Limit   int
}

// NewCongress creates the adapter. An empty feedURL uses DefaultCongressFeed.
func NewCongress(feedURL string, f *Fetcher) *Congress {
	if feedURL == "" {
		feedURL = DefaultCongressFeed
	}
	return &Congress{FeedURL: feedURL, Fetcher: f, Limit: congressLimit}
}

func (c *Congress) Name() domain.Source { return domain.SourceCongress }

func (c *Congress) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	items, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	if c.Limit > 0 && len(items) > c.Limit {
		items = items[:c.Limit]
	}
	return items, nil
}

func (c *Congress) FetchHistorical(ctx context.Context, cutoff time.Time) ([]domain.RawItem, error) {
	items, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	return since(items, cutoff), nil
}

func (c *Congress) read(ctx context.Context) ([]domain.RawItem, error) {
	body, err := c.Fetcher.Get(ctx, c.FeedURL, "application/rss+xml, application/xml, text/xml, */*")
	if err != nil {
		return nil, err
	}
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse congress feed: %w", err)
	}

	items := make([]domain.RawItem, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		items = append(items, billItem(it))
	}
	return items, nil
}

func billItem(it rssItem) domain.RawItem {
	title := strings.TrimSpace(it.Title)
	chamber, number := ParseBillNumber(title)
	link := strings.TrimSpace(it.Link)
	if link == "" {
		link = strings.TrimSpace(it.GUID)
	}
	return domain.RawItem{
		Source:   domain.SourceCongress,
		Key:      domain.Key{BillNumber: number, URL: link},
		Title:    title,
		Summary:  strings.TrimSpace(it.Description),
		Date:     parseDate(strings.TrimSpace(it.PubDate)),
		TypeHint: domain.TypeLegislative,
		Bill: &domain.BillPayload{
			Chamber:    chamber,
			Number:     number,
			UpdateDate: strings.TrimSpace(it.PubDate),
		},
	}
}

// ParseBillNumber extracts the chamber designation and number from a bill
// title such as "H.R. 1234 - To improve the economy". Both are "" when the
// title does not start with a designation.
func ParseBillNumber(title string) (chamber, number string) {
	m := billTitle.FindStringSubmatch(title)
	if m == nil {
		return "", ""
	}
	return strings.ReplaceAll(m[1], " ", ""), m[2]
}
