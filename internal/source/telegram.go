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

const (
	DefaultTelegramURL     = "https://t.me"
	DefaultTelegramChannel = "real_DonaldJTrump"
)

// Telegram scrapes the public web preview of a channel at
// "<base>/s/<channel>". Older messages are reached with ?before=<id>.
type Telegram struct {
	BaseURL string
	Channel string
	Fetcher *Fetcher
	Policy  CrawlPolicy
}

// NewTelegram creates the adapter. Empty baseURL and channel use the defaults.
func NewTelegram(baseURL, channel string, f *Fetcher, policy CrawlPolicy) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	if channel == "" {
		channel = DefaultTelegramChannel
	}
	return &Telegram{BaseURL: strings.TrimRight(baseURL, "/"), Channel: channel, Fetcher: f, Policy: policy}
}

func (t *Telegram) Name() domain.Source { return domain.SourceTelegram }

func (t *Telegram) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	items, _, err := t.page(ctx, "")
	return items, err
}

func (t *Telegram) FetchHistorical(ctx context.Context, cutoff time.Time) ([]domain.RawItem, error) {
	var all []domain.RawItem
	before := ""
	for n := 1; n <= t.Policy.pages(); n++ {
		if n > 1 {
			if err := t.Policy.pause(ctx); err != nil {
				break
			}
		}
		items, oldest, err := t.page(ctx, before)
		if err != nil {
			if n == 1 {
				return nil, err
			}
			break
		}
		if len(items) == 0 || oldest == "" || oldest == before {
			all = append(all, items...)
			break
		}
		all = append(all, items...)
		before = oldest
		if allBefore(items, cutoff) {
			break
		}
	}
	return since(all, cutoff), nil
}

func (t *Telegram) page(ctx context.Context, before string) ([]domain.RawItem, string, error) {
	pageURL := fmt.Sprintf("%s/s/%s", t.BaseURL, url.PathEscape(t.Channel))
	if before != "" {
		pageURL += "?before=" + url.QueryEscape(before)
	}
	body, err := t.Fetcher.Get(ctx, pageURL, "text/html")
	if err != nil {
		return nil, "", err
	}
	return ParseTelegramPage(body, t.Channel)
}

// ParseTelegramPage extracts messages from a channel preview page. It also
// returns the smallest message id seen, which pages further back.
func ParseTelegramPage(body []byte, channel string) ([]domain.RawItem, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse telegram page: %w", err)
	}

	var items []domain.RawItem
	oldest := ""
	doc.Find(".tgme_widget_message_wrap").Each(func(_ int, s *goquery.Selection) {
		msg := s.Find(".tgme_widget_message").First()
		post, _ := msg.Attr("data-post")
		_, id, _ := strings.Cut(post, "/")
		if id != "" && (oldest == "" || lessNumeric(id, oldest)) {
			oldest = id
		}

		text := strings.TrimSpace(s.Find(".tgme_widget_message_text").First().Text())
		if text == "" {
			return
		}
		dateLink := s.Find(".tgme_widget_message_date").First()
		link, _ := dateLink.Attr("href")
		stamp, _ := dateLink.Find("time").Attr("datetime")
		html, _ := s.Find(".tgme_widget_message_text").First().Html()

		opaque := ""
		if post != "" {
			opaque = "telegram-" + post
		}
		items = append(items, domain.RawItem{
			Source:   domain.SourceTelegram,
			Key:      domain.Key{URL: link, OpaqueID: opaque},
			Title:    postTitle("Telegram", text),
			Content:  text,
			Date:     parseDate(stamp),
			TypeHint: domain.TypeSocialPost,
			Post: &domain.PostPayload{
				Platform: string(domain.SourceTelegram),
				Author:   channel,
				HTML:     html,
			},
		})
	})
	if items == nil {
		items = []domain.RawItem{}
	}
	return items, oldest, nil
}

// lessNumeric compares two decimal ids without parsing them.
func lessNumeric(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
