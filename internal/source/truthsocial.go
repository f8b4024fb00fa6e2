package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/shawcc/trumpsword/internal/domain"
)

const (
	DefaultTruthSocialURL     = "https://truthsocial.com"
	DefaultTruthSocialAccount = "realDonaldTrump"

	statusPageSize = 40
	postTitleRunes = 100
)

type mastodonAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type mastodonStatus struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Content   string `json:"content"`
	URL       string `json:"url"`
	URI       string `json:"uri"`
	Account   struct {
		Username string `json:"username"`
	} `json:"account"`
}

// TruthSocial reads an account timeline through the Mastodon-compatible
// statuses API.
type TruthSocial struct {
	BaseURL string
	Account string
	Fetcher *Fetcher
	Policy  CrawlPolicy

	conv *md.Converter
}

// NewTruthSocial creates the adapter. Empty baseURL and account use the
// defaults.
func NewTruthSocial(baseURL, account string, f *Fetcher, policy CrawlPolicy) *TruthSocial {
	if baseURL == "" {
		baseURL = DefaultTruthSocialURL
	}
	if account == "" {
		account = DefaultTruthSocialAccount
	}
	return &TruthSocial{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Account: account,
		Fetcher: f,
		Policy:  policy,
		conv:    md.NewConverter("", true, nil),
	}
}

func (t *TruthSocial) Name() domain.Source { return domain.SourceTruthSocial }

func (t *TruthSocial) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	id, err := t.accountID(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := t.statuses(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return t.items(statuses), nil
}

// FetchHistorical pages backwards with max_id until it passes cutoff.
func (t *TruthSocial) FetchHistorical(ctx context.Context, cutoff time.Time) ([]domain.RawItem, error) {
	id, err := t.accountID(ctx)
	if err != nil {
		return nil, err
	}

	var all []domain.RawItem
	maxID := ""
	for n := 1; n <= t.Policy.pages(); n++ {
		if n > 1 {
			if err := t.Policy.pause(ctx); err != nil {
				break
			}
		}
		statuses, err := t.statuses(ctx, id, maxID)
		if err != nil {
			if n == 1 {
				return nil, err
			}
			break
		}
		if len(statuses) == 0 {
			break
		}
		items := t.items(statuses)
		all = append(all, items...)
		maxID = statuses[len(statuses)-1].ID
		if allBefore(items, cutoff) {
			break
		}
	}
	return since(all, cutoff), nil
}

func (t *TruthSocial) accountID(ctx context.Context) (string, error) {
	var acct mastodonAccount
	lookup := t.BaseURL + "/api/v1/accounts/lookup?acct=" + url.QueryEscape(t.Account)
	if err := t.Fetcher.GetJSON(ctx, lookup, &acct); err != nil {
		return "", fmt.Errorf("look up account %s: %w", t.Account, err)
	}
	if acct.ID == "" {
		return "", fmt.Errorf("look up account %s: empty id", t.Account)
	}
	return acct.ID, nil
}

func (t *TruthSocial) statuses(ctx context.Context, accountID, maxID string) ([]mastodonStatus, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(statusPageSize))
	q.Set("exclude_replies", "true")
	if maxID != "" {
		q.Set("max_id", maxID)
	}
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/statuses?%s", t.BaseURL, url.PathEscape(accountID), q.Encode())

	var out []mastodonStatus
	if err := t.Fetcher.GetJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TruthSocial) items(statuses []mastodonStatus) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(statuses))
	for _, s := range statuses {
		text := t.text(s.Content)
		if text == "" {
			continue
		}
		link := s.URL
		if link == "" {
			link = s.URI
		}
		author := s.Account.Username
		if author == "" {
			author = t.Account
		}
		items = append(items, domain.RawItem{
			Source:   domain.SourceTruthSocial,
			Key:      domain.Key{URL: link, OpaqueID: "truth-" + s.ID},
			Title:    postTitle("Truth", text),
			Content:  text,
			Date:     parseDate(s.CreatedAt),
			TypeHint: domain.TypeSocialPost,
			Post: &domain.PostPayload{
				Platform: string(domain.SourceTruthSocial),
				Author:   author,
				HTML:     s.Content,
			},
		})
	}
	return items
}

// text converts status HTML to plain markdown. Falls back to the raw HTML
// when conversion fails.
func (t *TruthSocial) text(html string) string {
	out, err := t.conv.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(out)
}

// postTitle builds `<label>: "<first line, shortened>"`.
func postTitle(label, text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(line) > postTitleRunes {
		line = string([]rune(line)[:postTitleRunes]) + "..."
	}
	return fmt.Sprintf("%s: \"%s\"", label, line)
}
