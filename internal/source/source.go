// Package source holds the adapters that pull raw items from upstream
// publishers. Every adapter normalizes its records into domain.RawItem at
// the boundary; nothing downstream sees source-specific shapes except
// through the RawItem payload variants.
package source

import (
	"context"
	"time"

	"github.com/araddon/dateparse"

	"github.com/shawcc/trumpsword/internal/domain"
)

// Adapter fetches items from one upstream source.
type Adapter interface {
	Name() domain.Source

	// Fetch returns the most recent items.
	Fetch(ctx context.Context) ([]domain.RawItem, error)

	// FetchHistorical returns items dated on or after since. Adapters
	// page through their source up to CrawlPolicy.MaxPages.
	FetchHistorical(ctx context.Context, since time.Time) ([]domain.RawItem, error)
}

// CrawlPolicy bounds a historical crawl.
type CrawlPolicy struct {
	MaxPages  int
	PageDelay time.Duration
}

// DefaultCrawlPolicy caps a crawl at 10 pages, one second apart.
var DefaultCrawlPolicy = CrawlPolicy{MaxPages: 10, PageDelay: time.Second}

func (p CrawlPolicy) pages() int {
	if p.MaxPages <= 0 {
		return DefaultCrawlPolicy.MaxPages
	}
	return p.MaxPages
}

// pause waits out the polite delay between pages.
func (p CrawlPolicy) pause(ctx context.Context) error {
	if p.PageDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.PageDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// since keeps items dated on or after cutoff. Undated items are kept.
func since(items []domain.RawItem, cutoff time.Time) []domain.RawItem {
	out := make([]domain.RawItem, 0, len(items))
	for _, it := range items {
		if it.Date.IsZero() || !it.Date.Before(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// parseDate accepts the assorted date formats upstream pages use. An
// unparseable value yields the zero time.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Static serves a fixed item list. Used for fixtures and scenario runs.
type Static struct {
	Source domain.Source
	Items  []domain.RawItem

	// Err, when set, is returned by every fetch.
	Err error
}

func (s *Static) Name() domain.Source { return s.Source }

func (s *Static) Fetch(context.Context) ([]domain.RawItem, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]domain.RawItem(nil), s.Items...), nil
}

func (s *Static) FetchHistorical(_ context.Context, cutoff time.Time) ([]domain.RawItem, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return since(s.Items, cutoff), nil
}
