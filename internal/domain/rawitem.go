package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Key is the identifying material a source provides for an item.
type Key struct {
	BillNumber string `json:"bill_number,omitempty"`
	URL        string `json:"url,omitempty"`
	OpaqueID   string `json:"opaque_id,omitempty"`
}

// PayloadKind tags the source-specific variant carried by a RawItem.
type PayloadKind string

const (
	PayloadBill   PayloadKind = "bill"
	PayloadAction PayloadKind = "action"
	PayloadPost   PayloadKind = "post"
)

// BillPayload is the variant emitted by legislative sources.
type BillPayload struct {
	Chamber    string `json:"chamber,omitempty"` // "H.R.", "S.", "H.Res." ...
	Number     string `json:"number"`
	UpdateDate string `json:"update_date,omitempty"`
}

// ActionPayload is the variant emitted by presidential-action sources.
type ActionPayload struct {
	Category string `json:"category,omitempty"` // "executive-order", "proclamation", ...
}

// PostPayload is the variant emitted by social sources.
type PostPayload struct {
	Platform string `json:"platform"`
	Author   string `json:"author,omitempty"`
	HTML     string `json:"html,omitempty"`
}

// RawItem is an unprocessed item as emitted by a source adapter.
// Exactly one of Bill, Action or Post is set.
type RawItem struct {
	Source   Source    `json:"source"`
	Key      Key       `json:"key"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary,omitempty"`
	Content  string    `json:"content,omitempty"`
	Date     time.Time `json:"date"`
	TypeHint EventType `json:"type_hint,omitempty"`

	Bill   *BillPayload   `json:"bill,omitempty"`
	Action *ActionPayload `json:"action,omitempty"`
	Post   *PostPayload   `json:"post,omitempty"`
}

// Kind returns the tag of the payload variant, or "" when none is set.
func (r RawItem) Kind() PayloadKind {
	switch {
	case r.Bill != nil:
		return PayloadBill
	case r.Action != nil:
		return PayloadAction
	case r.Post != nil:
		return PayloadPost
	}
	return ""
}

// Validate checks the tagged-union invariant.
func (r RawItem) Validate() error {
	n := 0
	for _, set := range []bool{r.Bill != nil, r.Action != nil, r.Post != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("raw item %q: expected exactly one payload variant, got %d", r.Title, n)
	}
	if r.Source == "" {
		return fmt.Errorf("raw item %q: source is required", r.Title)
	}
	return nil
}

// Text returns the summary, falling back to content.
func (r RawItem) Text() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.Content
}

// DeriveExternalID computes the deduplication identity of an item.
// Returns "" when the item carries no usable key material.
func DeriveExternalID(item RawItem) string {
	if n := strings.TrimSpace(item.Key.BillNumber); isDigits(n) {
		return "bill-" + strings.TrimLeft(n, "0")
	}
	if u := CanonicalURL(item.Key.URL); u != "" {
		return u
	}
	return strings.TrimSpace(item.Key.OpaqueID)
}

// CanonicalURL lowercases scheme and host and drops the fragment.
// Unparseable or relative URLs yield "".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func isDigits(s string) bool {
	if s == "" || strings.Trim(s, "0") == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
