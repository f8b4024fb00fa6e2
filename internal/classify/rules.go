package classify

import (
	"regexp"
	"strings"

	"github.com/shawcc/trumpsword/internal/domain"
)

// billPattern matches structured bill designations like "H.R. 1234",
// "S. 56", "H.Res. 7" or "S.J.Res. 12". The designation must not follow a
// letter or dot, so "U.S. 25" is not read as a Senate bill. The first
// submatch is the designation itself.
var billPattern = regexp.MustCompile(`(?:^|[^.\w])((?:H\.\s?R\.|S\.|H\.\s?Res\.|S\.\s?Res\.|H\.\s?J\.\s?Res\.|S\.\s?J\.\s?Res\.|H\.\s?Con\.\s?Res\.|S\.\s?Con\.\s?Res\.)\s?\d+)\b`)

// rule pairs an event type with the lowercase phrases that indicate it.
// Phrases match on word boundaries.
type rule struct {
	typ     domain.EventType
	phrases []*regexp.Regexp
}

// rules are checked in order; the first match wins. Executive and
// appointment phrases are more specific than "act" or "bill", so they go first.
var rules = []rule{
	{domain.TypeExecutive, phrases("executive order", "proclamation", "memorandum", "presidential action")},
	{domain.TypeAppointment, phrases("nomination", "nominations", "nominate", "nominates", "nominee", "appoint", "appoints", "appointment", "confirm", "confirmation", "confirmed")},
	{domain.TypeLegislative, phrases("bill", "act", "resolution", "legislation")},
}

func phrases(ps ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(ps))
	for i, p := range ps {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
	}
	return out
}

// matchRules classifies by payload variant and keywords over the title,
// summary and type hint. ok is false when nothing matched.
func matchRules(item domain.RawItem) (typ domain.EventType, entities []string, ok bool) {
	entities = []string{}
	if m := billPattern.FindStringSubmatch(item.Title + " " + item.Summary); m != nil {
		entities = append(entities, m[1])
	}

	if item.Bill != nil && item.Bill.Number != "" {
		return domain.TypeLegislative, entities, true
	}
	if len(entities) > 0 {
		return domain.TypeLegislative, entities, true
	}

	text := strings.ToLower(strings.Join([]string{item.Title, item.Summary, string(item.TypeHint)}, " "))
	for _, r := range rules {
		for _, p := range r.phrases {
			if p.MatchString(text) {
				return r.typ, entities, true
			}
		}
	}
	return "", entities, false
}
