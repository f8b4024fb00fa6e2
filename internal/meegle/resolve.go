package meegle

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/shawcc/trumpsword/internal/domain"
)

// typeCandidates lists, per internal type, the display names a project is
// likely to use for the matching work item type, in preference order.
var typeCandidates = map[domain.EventType][]string{
	domain.TypeLegislative: {"Legislative", "Legislation", "Bill", "立法", "法案"},
	domain.TypeExecutive:   {"Executive Order", "Executive", "Presidential Action", "行政令", "行政"},
	domain.TypeAppointment: {"Appointment", "Nomination", "Personnel", "任命", "提名"},
	domain.TypeSocialPost:  {"Social Media", "Social Post", "Social", "社交媒体", "舆情"},
}

// TypeResolution records how a work item type key was chosen.
type TypeResolution struct {
	TypeKey string
	// Via is "manual", "exact", "substring" or "fallback".
	Via string
}

// ResolveType picks the work item type for an internal event type.
//
// First match wins: the manual map, then an exact (case-insensitive) match
// of a candidate name or the uppercased type against the catalog, then a
// substring match. Otherwise the uppercased type is returned with Via
// "fallback"; that key will probably be rejected downstream.
func ResolveType(typ domain.EventType, manual map[string]string, catalog []WorkItemType) TypeResolution {
	if key := manual[string(typ)]; key != "" {
		return TypeResolution{TypeKey: key, Via: "manual"}
	}

	upper := strings.ToUpper(string(typ))
	candidates := append([]string{string(typ)}, typeCandidates[typ]...)

	for _, cand := range candidates {
		for _, t := range catalog {
			if fold(t.Name) == fold(cand) || t.TypeKey == upper {
				return TypeResolution{TypeKey: t.TypeKey, Via: "exact"}
			}
		}
	}
	for _, cand := range candidates {
		for _, t := range catalog {
			if strings.Contains(fold(t.Name), fold(cand)) {
				return TypeResolution{TypeKey: t.TypeKey, Via: "substring"}
			}
		}
	}
	return TypeResolution{TypeKey: upper, Via: "fallback"}
}

// Slot is a semantic field the adapter knows how to fill.
type Slot string

const (
	SlotHeadline       Slot = "headline"
	SlotActionSummary  Slot = "action_summary"
	SlotAnalysis       Slot = "analysis"
	SlotScheduledStart Slot = "scheduled_start"
	SlotTag            Slot = "tag"
	SlotSourceLink     Slot = "source_link"
)

// SlotCandidates maps each slot to the field names (or keys) it may land
// in, in preference order. Order of the table is the resolution order.
var SlotCandidates = []struct {
	Slot       Slot
	Candidates []string
}{
	{SlotHeadline, []string{"title", "headline", "标题", "名称"}},
	{SlotActionSummary, []string{"summary", "action", "摘要", "概要", "动作"}},
	{SlotAnalysis, []string{"analysis", "rationale", "description", "分析", "描述"}},
	{SlotScheduledStart, []string{"scheduled start", "start", "schedule", "date", "开始", "日期"}},
	{SlotTag, []string{"tag", "label", "category", "标签", "类别"}},
	{SlotSourceLink, []string{"source link", "link", "url", "source", "来源", "链接"}},
}

// ResolveField returns the key of the first unused field whose name
// contains a candidate (case-insensitive), or whose key equals it.
func ResolveField(fields []Field, candidates []string, used map[string]bool) (string, bool) {
	for _, cand := range candidates {
		c := fold(cand)
		for _, f := range fields {
			if used[f.FieldKey] {
				continue
			}
			if strings.Contains(fold(f.FieldName), c) || fold(f.FieldKey) == c {
				return f.FieldKey, true
			}
		}
	}
	return "", false
}

// ResolveFields maps every slot to a field of the schema. Each field is
// used at most once. Unresolved slots are returned in table order.
func ResolveFields(fields []Field) (resolved map[Slot]string, missing []Slot) {
	resolved = map[Slot]string{}
	used := map[string]bool{}
	for _, sc := range SlotCandidates {
		key, ok := ResolveField(fields, sc.Candidates, used)
		if !ok {
			missing = append(missing, sc.Slot)
			continue
		}
		used[key] = true
		resolved[sc.Slot] = key
	}
	return resolved, missing
}

// fold case-folds s for comparison. A Caser is stateful, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
