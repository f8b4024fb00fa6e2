package meegle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shawcc/trumpsword/internal/domain"
)

func TestResolveType(t *testing.T) {
	catalog := []WorkItemType{
		{TypeKey: "story", Name: "需求"},
		{TypeKey: "exec_key", Name: "executive order"},
		{TypeKey: "SOCIAL_POST", Name: "Posts"},
		{TypeKey: "nom", Name: "Senate Nomination Tracker"},
		{TypeKey: "law", Name: "法案跟踪"},
	}

	tests := []struct {
		name   string
		typ    domain.EventType
		manual map[string]string
		want   TypeResolution
	}{
		{"manual wins", domain.TypeExecutive, map[string]string{"executive": "m1"}, TypeResolution{"m1", "manual"}},
		{"exact name, case-insensitive", domain.TypeExecutive, nil, TypeResolution{"exec_key", "exact"}},
		{"exact uppercased key", domain.TypeSocialPost, nil, TypeResolution{"SOCIAL_POST", "exact"}},
		{"substring", domain.TypeAppointment, nil, TypeResolution{"nom", "substring"}},
		{"chinese substring", domain.TypeLegislative, nil, TypeResolution{"law", "substring"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveType(tt.typ, tt.manual, catalog))
		})
	}
}

func TestResolveType_Fallback(t *testing.T) {
	got := ResolveType(domain.TypeAppointment, nil, []WorkItemType{{TypeKey: "bug", Name: "Bug"}})
	assert.Equal(t, TypeResolution{TypeKey: "APPOINTMENT", Via: "fallback"}, got)
}

func TestResolveFields(t *testing.T) {
	schema := []Field{
		{FieldKey: "name", FieldName: "标题"},
		{FieldKey: "f_sum", FieldName: "摘要"},
		{FieldKey: "f_desc", FieldName: "Description"},
		{FieldKey: "f_tags", FieldName: "Tags"},
	}

	resolved, missing := ResolveFields(schema)
	assert.Equal(t, map[Slot]string{
		SlotHeadline:      "name",
		SlotActionSummary: "f_sum",
		SlotAnalysis:      "f_desc",
		SlotTag:           "f_tags",
	}, resolved)
	assert.Equal(t, []Slot{SlotScheduledStart, SlotSourceLink}, missing)
}

func TestResolveFields_EachFieldUsedOnce(t *testing.T) {
	// "Source Link Title" could serve both the headline and the link; the
	// headline takes it first and the link stays unresolved.
	schema := []Field{{FieldKey: "only", FieldName: "Source Link Title"}}

	resolved, missing := ResolveFields(schema)
	assert.Equal(t, map[Slot]string{SlotHeadline: "only"}, resolved)
	assert.Contains(t, missing, SlotSourceLink)
}

func TestResolveField_MatchesKey(t *testing.T) {
	key, ok := ResolveField([]Field{{FieldKey: "URL", FieldName: "Reference"}}, []string{"url"}, map[string]bool{})
	assert.True(t, ok)
	assert.Equal(t, "URL", key)
}
