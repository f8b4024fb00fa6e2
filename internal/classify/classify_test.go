package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawcc/trumpsword/internal/domain"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, system, user string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestClassify_SocialSourceIsAuthoritative(t *testing.T) {
	llm := &stubCompleter{reply: `{"type":"executive","confidence":0.99}`}
	c := New(WithCompleter(llm))

	got := c.Classify(context.Background(), domain.RawItem{
		Source: domain.SourceTruthSocial,
		Title:  "I will sign an executive order today",
		Post:   &domain.PostPayload{Platform: "truth_social", Author: "realDonaldTrump"},
	})

	assert.Equal(t, domain.TypeSocialPost, got.Type)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, MethodSource, got.Method)
	assert.Equal(t, []string{"realDonaldTrump"}, got.Entities)
	assert.Zero(t, llm.calls, "social items never reach the service")
}

func TestClassify_Rules(t *testing.T) {
	tests := []struct {
		name string
		item domain.RawItem
		want domain.EventType
	}{
		{
			name: "bill payload",
			item: domain.RawItem{Source: domain.SourceCongress, Title: "To improve the economy",
				Bill: &domain.BillPayload{Number: "1234"}},
			want: domain.TypeLegislative,
		},
		{
			name: "bill designation in title",
			item: domain.RawItem{Source: domain.SourceCongress, Title: "H.R. 22 - SAVE Act"},
			want: domain.TypeLegislative,
		},
		{
			name: "executive order",
			item: domain.RawItem{Source: domain.SourceWhiteHouse, Title: "Executive Order on Protecting American Workers"},
			want: domain.TypeExecutive,
		},
		{
			name: "proclamation in summary",
			item: domain.RawItem{Source: domain.SourceWhiteHouse, Title: "National Day of Remembrance",
				Summary: "A Proclamation by the President"},
			want: domain.TypeExecutive,
		},
		{
			name: "nomination",
			item: domain.RawItem{Source: domain.SourceWhiteHouse, Title: "Nominations Sent to the Senate"},
			want: domain.TypeAppointment,
		},
		{
			name: "act keyword",
			item: domain.RawItem{Source: domain.SourceCongress, Title: "Laken Riley Act"},
			want: domain.TypeLegislative,
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.item)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, ConfidenceRules, got.Confidence)
			assert.Equal(t, MethodRules, got.Method)
			assert.NotNil(t, got.Entities)
		})
	}
}

func TestClassify_BillDesignations(t *testing.T) {
	tests := []struct {
		name     string
		item     domain.RawItem
		want     domain.EventType
		entities []string
	}{
		{
			name:     "house bill",
			item:     domain.RawItem{Source: domain.SourceCongress, Title: "H.R. 1234 - To improve the economy"},
			want:     domain.TypeLegislative,
			entities: []string{"H.R. 1234"},
		},
		{
			name:     "senate bill",
			item:     domain.RawItem{Source: domain.SourceCongress, Title: "Senate passes S. 56"},
			want:     domain.TypeLegislative,
			entities: []string{"S. 56"},
		},
		{
			name:     "joint resolution",
			item:     domain.RawItem{Source: domain.SourceCongress, Title: "Vote on (S.J.Res. 12)"},
			want:     domain.TypeLegislative,
			entities: []string{"S.J.Res. 12"},
		},
		{
			name:     "country abbreviation before a number",
			item:     domain.RawItem{Source: domain.SourceWhiteHouse, Title: "Proclamation on U.S. 25 percent steel tariffs"},
			want:     domain.TypeExecutive,
			entities: []string{},
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.item)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.entities, got.Entities)
		})
	}
}

func TestClassify_CountryAbbreviationIsNotABill(t *testing.T) {
	c := New()
	got := c.Classify(context.Background(), domain.RawItem{
		Source: domain.SourceWhiteHouse,
		Title:  "Remarks on U.S. 2025 trade goals",
	})
	assert.Equal(t, MethodFallback, got.Method)
}

func TestClassify_RulesDoNotMatchInsideWords(t *testing.T) {
	c := New()
	got := c.Classify(context.Background(), domain.RawItem{
		Source: domain.SourceWhiteHouse,
		Title:  "Remarks on the factory reopening",
	})
	// "act" inside "factory" must not count.
	assert.Equal(t, MethodFallback, got.Method)
}

func TestClassify_NoMatchUsesTypeHint(t *testing.T) {
	c := New()

	got := c.Classify(context.Background(), domain.RawItem{
		Source:   domain.SourceWhiteHouse,
		Title:    "Fact sheet",
		TypeHint: domain.TypeExecutive,
	})
	assert.Equal(t, domain.TypeExecutive, got.Type)
	assert.Equal(t, ConfidenceFallback, got.Confidence)

	got = c.Classify(context.Background(), domain.RawItem{Source: domain.SourceWhiteHouse, Title: "Remarks"})
	assert.Equal(t, domain.TypeLegislative, got.Type)
	assert.Equal(t, ConfidenceFallback, got.Confidence)
}

func TestClassify_LLMVerdictUsedVerbatim(t *testing.T) {
	llm := &stubCompleter{reply: "```json\n{\"type\":\"appointment\",\"confidence\":0.77,\"summary\":\"A nominee.\",\"entities\":[\"Senate\"]}\n```"}
	c := New(WithCompleter(llm))

	got := c.Classify(context.Background(), domain.RawItem{
		Source: domain.SourceWhiteHouse,
		Title:  "Executive Order on something",
	})
	assert.Equal(t, domain.TypeAppointment, got.Type)
	assert.Equal(t, 0.77, got.Confidence)
	assert.Equal(t, "A nominee.", got.Summary)
	assert.Equal(t, []string{"Senate"}, got.Entities)
	assert.Equal(t, MethodLLM, got.Method)
	assert.Equal(t, 1, llm.calls)
}

func TestClassify_LLMFailureDegradesToRules(t *testing.T) {
	tests := []struct {
		name string
		llm  *stubCompleter
	}{
		{"transport error", &stubCompleter{err: errors.New("connection refused")}},
		{"not json", &stubCompleter{reply: "I think this is an executive order."}},
		{"unknown type", &stubCompleter{reply: `{"type":"weather","confidence":0.9}`}},
		{"confidence out of range", &stubCompleter{reply: `{"type":"executive","confidence":7}`}},
		{"missing confidence", &stubCompleter{reply: `{"type":"executive"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithCompleter(tt.llm))
			got := c.Classify(context.Background(), domain.RawItem{
				Source: domain.SourceWhiteHouse,
				Title:  "Executive Order 14000",
			})
			assert.Equal(t, domain.TypeExecutive, got.Type)
			assert.Equal(t, ConfidenceFallback, got.Confidence)
			assert.Equal(t, MethodFallback, got.Method)
			assert.Contains(t, got.Summary, "Automatic analysis unavailable")
		})
	}
}

func TestClassify_OutputAlwaysInTaxonomy(t *testing.T) {
	replies := []string{"", "{}", `{"type":"","confidence":-1}`, `{"type":"executive","confidence":0.3}`}
	sources := []domain.Source{domain.SourceCongress, domain.SourceWhiteHouse, domain.SourceX, "unknown"}

	for _, reply := range replies {
		for _, src := range sources {
			c := New(WithCompleter(&stubCompleter{reply: reply}))
			got := c.Classify(context.Background(), domain.RawItem{Source: src, Title: "anything"})
			assert.True(t, got.Type.Valid(), "reply=%q source=%s", reply, src)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		}
	}
}

func TestParseVerdict_AcceptsExtractedEntities(t *testing.T) {
	got, err := parseVerdict(`{"type":"Legislative","confidence":0.6,"summary":"s","extracted_entities":["House"]}`)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeLegislative, got.Type)
	assert.Equal(t, []string{"House"}, got.Entities)
}

func TestTruncate(t *testing.T) {
	long := make([]rune, maxSummaryRunes+10)
	for i := range long {
		long[i] = 'é'
	}
	got := []rune(truncate(string(long)))
	assert.Len(t, got, maxSummaryRunes)
	assert.Equal(t, '…', got[len(got)-1])
	assert.Equal(t, "short", truncate("short"))
}
