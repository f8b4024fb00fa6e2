package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveExternalID_Precedence(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"bill number wins", Key{BillNumber: "1234", URL: "https://congress.gov/bill/1234", OpaqueID: "x"}, "bill-1234"},
		{"leading zeros trimmed", Key{BillNumber: "0042"}, "bill-42"},
		{"non numeric number falls through to url", Key{BillNumber: "unknown", URL: "https://example.com/a"}, "https://example.com/a"},
		{"url canonicalized", Key{URL: " HTTPS://WhiteHouse.GOV/presidential-actions/eo-1/#top "}, "https://whitehouse.gov/presidential-actions/eo-1/"},
		{"relative url ignored", Key{URL: "/posts/1", OpaqueID: "ts-1"}, "ts-1"},
		{"opaque id", Key{OpaqueID: " ts-20250211-001 "}, "ts-20250211-001"},
		{"nothing", Key{}, ""},
		{"all zeros is not a bill", Key{BillNumber: "000"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveExternalID(RawItem{Key: tt.key}))
		})
	}
}

func TestRawItem_Validate(t *testing.T) {
	ok := RawItem{Source: SourceCongress, Title: "t", Bill: &BillPayload{Number: "1"}}
	require.NoError(t, ok.Validate())
	assert.Equal(t, PayloadBill, ok.Kind())

	none := RawItem{Source: SourceCongress, Title: "t"}
	assert.Error(t, none.Validate())

	two := RawItem{Source: SourceX, Title: "t", Post: &PostPayload{}, Action: &ActionPayload{}}
	assert.Error(t, two.Validate())

	noSource := RawItem{Title: "t", Post: &PostPayload{}}
	assert.Error(t, noSource.Validate())
}

func TestMarshalCanonical_SortedAndNormalized(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	in := map[string]any{"b": "cafe\u0301", "a": []any{"<x>", 1}}
	out, err := MarshalCanonical(in)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":[\"<x>\",1],\"b\":\"caf\u00e9\"}", string(out))
}

func TestContentHash_StableAcrossEqualItems(t *testing.T) {
	date := time.Date(2026, 2, 11, 14, 30, 0, 0, time.UTC)
	a := RawItem{Source: SourceTruthSocial, Key: Key{OpaqueID: "ts-1"}, Title: "Truth", Date: date, Post: &PostPayload{Platform: "truth_social"}}
	b := a

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	b.Title = "Truth!"
	hc, err := ContentHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestEventType_Valid(t *testing.T) {
	for _, ty := range EventTypes {
		assert.True(t, ty.Valid(), ty)
	}
	assert.False(t, EventType("rumor").Valid())
}

func TestSource_IsSocial(t *testing.T) {
	assert.True(t, SourceTruthSocial.IsSocial())
	assert.True(t, SourceX.IsSocial())
	assert.True(t, SourceTelegram.IsSocial())
	assert.False(t, SourceCongress.IsSocial())
	assert.False(t, SourceWhiteHouse.IsSocial())
}

func TestPipelineError_KindThroughWrapping(t *testing.T) {
	base := NewSyncError("evt-1", "create work item", errors.New("HTTP 500"))
	wrapped := fmt.Errorf("start process: %w", base)

	assert.True(t, IsSyncError(wrapped))
	assert.False(t, IsPersistenceError(wrapped))
	assert.Equal(t, ErrKindExternalSync, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "event=evt-1")
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestEvent_SourceURL(t *testing.T) {
	e := Event{RawData: []byte(`{"key":{"url":"https://x.com/a/status/1"}}`)}
	assert.Equal(t, "https://x.com/a/status/1", e.SourceURL())
	assert.Equal(t, "", Event{RawData: []byte(`not json`)}.SourceURL())
}
