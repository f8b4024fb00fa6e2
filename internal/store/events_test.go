package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawcc/trumpsword/internal/domain"
)

func TestInsertEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := testEvent("evt-1", "bill-1")
	require.NoError(t, s.InsertEvent(ctx, want))

	got, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, want.ExternalID, got.ExternalID)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Source, got.Source)
	assert.Equal(t, want.Entities, got.Entities)
	assert.JSONEq(t, string(want.RawData), string(got.RawData))
	assert.True(t, want.EventDate.Equal(got.EventDate))
	assert.Equal(t, domain.SyncPending, got.SyncStatus)
	assert.Nil(t, got.SyncError)
	assert.Nil(t, got.WorkItemID)
	assert.Equal(t, "https://example.gov/1", got.SourceURL())
}

func TestInsertEvent_NilEntitiesStoredAsEmpty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent("evt-1", "bill-1")
	e.Entities = nil
	require.NoError(t, s.InsertEvent(ctx, e))

	got, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.NotNil(t, got.Entities)
	assert.Empty(t, got.Entities)
}

func TestInsertEvent_DuplicateExternalID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertEvent(ctx, testEvent("evt-1", "bill-1")))
	err := s.InsertEvent(ctx, testEvent("evt-2", "bill-1"))
	require.ErrorIs(t, err, ErrDuplicate)

	_, total, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGetEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetEventByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEventSync_KeepsWorkItemID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEvent(ctx, testEvent("evt-1", "bill-1")))

	later := testNow.Add(time.Hour)
	require.NoError(t, s.UpdateEventSync(ctx, "evt-1", domain.SyncSuccess, nil, strPtr("wi-42"), later))

	// A failed resync without a new id must not erase the recorded one.
	require.NoError(t, s.UpdateEventSync(ctx, "evt-1", domain.SyncFailed, strPtr("HTTP 500"), nil, later))

	got, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncFailed, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "HTTP 500", *got.SyncError)
	require.NotNil(t, got.WorkItemID)
	assert.Equal(t, "wi-42", *got.WorkItemID)
	assert.True(t, later.Equal(got.UpdatedAt))
}

func TestUpdateEventSync_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.UpdateEventSync(context.Background(), "missing", domain.SyncSuccess, nil, nil, testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEvents_FilterAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := testEvent(fmt.Sprintf("evt-%d", i), fmt.Sprintf("bill-%d", i))
		e.EventDate = testNow.Add(time.Duration(i) * time.Hour)
		if i%2 == 1 {
			e.Type = domain.TypeExecutive
			e.Source = domain.SourceWhiteHouse
		}
		require.NoError(t, s.InsertEvent(ctx, e))
	}

	all, total, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 5)
	assert.Equal(t, "evt-4", all[0].ID, "newest event date first")

	exec, total, err := s.ListEvents(ctx, EventFilter{Type: domain.TypeExecutive})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"evt-3", "evt-1"}, eventIDs(exec))

	page, total, err := s.ListEvents(ctx, EventFilter{Page: Page{Limit: 2, Offset: 2}})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"evt-2", "evt-1"}, eventIDs(page))
}

func TestListEvents_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	events, total, err := s.ListEvents(context.Background(), EventFilter{Source: domain.SourceTelegram})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NotNil(t, events)
}

func TestListUnsynced(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e := testEvent(fmt.Sprintf("evt-%d", i), fmt.Sprintf("bill-%d", i))
		e.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.InsertEvent(ctx, e))
	}
	require.NoError(t, s.UpdateEventSync(ctx, "evt-3", domain.SyncSuccess, nil, strPtr("wi-3"), testNow))
	require.NoError(t, s.UpdateEventSync(ctx, "evt-0", domain.SyncFailed, strPtr("boom"), nil, testNow))

	got, err := s.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-2", "evt-1", "evt-0"}, eventIDs(got))

	got, err = s.ListUnsynced(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt-2"}, eventIDs(got))
}

func TestDeleteAllEvents_CascadesToProcesses(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p := seedProcess(t, s, "evt-1", "bill-1")

	n, err := s.DeleteAllEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetProcess(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := s.ListHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	templates, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 1, "templates survive a reset")
}

func eventIDs(events []domain.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
