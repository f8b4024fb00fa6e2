package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shawcc/trumpsword/internal/domain"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEvent creates a pending legislative event with minimal required fields.
func testEvent(id, externalID string) domain.Event {
	return domain.Event{
		ID:              id,
		ExternalID:      externalID,
		Title:           "H.R. 1 - Test Act",
		Type:            domain.TypeLegislative,
		Source:          domain.SourceCongress,
		ConfidenceScore: 0.9,
		Summary:         "test summary",
		Entities:        []string{"House"},
		RawData:         json.RawMessage(`{"key":{"url":"https://example.gov/1"}}`),
		ContentHash:     "hash-" + id,
		EventDate:       testNow,
		SyncStatus:      domain.SyncPending,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
}

func seedTemplate(t *testing.T, s *Store) domain.WorkflowTemplate {
	t.Helper()
	tmpl := domain.WorkflowTemplate{
		ID:        "tmpl-legislative",
		Type:      domain.TypeLegislative,
		Name:      "Legislative Process",
		Nodes:     []string{"Introduction", "Committee", "Floor Vote", "President", "Law"},
		CreatedAt: testNow,
	}
	if _, err := s.InsertTemplateIfAbsent(context.Background(), tmpl); err != nil {
		t.Fatalf("InsertTemplateIfAbsent() failed: %v", err)
	}
	return tmpl
}

// seedProcess inserts an event and an active process at the first node.
func seedProcess(t *testing.T, s *Store, eventID, externalID string) domain.Process {
	t.Helper()
	ctx := context.Background()

	tmpl, err := s.GetTemplateByType(ctx, domain.TypeLegislative)
	if err != nil {
		tmpl = seedTemplate(t, s)
	}
	if err := s.InsertEvent(ctx, testEvent(eventID, externalID)); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}

	p := domain.Process{
		ID:          "proc-" + eventID,
		EventID:     eventID,
		TemplateID:  tmpl.ID,
		CurrentNode: tmpl.Nodes[0],
		Status:      domain.ProcessActive,
		StartedAt:   testNow,
		UpdatedAt:   testNow,
	}
	initial := domain.StatusHistoryEntry{
		ToNode:         tmpl.Nodes[0],
		TransitionData: json.RawMessage(`{"reason":"process_started"}`),
		Timestamp:      testNow,
	}
	if err := s.CreateProcess(ctx, p, initial); err != nil {
		t.Fatalf("CreateProcess() failed: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }
