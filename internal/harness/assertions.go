package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/store"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Target   string // external id, when the assertion names one
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: expected %s, got %s", e.Type, e.Target, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var msgs []string
	for _, a := range assertions {
		if err := h.check(ctx, a); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func (h *Harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertEvent:
		event, err := h.store.GetEventByExternalID(ctx, a.ExternalID)
		if err != nil {
			return &AssertionError{Type: a.Type, Target: a.ExternalID, Expected: "event", Actual: err.Error()}
		}
		return subsetError(a, eventView(event))

	case AssertProcess:
		p, err := h.processFor(ctx, a.ExternalID)
		if err != nil {
			return &AssertionError{Type: a.Type, Target: a.ExternalID, Expected: "process", Actual: err.Error()}
		}
		return subsetError(a, map[string]any{
			"current_node": p.CurrentNode,
			"status":       string(p.Status),
		})

	case AssertHistoryCount:
		p, err := h.processFor(ctx, a.ExternalID)
		if err != nil {
			return &AssertionError{Type: a.Type, Target: a.ExternalID, Expected: "process", Actual: err.Error()}
		}
		history, err := h.store.ListHistory(ctx, p.ID)
		if err != nil {
			return err
		}
		return countError(a, len(history))

	case AssertSyncCalls:
		event, err := h.store.GetEventByExternalID(ctx, a.ExternalID)
		if err != nil {
			return &AssertionError{Type: a.Type, Target: a.ExternalID, Expected: "event", Actual: err.Error()}
		}
		return countError(a, h.syncer.SyncCount(event.ID))

	case AssertEventCount:
		_, total, err := h.store.ListEvents(ctx, store.EventFilter{})
		if err != nil {
			return err
		}
		return countError(a, total)

	case AssertProcessCount:
		_, total, err := h.store.ListProcesses(ctx, store.ProcessFilter{})
		if err != nil {
			return err
		}
		return countError(a, total)

	case AssertClassifyCalls:
		return countError(a, h.classifier.Calls())

	case AssertTrackerRequests:
		return countError(a, int(h.requests.Load()))
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func (h *Harness) processFor(ctx context.Context, externalID string) (domain.Process, error) {
	event, err := h.store.GetEventByExternalID(ctx, externalID)
	if err != nil {
		return domain.Process{}, err
	}
	return h.store.GetProcessByEventID(ctx, event.ID)
}

// eventView exposes the assertable event fields. Unset optional fields are nil.
func eventView(e domain.Event) map[string]any {
	v := map[string]any{
		"title":            e.Title,
		"type":             string(e.Type),
		"source":           string(e.Source),
		"summary":          e.Summary,
		"confidence_score": e.ConfidenceScore,
		"sync_status":      string(e.SyncStatus),
		"event_date":       e.EventDate.Format("2006-01-02"),
		"sync_error":       nil,
		"work_item_id":     nil,
	}
	if e.SyncError != nil {
		v["sync_error"] = *e.SyncError
	}
	if e.WorkItemID != nil {
		v["work_item_id"] = *e.WorkItemID
	}
	return v
}

func countError(a Assertion, got int) error {
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Target:   a.ExternalID,
		Expected: fmt.Sprintf("count %d", *a.Count),
		Actual:   fmt.Sprintf("count %d", got),
	}
}

func subsetError(a Assertion, actual map[string]any) error {
	msgs := matchSubset(a.Expect, actual)
	if len(msgs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Target:   a.ExternalID,
		Expected: fmt.Sprintf("%v", a.Expect),
		Actual:   fmt.Sprintf("%v", msgs),
	}
}

// matchSubset compares every expected key with actual. Keys absent from
// expected are ignored. Returns one message per mismatch, sorted by key.
func matchSubset(expected, actual map[string]any) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("%s: missing", k))
			continue
		}
		if !valuesEqual(expected[k], got) {
			msgs = append(msgs, fmt.Sprintf("%s: expected %v, got %v", k, expected[k], got))
		}
	}
	return msgs
}

// valuesEqual compares a YAML-decoded expectation with a result value.
// Scalars compare by their printed form so 2 matches int64(2).
func valuesEqual(want, got any) bool {
	switch w := want.(type) {
	case nil:
		if got == nil {
			return true
		}
		rv := reflect.ValueOf(got)
		return rv.Kind() == reflect.Pointer && rv.IsNil()
	case []any:
		rv := reflect.ValueOf(got)
		if rv.Kind() != reflect.Slice || rv.Len() != len(w) {
			return false
		}
		for i := range w {
			if !valuesEqual(w[i], rv.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	if got == nil {
		return false
	}
	return fmt.Sprint(want) == fmt.Sprint(got)
}
