package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/store"
)

// OpenStore opens a fresh SQLite store under t.TempDir and closes it on cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// RecordingSyncer is an in-memory tracker. It records every call and
// writes the sync outcome back to the store the way the real adapter does.
//
// Fail maps an event's external id to the error its next syncs return.
type RecordingSyncer struct {
	Store *store.Store
	Clock domain.Clock

	mu          sync.Mutex
	Fail        map[string]error
	Synced      []string // event ids, in call order
	Transitions []string // "<event id>:<node>"
}

// NewRecordingSyncer creates a syncer writing outcomes to s.
func NewRecordingSyncer(s *store.Store) *RecordingSyncer {
	return &RecordingSyncer{Store: s, Clock: domain.SystemClock{}, Fail: map[string]error{}}
}

// FailWith makes syncs of externalID fail with err. A nil err clears it.
func (r *RecordingSyncer) FailWith(externalID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.Fail, externalID)
		return
	}
	r.Fail[externalID] = err
}

// Sync implements workflow.Syncer.
func (r *RecordingSyncer) Sync(ctx context.Context, event domain.Event) error {
	r.mu.Lock()
	r.Synced = append(r.Synced, event.ID)
	failErr := r.Fail[event.ExternalID]
	r.mu.Unlock()

	if failErr != nil {
		msg := failErr.Error()
		if err := r.Store.UpdateEventSync(ctx, event.ID, domain.SyncFailed, &msg, nil, r.Clock.Now()); err != nil {
			return errors.Join(failErr, err)
		}
		return domain.NewSyncError(event.ID, msg, failErr)
	}

	workItemID := "wi-" + event.ExternalID
	return r.Store.UpdateEventSync(ctx, event.ID, domain.SyncSuccess, nil, &workItemID, r.Clock.Now())
}

// SyncTransition implements workflow.Syncer.
func (r *RecordingSyncer) SyncTransition(_ context.Context, event domain.Event, _ domain.Process, toNode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transitions = append(r.Transitions, event.ID+":"+toNode)
	return nil
}

// SyncCount returns how many times Sync was called for eventID.
func (r *RecordingSyncer) SyncCount(eventID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.Synced {
		if id == eventID {
			n++
		}
	}
	return n
}
