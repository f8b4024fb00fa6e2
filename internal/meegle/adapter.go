// Package meegle mirrors events into a Meegle project as work items.
//
// Without credentials the adapter runs in mock mode: no network I/O, and
// every sync is recorded as a success without a work item id. With
// credentials but no project key, syncs are recorded as failed and not
// raised. Every other failure is recorded as failed and returned.
package meegle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shawcc/trumpsword/internal/domain"
)

// EventRecorder persists sync outcomes. Implemented by *store.Store.
type EventRecorder interface {
	UpdateEventSync(ctx context.Context, id string, status domain.SyncStatus, syncErr *string, workItemID *string, now time.Time) error
}

// Config is the adapter's view of the tracker settings.
type Config struct {
	BaseURL     string
	TokenURL    string
	Credentials Credentials
	ProjectKey  string

	// TypeMap overrides type resolution: internal type -> type key.
	TypeMap map[string]string

	// Transitions maps internal type -> node -> transition id.
	Transitions map[string]map[string]string

	TokenMargin time.Duration
	HTTPClient  *http.Client
}

// Adapter implements workflow.Syncer against the tracker API.
type Adapter struct {
	cfg      Config
	client   *Client // nil in mock mode
	recorder EventRecorder
	clock    domain.Clock
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock sets the time source. Default: SystemClock.
func WithClock(c domain.Clock) Option {
	return func(a *Adapter) { a.clock = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an Adapter. Mock mode is selected when credentials are empty.
func New(cfg Config, recorder EventRecorder, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:      cfg,
		recorder: recorder,
		clock:    domain.SystemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if !cfg.Credentials.Empty() {
		margin := cfg.TokenMargin
		if margin <= 0 {
			margin = DefaultTokenMargin
		}
		auth := NewAuthenticator(cfg.TokenURL, cfg.Credentials, cfg.HTTPClient, margin)
		a.client = NewClient(cfg.BaseURL, auth, cfg.HTTPClient, a.logger)
	}
	return a
}

// Mock reports whether the adapter is running without credentials.
func (a *Adapter) Mock() bool { return a.client == nil }

// Sync creates the event's work item, or updates it when the event already
// has one, and records the outcome on the event.
func (a *Adapter) Sync(ctx context.Context, event domain.Event) error {
	log := a.logger.With("event_id", event.ID, "external_id", event.ExternalID)

	if a.client == nil {
		// No work item exists upstream, so none is recorded. A later live
		// sync must still create one.
		log.Info("meegle credentials not configured, mock sync")
		return a.recordSuccess(ctx, event.ID, nil)
	}

	if a.cfg.ProjectKey == "" {
		cfgErr := domain.NewConfigError(event.ID, "meegle project key is not configured")
		log.Error("sync skipped", "error", cfgErr)
		if err := a.recordFailure(ctx, event.ID, cfgErr.Message); err != nil {
			return err
		}
		return nil
	}

	id, err := a.push(ctx, event, log)
	if err != nil {
		log.Warn("sync failed", "error", err)
		if recErr := a.recordFailure(ctx, event.ID, err.Error()); recErr != nil {
			return errors.Join(domain.NewSyncError(event.ID, "sync failed", err), recErr)
		}
		return domain.NewSyncError(event.ID, "sync failed", err)
	}

	log.Info("synced to meegle", "work_item_id", id)
	return a.recordSuccess(ctx, event.ID, &id)
}

// push resolves the type and fields and then creates or updates the work item.
func (a *Adapter) push(ctx context.Context, event domain.Event, log *slog.Logger) (string, error) {
	typeKey, err := a.resolveType(ctx, event.Type, log)
	if err != nil {
		return "", err
	}

	schema, err := a.client.ListFields(ctx, a.cfg.ProjectKey, typeKey)
	if err != nil {
		return "", err
	}
	fields := BuildFields(event, schema, log)

	if id, ok := workItemOf(event); ok {
		if err := a.client.UpdateWorkItem(ctx, a.cfg.ProjectKey, id, fields); err != nil {
			return "", err
		}
		return id, nil
	}

	return a.client.CreateWorkItem(ctx, a.cfg.ProjectKey, CreateRequest{
		TypeKey: typeKey,
		Name:    event.Title,
		Fields:  fields,
	})
}

// mockWorkItemPrefix marks placeholder ids written by older mock syncs.
const mockWorkItemPrefix = "mock_wi_"

// workItemOf returns the event's upstream work item id. Empty and
// placeholder ids count as absent.
func workItemOf(event domain.Event) (string, bool) {
	if event.WorkItemID == nil {
		return "", false
	}
	id := *event.WorkItemID
	if id == "" || strings.HasPrefix(id, mockWorkItemPrefix) {
		return "", false
	}
	return id, true
}

func (a *Adapter) resolveType(ctx context.Context, typ domain.EventType, log *slog.Logger) (string, error) {
	var catalog []WorkItemType
	if a.cfg.TypeMap[string(typ)] == "" {
		var err error
		if catalog, err = a.client.ListWorkItemTypes(ctx, a.cfg.ProjectKey); err != nil {
			return "", err
		}
	}

	res := ResolveType(typ, a.cfg.TypeMap, catalog)
	if res.Via == "fallback" {
		log.Warn("no matching work item type, using fallback key",
			"type", typ, "type_key", res.TypeKey, "project", a.cfg.ProjectKey)
	} else {
		log.Debug("work item type resolved", "type", typ, "type_key", res.TypeKey, "via", res.Via)
	}
	return res.TypeKey, nil
}

// BuildFields fills every resolvable slot from the event and logs the rest.
// Pairs come out in slot table order.
func BuildFields(event domain.Event, schema []Field, log *slog.Logger) []FieldValue {
	resolved, missing := ResolveFields(schema)
	for _, slot := range missing {
		log.Info("no field for slot", "slot", slot)
	}

	values := map[Slot]any{
		SlotHeadline:       event.Title,
		SlotActionSummary:  event.Summary,
		SlotAnalysis:       analysisText(event),
		SlotScheduledStart: event.EventDate.UnixMilli(),
		SlotTag:            string(event.Type),
		SlotSourceLink:     event.SourceURL(),
	}

	pairs := []FieldValue{}
	for _, sc := range SlotCandidates {
		key, ok := resolved[sc.Slot]
		if !ok {
			continue
		}
		if s, isString := values[sc.Slot].(string); isString && s == "" {
			continue
		}
		pairs = append(pairs, FieldValue{FieldKey: key, FieldValue: values[sc.Slot]})
	}
	return pairs
}

func analysisText(e domain.Event) string {
	s := fmt.Sprintf("Classified as %s (confidence %.2f) from %s.", e.Type, e.ConfidenceScore, e.Source)
	if len(e.Entities) > 0 {
		s += " Entities: " + strings.Join(e.Entities, ", ") + "."
	}
	return s
}

// SyncTransition mirrors a node change when the event has a work item and
// a transition id is configured for the node. Anything else is logged.
func (a *Adapter) SyncTransition(ctx context.Context, event domain.Event, p domain.Process, toNode string) error {
	log := a.logger.With("event_id", event.ID, "process_id", p.ID, "node", toNode)

	workItemID, ok := workItemOf(event)
	if !ok {
		log.Debug("transition not mirrored, event has no work item")
		return nil
	}
	transitionID := a.cfg.Transitions[string(event.Type)][toNode]
	if transitionID == "" {
		log.Debug("transition not mirrored, no transition configured")
		return nil
	}
	if a.client == nil {
		log.Info("mock transition", "work_item_id", workItemID, "transition_id", transitionID)
		return nil
	}
	if a.cfg.ProjectKey == "" {
		return domain.NewConfigError(event.ID, "meegle project key is not configured")
	}

	if err := a.client.TransitionWorkItem(ctx, a.cfg.ProjectKey, workItemID, transitionID); err != nil {
		return domain.NewSyncError(event.ID, "transition failed", err)
	}
	log.Info("transition mirrored", "work_item_id", workItemID, "transition_id", transitionID)
	return nil
}

// recordSuccess marks the event synced. A nil workItemID keeps the stored id.
func (a *Adapter) recordSuccess(ctx context.Context, eventID string, workItemID *string) error {
	if err := a.recorder.UpdateEventSync(ctx, eventID, domain.SyncSuccess, nil, workItemID, a.clock.Now()); err != nil {
		return domain.NewPersistenceError("record sync success", err)
	}
	return nil
}

func (a *Adapter) recordFailure(ctx context.Context, eventID, msg string) error {
	if err := a.recorder.UpdateEventSync(ctx, eventID, domain.SyncFailed, &msg, nil, a.clock.Now()); err != nil {
		return domain.NewPersistenceError("record sync failure", err)
	}
	return nil
}
