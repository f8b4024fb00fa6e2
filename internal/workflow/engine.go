package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/store"
)

// Syncer mirrors events and their processes into the external tracker.
//
// Sync must leave the event's sync status at success or failed and return
// a non-nil error exactly when it recorded failed (configuration failures
// excepted, which are recorded but not returned).
type Syncer interface {
	Sync(ctx context.Context, event domain.Event) error
	SyncTransition(ctx context.Context, event domain.Event, p domain.Process, toNode string) error
}

// Engine owns the Process and StatusHistoryEntry lifecycle.
//
// Every operation runs sequentially on the caller's goroutine. The store
// serializes writers, and node changes are compare-and-set on the current
// node so two transitions of the same process cannot both apply.
type Engine struct {
	store  *store.Store
	syncer Syncer
	ids    domain.IDGenerator
	clock  domain.Clock
	logger *slog.Logger

	templates func() ([]Definition, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for process and template ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the time source. Default: SystemClock.
func WithClock(c domain.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTemplates replaces the built-in template definitions.
func WithTemplates(defs []Definition) Option {
	return func(e *Engine) {
		e.templates = func() ([]Definition, error) { return defs, nil }
	}
}

// New creates an Engine backed by s that mirrors work through syncer.
func New(s *store.Store, syncer Syncer, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		syncer:    syncer,
		ids:       domain.UUIDv7Generator{},
		clock:     domain.SystemClock{},
		logger:    slog.Default(),
		templates: BuiltinTemplates,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnsureTemplates inserts every template definition whose type has no
// template yet. Existing templates are never modified. Returns the number
// of templates written.
func (e *Engine) EnsureTemplates(ctx context.Context) (int, error) {
	defs, err := e.templates()
	if err != nil {
		return 0, fmt.Errorf("load templates: %w", err)
	}

	inserted := 0
	for _, def := range defs {
		ok, err := e.store.InsertTemplateIfAbsent(ctx, domain.WorkflowTemplate{
			ID:              e.ids.Generate(),
			Type:            def.Type,
			Name:            def.Name,
			Nodes:           def.Nodes,
			TransitionRules: def.TransitionRules,
			CreatedAt:       e.clock.Now(),
		})
		if err != nil {
			return inserted, domain.NewPersistenceError("ensure templates", err)
		}
		if ok {
			inserted++
			e.logger.Debug("template created", "type", def.Type, "name", def.Name)
		}
	}
	return inserted, nil
}

// StartNew creates the Process for a freshly inserted event and syncs it.
// The event must not already have a Process. Nothing happens when the event
// type has no template.
func (e *Engine) StartNew(ctx context.Context, event domain.Event) error {
	p, created, err := e.ensureProcess(ctx, event)
	if err != nil || p == nil {
		return err
	}
	if !created {
		return domain.NewPersistenceError("start new process",
			fmt.Errorf("event %s already has process %s: %w", event.ID, p.ID, store.ErrDuplicate))
	}
	return e.sync(ctx, event)
}

// ResyncExisting re-dispatches an event that is already stored. The event
// is reloaded so the latest work item id is used, its Process is reused
// (or created when missing), and external sync is always attempted again.
func (e *Engine) ResyncExisting(ctx context.Context, event domain.Event) error {
	current, err := e.store.GetEvent(ctx, event.ID)
	if err != nil {
		return domain.NewPersistenceError("reload event", err)
	}
	return e.StartProcess(ctx, current)
}

// StartProcess makes sure the event has a Process and then syncs the event.
// An existing Process is reused without adding history. The Process is
// kept whatever the sync outcome.
func (e *Engine) StartProcess(ctx context.Context, event domain.Event) error {
	p, _, err := e.ensureProcess(ctx, event)
	if err != nil || p == nil {
		return err
	}
	return e.sync(ctx, event)
}

// ensureProcess returns the event's Process, creating it at the template's
// first node when absent. A nil Process with a nil error means no template
// exists for the event type.
func (e *Engine) ensureProcess(ctx context.Context, event domain.Event) (*domain.Process, bool, error) {
	existing, err := e.store.GetProcessByEventID(ctx, event.ID)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, domain.NewPersistenceError("get process", err)
	}

	tmpl, err := e.templateFor(ctx, event.Type)
	if err != nil {
		return nil, false, err
	}
	if tmpl == nil {
		e.logger.Warn("no workflow template for event type",
			"event_id", event.ID, "type", event.Type)
		return nil, false, nil
	}

	now := e.clock.Now()
	p := domain.Process{
		ID:          e.ids.Generate(),
		EventID:     event.ID,
		TemplateID:  tmpl.ID,
		CurrentNode: tmpl.Nodes[0],
		Status:      domain.ProcessActive,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	initial := domain.StatusHistoryEntry{
		ToNode:         tmpl.Nodes[0],
		TransitionData: json.RawMessage(`{"reason":"Initial creation"}`),
		Timestamp:      now,
	}

	err = e.store.CreateProcess(ctx, p, initial)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with another writer; use theirs.
		existing, err := e.store.GetProcessByEventID(ctx, event.ID)
		if err != nil {
			return nil, false, domain.NewPersistenceError("get process", err)
		}
		return &existing, false, nil
	}
	if err != nil {
		return nil, false, domain.NewPersistenceError("create process", err)
	}

	e.logger.Info("process started",
		"event_id", event.ID, "process_id", p.ID, "node", p.CurrentNode)
	return &p, true, nil
}

// templateFor looks up the template for typ, running EnsureTemplates once
// when it is missing. Returns nil when the type still has no template.
func (e *Engine) templateFor(ctx context.Context, typ domain.EventType) (*domain.WorkflowTemplate, error) {
	tmpl, err := e.store.GetTemplateByType(ctx, typ)
	if err == nil {
		return &tmpl, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, domain.NewPersistenceError("get template", err)
	}

	if _, err := e.EnsureTemplates(ctx); err != nil {
		return nil, err
	}
	tmpl, err = e.store.GetTemplateByType(ctx, typ)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewPersistenceError("get template", err)
	}
	return &tmpl, nil
}

func (e *Engine) sync(ctx context.Context, event domain.Event) error {
	if e.syncer == nil {
		return nil
	}
	return e.syncer.Sync(ctx, event)
}

// Transition moves a process to nextNode and records the move. nextNode must
// be one of the template's nodes; stage order is not enforced. Mirroring the
// move into the tracker is best effort.
func (e *Engine) Transition(ctx context.Context, processID, nextNode string, data json.RawMessage) (domain.Process, error) {
	p, tmpl, err := e.loadProcess(ctx, processID)
	if err != nil {
		return domain.Process{}, err
	}
	if !tmpl.HasNode(nextNode) {
		return domain.Process{}, &Error{
			Code:      ErrCodeInvalidNode,
			Message:   fmt.Sprintf("node %q is not part of %q", nextNode, tmpl.Name),
			ProcessID: processID,
		}
	}

	now := e.clock.Now()
	err = e.store.TransitionProcess(ctx, p.ID, p.CurrentNode, nextNode, domain.StatusHistoryEntry{
		TransitionData: data,
		Timestamp:      now,
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.Process{}, &Error{
			Code:      ErrCodeConcurrentTransition,
			Message:   fmt.Sprintf("process left node %q during transition", p.CurrentNode),
			ProcessID: processID,
		}
	}
	if err != nil {
		return domain.Process{}, domain.NewPersistenceError("transition process", err)
	}

	e.logger.Info("process transitioned",
		"process_id", p.ID, "from", p.CurrentNode, "to", nextNode)
	p.CurrentNode = nextNode
	p.UpdatedAt = now

	if e.syncer != nil {
		event, err := e.store.GetEvent(ctx, p.EventID)
		if err != nil {
			e.logger.Warn("transition sync skipped", "process_id", p.ID, "error", err)
			return p, nil
		}
		if err := e.syncer.SyncTransition(ctx, event, p, nextNode); err != nil {
			e.logger.Warn("transition sync failed", "process_id", p.ID, "event_id", event.ID, "error", err)
		}
	}
	return p, nil
}

// SetStatus changes a process's lifecycle status and records it in history
// with the node unchanged. The recorded data always carries the new status.
func (e *Engine) SetStatus(ctx context.Context, processID string, status domain.ProcessStatus, data json.RawMessage) (domain.Process, error) {
	if !status.Valid() {
		return domain.Process{}, &Error{
			Code:      ErrCodeInvalidStatus,
			Message:   fmt.Sprintf("unknown status %q", status),
			ProcessID: processID,
		}
	}
	p, _, err := e.loadProcess(ctx, processID)
	if err != nil {
		return domain.Process{}, err
	}

	payload, err := withStatus(data, status)
	if err != nil {
		return domain.Process{}, &Error{
			Code:      ErrCodeInvalidStatus,
			Message:   "transition data must be a JSON object",
			ProcessID: processID,
		}
	}

	now := e.clock.Now()
	node := p.CurrentNode
	err = e.store.UpdateProcessStatus(ctx, p.ID, status, domain.StatusHistoryEntry{
		FromNode:       &node,
		ToNode:         node,
		TransitionData: payload,
		Timestamp:      now,
	})
	if err != nil {
		return domain.Process{}, domain.NewPersistenceError("update process status", err)
	}

	e.logger.Info("process status changed", "process_id", p.ID, "from", p.Status, "to", status)
	p.Status = status
	p.UpdatedAt = now
	return p, nil
}

func (e *Engine) loadProcess(ctx context.Context, processID string) (domain.Process, domain.WorkflowTemplate, error) {
	p, err := e.store.GetProcess(ctx, processID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Process{}, domain.WorkflowTemplate{}, &Error{
			Code:      ErrCodeProcessNotFound,
			Message:   "process not found",
			ProcessID: processID,
		}
	}
	if err != nil {
		return domain.Process{}, domain.WorkflowTemplate{}, domain.NewPersistenceError("get process", err)
	}
	tmpl, err := e.store.GetTemplate(ctx, p.TemplateID)
	if err != nil {
		return domain.Process{}, domain.WorkflowTemplate{}, domain.NewPersistenceError("get template", err)
	}
	return p, tmpl, nil
}

func withStatus(data json.RawMessage, status domain.ProcessStatus) (json.RawMessage, error) {
	fields := map[string]any{}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
	}
	fields["status"] = string(status)
	return json.Marshal(fields)
}

// Templates lists stored templates.
func (e *Engine) Templates(ctx context.Context) ([]domain.WorkflowTemplate, error) {
	templates, err := e.store.ListTemplates(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("list templates", err)
	}
	return templates, nil
}
