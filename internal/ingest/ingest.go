// Package ingest turns raw items into stored, classified events and hands
// them to the workflow engine.
//
// An item whose external id is already stored is never reclassified or
// reinserted; it is re-dispatched through the workflow so that a failed
// sync gets another attempt.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/metrics"
	"github.com/shawcc/trumpsword/internal/notify"
	"github.com/shawcc/trumpsword/internal/store"
)

// Outcome describes what Ingest did with an item.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeResynced Outcome = "resynced"
	OutcomeDropped  Outcome = "dropped"
)

// DefaultTitle replaces an empty item title.
const DefaultTitle = "Untitled Event"

// Classifier assigns a type to a new item. It never fails.
type Classifier interface {
	Classify(ctx context.Context, item domain.RawItem) domain.Classification
}

// Workflow starts and re-dispatches event processes.
type Workflow interface {
	StartNew(ctx context.Context, event domain.Event) error
	ResyncExisting(ctx context.Context, event domain.Event) error
}

// Ingestor runs one item at a time through dedup, classification,
// persistence and workflow dispatch.
type Ingestor struct {
	store      *store.Store
	classifier Classifier
	workflow   Workflow
	ids        domain.IDGenerator
	clock      domain.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	publisher  notify.Publisher
}

// Option configures an Ingestor.
type Option func(*Ingestor)

func WithIDGenerator(g domain.IDGenerator) Option { return func(i *Ingestor) { i.ids = g } }
func WithClock(c domain.Clock) Option             { return func(i *Ingestor) { i.clock = c } }
func WithLogger(l *slog.Logger) Option            { return func(i *Ingestor) { i.logger = l } }
func WithMetrics(m *metrics.Metrics) Option       { return func(i *Ingestor) { i.metrics = m } }

// WithPublisher sends lifecycle notifications through p. Default: notify.Nop.
func WithPublisher(p notify.Publisher) Option { return func(i *Ingestor) { i.publisher = p } }

// New creates an Ingestor.
func New(s *store.Store, c Classifier, w Workflow, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:      s,
		classifier: c,
		workflow:   w,
		ids:        domain.UUIDv7Generator{},
		clock:      domain.SystemClock{},
		logger:     slog.Default(),
		publisher:  notify.Nop{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest processes one item.
//
// Items without usable key material are dropped with a nil error. Known
// items are re-dispatched with ResyncExisting. New items are classified,
// inserted with sync status pending and started with StartNew. Workflow
// and sync errors propagate after the Event has been written.
func (i *Ingestor) Ingest(ctx context.Context, item domain.RawItem) (Outcome, error) {
	if err := item.Validate(); err != nil {
		i.metrics.ItemProcessed(string(item.Source), "failed")
		return "", fmt.Errorf("ingest: %w", err)
	}

	externalID := domain.DeriveExternalID(item)
	log := i.logger.With("source", item.Source)
	if externalID == "" {
		log.Warn("item dropped: no identifying key", "title", item.Title)
		i.metrics.ItemProcessed(string(item.Source), string(OutcomeDropped))
		return OutcomeDropped, nil
	}
	log = log.With("external_id", externalID)

	existing, err := i.store.GetEventByExternalID(ctx, externalID)
	switch {
	case err == nil:
		return i.resync(ctx, existing, log)
	case !errors.Is(err, store.ErrNotFound):
		i.metrics.ItemProcessed(string(item.Source), "failed")
		return "", domain.NewPersistenceError("lookup event", err)
	}

	event, err := i.buildEvent(ctx, item, externalID)
	if err != nil {
		i.metrics.ItemProcessed(string(item.Source), "failed")
		return "", err
	}

	if err := i.store.InsertEvent(ctx, event); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Another writer inserted the same identity first.
			existing, getErr := i.store.GetEventByExternalID(ctx, externalID)
			if getErr == nil {
				return i.resync(ctx, existing, log)
			}
		}
		i.metrics.ItemProcessed(string(item.Source), "failed")
		return "", domain.NewPersistenceError("insert event", err)
	}

	log.Info("event created", "event_id", event.ID, "type", event.Type,
		"confidence", event.ConfidenceScore)
	i.metrics.ItemProcessed(string(item.Source), string(OutcomeCreated))
	i.publish(ctx, notify.SubjectEventCreated, event, nil)

	err = i.workflow.StartNew(ctx, event)
	i.afterSync(ctx, event.ID, err)
	return OutcomeCreated, err
}

func (i *Ingestor) resync(ctx context.Context, existing domain.Event, log *slog.Logger) (Outcome, error) {
	log.Debug("event exists, resyncing", "event_id", existing.ID)
	i.metrics.ItemProcessed(string(existing.Source), string(OutcomeResynced))
	return OutcomeResynced, i.Redispatch(ctx, existing)
}

// Redispatch re-runs the workflow and sync for a stored event without
// touching its classification.
func (i *Ingestor) Redispatch(ctx context.Context, event domain.Event) error {
	err := i.workflow.ResyncExisting(ctx, event)
	i.afterSync(ctx, event.ID, err)
	return err
}

func (i *Ingestor) buildEvent(ctx context.Context, item domain.RawItem, externalID string) (domain.Event, error) {
	raw, err := domain.MarshalCanonical(item)
	if err != nil {
		return domain.Event{}, fmt.Errorf("ingest %s: %w", externalID, err)
	}
	hash, err := domain.ContentHash(item)
	if err != nil {
		return domain.Event{}, fmt.Errorf("ingest %s: %w", externalID, err)
	}

	c := i.classifier.Classify(ctx, item)
	i.metrics.Classified(string(c.Type), c.Method)

	now := i.clock.Now()
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = DefaultTitle
	}
	date := item.Date.UTC()
	if item.Date.IsZero() {
		date = now
	}

	return domain.Event{
		ID:              i.ids.Generate(),
		ExternalID:      externalID,
		Title:           title,
		Type:            c.Type,
		Source:          item.Source,
		ConfidenceScore: c.Confidence,
		Summary:         c.Summary,
		Entities:        c.Entities,
		RawData:         raw,
		ContentHash:     hash,
		EventDate:       date,
		SyncStatus:      domain.SyncPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// afterSync reports the stored sync outcome of an event to metrics and
// subscribers.
func (i *Ingestor) afterSync(ctx context.Context, eventID string, syncErr error) {
	event, err := i.store.GetEvent(ctx, eventID)
	if err != nil {
		i.logger.Warn("reload event after sync", "event_id", eventID, "error", err)
		return
	}
	switch event.SyncStatus {
	case domain.SyncSuccess:
		i.metrics.SyncResult(string(domain.SyncSuccess))
		i.publish(ctx, notify.SubjectEventSynced, event, nil)
	case domain.SyncFailed:
		i.metrics.SyncResult(string(domain.SyncFailed))
		if syncErr == nil && event.SyncError != nil {
			syncErr = errors.New(*event.SyncError)
		}
		i.publish(ctx, notify.SubjectEventSyncFailed, event, syncErr)
	}
}

func (i *Ingestor) publish(ctx context.Context, subject string, event domain.Event, cause error) {
	if err := i.publisher.Publish(ctx, subject, notify.NewNotification(event, cause, i.clock.Now())); err != nil {
		i.logger.Warn("publish notification failed", "subject", subject, "event_id", event.ID, "error", err)
	}
}
