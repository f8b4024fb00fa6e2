// Package collector drives every source adapter through ingestion and
// owns the batch operations built on top of it: historical backfill,
// sync retry and the administrative reset.
//
// Runs are serialized. A scheduled collection and an API-triggered one
// never interleave; the second waits for the first to finish.
//
// Within a run, sources are visited in configuration order and items in
// the order their source emitted them. A failing source or item is
// recorded in the result's Errors and the run moves on.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/ingest"
	"github.com/shawcc/trumpsword/internal/metrics"
	"github.com/shawcc/trumpsword/internal/source"
	"github.com/shawcc/trumpsword/internal/store"
)

// DefaultRetryBatch caps how many events one RetryPending pass touches.
const DefaultRetryBatch = 50

// Ingester is the per-item pipeline.
type Ingester interface {
	Ingest(ctx context.Context, item domain.RawItem) (ingest.Outcome, error)
	Redispatch(ctx context.Context, event domain.Event) error
}

// Result summarizes a collection run.
type Result struct {
	Added   int      `json:"total_processed"`
	Dropped int      `json:"dropped"`
	Errors  []string `json:"errors"`
}

// RetryResult summarizes a RetryPending pass.
type RetryResult struct {
	SuccessCount int      `json:"successCount"`
	FailCount    int      `json:"failCount"`
	Errors       []string `json:"errors"`
}

// Collector runs adapters through an Ingester.
type Collector struct {
	mu sync.Mutex

	store      *store.Store
	adapters   []source.Adapter
	ingester   Ingester
	retryBatch int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Collector.
type Option func(*Collector)

// WithRetryBatch sets the RetryPending batch size. Default: DefaultRetryBatch.
func WithRetryBatch(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.retryBatch = n
		}
	}
}

func WithLogger(l *slog.Logger) Option      { return func(c *Collector) { c.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(c *Collector) { c.metrics = m } }

// New creates a Collector over adapters.
func New(s *store.Store, ing Ingester, adapters []source.Adapter, opts ...Option) *Collector {
	c := &Collector{
		store:      s,
		adapters:   adapters,
		ingester:   ing,
		retryBatch: DefaultRetryBatch,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sources lists the configured adapters by name.
func (c *Collector) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(c.adapters))
	for _, a := range c.adapters {
		out = append(out, a.Name())
	}
	return out
}

// CollectAll fetches the latest items from every source and ingests them.
// The returned error is non-nil only when the store is unavailable.
func (c *Collector) CollectAll(ctx context.Context) (Result, error) {
	return c.run(ctx, "collect", func(ctx context.Context, a source.Adapter) ([]domain.RawItem, error) {
		return a.Fetch(ctx)
	})
}

// CollectHistorical backfills every source from since onward. Each adapter
// bounds its own crawl.
func (c *Collector) CollectHistorical(ctx context.Context, since time.Time) (Result, error) {
	return c.run(ctx, "historical", func(ctx context.Context, a source.Adapter) ([]domain.RawItem, error) {
		return a.FetchHistorical(ctx, since)
	})
}

type fetchFunc func(ctx context.Context, a source.Adapter) ([]domain.RawItem, error)

func (c *Collector) run(ctx context.Context, kind string, fetch fetchFunc) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.ObserveRun(kind, time.Now())

	res := Result{Errors: []string{}}
	if err := c.store.Ping(ctx); err != nil {
		return res, domain.NewPersistenceError("store unavailable", err)
	}

	c.logger.Info("collection started", "kind", kind, "sources", len(c.adapters))
	for _, a := range c.adapters {
		name := a.Name()
		log := c.logger.With("source", name)

		items, err := fetch(ctx, a)
		if err != nil {
			serr := domain.NewSourceError(name, err)
			log.Error("source fetch failed", "error", err)
			c.metrics.SourceError(string(name))
			res.Errors = append(res.Errors, serr.Error())
			continue
		}
		log.Debug("source fetched", "items", len(items))

		for _, item := range items {
			outcome, err := c.ingester.Ingest(ctx, item)
			if err != nil {
				log.Error("item failed", "title", item.Title, "error", err)
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s: %v", name, item.Title, err))
				if domain.KindOf(err) == domain.ErrKindPersistence && c.store.Ping(ctx) != nil {
					return res, err
				}
				continue
			}
			if outcome == ingest.OutcomeDropped {
				res.Dropped++
				continue
			}
			res.Added++
		}
	}

	c.logger.Info("collection finished", "kind", kind,
		"added", res.Added, "dropped", res.Dropped, "errors", len(res.Errors))
	return res, nil
}

// RetryPending re-dispatches up to the batch size of events whose last sync
// did not succeed, most recent first.
func (c *Collector) RetryPending(ctx context.Context) (RetryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.ObserveRun("retry", time.Now())

	res := RetryResult{Errors: []string{}}
	events, err := c.store.ListUnsynced(ctx, c.retryBatch)
	if err != nil {
		return res, domain.NewPersistenceError("list unsynced events", err)
	}
	c.logger.Info("retrying unsynced events", "count", len(events))

	for _, e := range events {
		log := c.logger.With("event_id", e.ID, "external_id", e.ExternalID)
		if err := c.retryOne(ctx, e); err != nil {
			log.Warn("retry failed", "error", err)
			res.FailCount++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.ExternalID, err))
			continue
		}
		log.Debug("retry succeeded")
		res.SuccessCount++
	}

	c.logger.Info("retry finished", "success", res.SuccessCount, "failed", res.FailCount)
	return res, nil
}

// retryOne treats a redispatch that returned nil but still left the event
// failed (a configuration problem) as a failure.
func (c *Collector) retryOne(ctx context.Context, e domain.Event) error {
	if err := c.ingester.Redispatch(ctx, e); err != nil {
		return err
	}
	current, err := c.store.GetEvent(ctx, e.ID)
	if err != nil {
		return domain.NewPersistenceError("reload event", err)
	}
	if current.SyncStatus == domain.SyncFailed {
		msg := "sync failed"
		if current.SyncError != nil {
			msg = *current.SyncError
		}
		return errors.New(msg)
	}
	return nil
}

// Reset deletes every event together with its process and history.
// Templates are kept. Returns the number of events removed.
func (c *Collector) Reset(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.metrics.ObserveRun("reset", time.Now())

	n, err := c.store.DeleteAllEvents(ctx)
	if err != nil {
		return 0, domain.NewPersistenceError("reset", err)
	}
	c.logger.Warn("all events deleted", "count", n)
	return n, nil
}
