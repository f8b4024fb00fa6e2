package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shawcc/trumpsword/internal/classify"
	"github.com/shawcc/trumpsword/internal/collector"
	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/ingest"
	"github.com/shawcc/trumpsword/internal/meegle"
	"github.com/shawcc/trumpsword/internal/source"
	"github.com/shawcc/trumpsword/internal/store"
	"github.com/shawcc/trumpsword/internal/testutil"
	"github.com/shawcc/trumpsword/internal/workflow"
)

// ErrTrackerUnavailable is the failure injected by fail_sync steps.
var ErrTrackerUnavailable = errors.New("tracker unavailable")

// Harness is the scenario execution environment. Every field is rebuilt
// for each Run.
type Harness struct {
	store      *store.Store
	engine     *workflow.Engine
	ingestor   *ingest.Ingestor
	collector  *collector.Collector
	classifier *countingClassifier
	syncer     *testutil.RecordingSyncer // nil in mock mode
	requests   *atomic.Int64            // tracker hits in mock mode
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. The error is non-nil only when the scenario could not be run at
// all; failed expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock(time.Time{}, time.Second)
	h := &Harness{
		store:      st,
		classifier: &countingClassifier{inner: classify.New(classify.WithLogger(logger))},
		requests:   &atomic.Int64{},
	}

	var syncer workflow.Syncer
	if scenario.Tracker == TrackerMock {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.requests.Add(1)
			http.Error(w, "unexpected tracker request", http.StatusTeapot)
		}))
		defer srv.Close()
		syncer = meegle.New(meegle.Config{
			BaseURL:  srv.URL,
			TokenURL: srv.URL + "/auth",
		}, st, meegle.WithClock(clock), meegle.WithLogger(logger))
	} else {
		h.syncer = testutil.NewRecordingSyncer(st)
		h.syncer.Clock = clock
		syncer = h.syncer
	}

	h.engine = workflow.New(st, syncer,
		workflow.WithIDGenerator(domain.NewSequenceGenerator("wf")),
		workflow.WithClock(clock),
		workflow.WithLogger(logger))
	if _, err := h.engine.EnsureTemplates(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure templates: %w", err)
	}

	h.ingestor = ingest.New(st, h.classifier, h.engine,
		ingest.WithIDGenerator(domain.NewSequenceGenerator("evt")),
		ingest.WithClock(clock),
		ingest.WithLogger(logger))

	adapters := make([]source.Adapter, 0, len(scenario.Sources))
	for _, def := range scenario.Sources {
		adapters = append(adapters, staticSource(def))
	}
	h.collector = collector.New(st, h.ingestor, adapters, collector.WithLogger(logger))

	result := NewResult()
	for i, step := range scenario.Steps {
		out, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		result.AddStep(step.Op, out)
		for _, msg := range matchSubset(step.Expect, out) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i+1, step.Op, msg))
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func staticSource(def SourceDef) *source.Static {
	src := domain.Source(def.Name)
	s := &source.Static{Source: src}
	if def.Error != "" {
		s.Err = errors.New(def.Error)
	}
	for _, item := range def.Items {
		s.Items = append(s.Items, item.RawItem(src))
	}
	return s
}

// execute runs one step. Expected failures (rejected transitions, sync
// errors) are part of the returned result; only harness failures are
// returned as errors.
func (h *Harness) execute(ctx context.Context, step Step) (map[string]any, error) {
	switch step.Op {
	case OpCollect:
		res, err := h.collector.CollectAll(ctx)
		if err != nil {
			return nil, err
		}
		return collectResult(res), nil

	case OpHistorical:
		since, _ := time.Parse(time.DateOnly, step.Since)
		res, err := h.collector.CollectHistorical(ctx, since)
		if err != nil {
			return nil, err
		}
		return collectResult(res), nil

	case OpIngest:
		outcome, err := h.ingestor.Ingest(ctx, step.Item.RawItem(domain.Source(step.Source)))
		out := map[string]any{"outcome": string(outcome)}
		if err != nil {
			out["error"] = err.Error()
		}
		return out, nil

	case OpRetry:
		res, err := h.collector.RetryPending(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success_count": res.SuccessCount,
			"fail_count":    res.FailCount,
			"errors":        res.Errors,
		}, nil

	case OpTransition, OpSetStatus:
		return h.move(ctx, step)

	case OpFailSync, OpHealSync:
		var cause error
		if step.Op == OpFailSync {
			cause = ErrTrackerUnavailable
		}
		for _, id := range step.ExternalIDs {
			h.syncer.FailWith(id, cause)
		}
		return map[string]any{"external_ids": step.ExternalIDs}, nil

	case OpReset:
		n, err := h.collector.Reset(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": n}, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func collectResult(res collector.Result) map[string]any {
	return map[string]any{
		"added":   res.Added,
		"dropped": res.Dropped,
		"errors":  res.Errors,
	}
}

// move runs a transition or status change on the process of the event
// identified by step.ExternalID.
func (h *Harness) move(ctx context.Context, step Step) (map[string]any, error) {
	event, err := h.store.GetEventByExternalID(ctx, step.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", step.ExternalID, err)
	}
	p, err := h.store.GetProcessByEventID(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("process for %s: %w", step.ExternalID, err)
	}

	data := json.RawMessage(`{}`)
	if step.Op == OpTransition {
		p, err = h.engine.Transition(ctx, p.ID, step.Node, data)
	} else {
		p, err = h.engine.SetStatus(ctx, p.ID, domain.ProcessStatus(step.Status), data)
	}

	var werr *workflow.Error
	if errors.As(err, &werr) {
		return map[string]any{"error_code": string(werr.Code)}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"node": p.CurrentNode, "status": string(p.Status)}, nil
}

// countingClassifier counts how often classification runs.
type countingClassifier struct {
	inner ingest.Classifier

	mu    sync.Mutex
	calls int
}

func (c *countingClassifier) Classify(ctx context.Context, item domain.RawItem) domain.Classification {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Classify(ctx, item)
}

func (c *countingClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
