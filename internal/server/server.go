// Package server exposes the pipeline over an HTTP JSON API.
//
// Pipeline runs triggered here share the collector with the scheduler, so
// they are serialized with scheduled runs.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shawcc/trumpsword/internal/collector"
	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/metrics"
	"github.com/shawcc/trumpsword/internal/store"
)

// DateLayout is the accepted format of the historical "since" parameter.
const DateLayout = "2006-01-02"

// Pipeline runs the batch operations.
type Pipeline interface {
	CollectAll(ctx context.Context) (collector.Result, error)
	CollectHistorical(ctx context.Context, since time.Time) (collector.Result, error)
	RetryPending(ctx context.Context) (collector.RetryResult, error)
	Reset(ctx context.Context) (int64, error)
}

// Workflow moves processes and lists templates.
type Workflow interface {
	Transition(ctx context.Context, processID, nextNode string, data json.RawMessage) (domain.Process, error)
	SetStatus(ctx context.Context, processID string, status domain.ProcessStatus, data json.RawMessage) (domain.Process, error)
	Templates(ctx context.Context) ([]domain.WorkflowTemplate, error)
}

// Server routes API requests.
type Server struct {
	store    *store.Store
	pipeline Pipeline
	workflow Workflow
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mux *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(s *Server) { s.logger = l } }

// New creates a Server and registers its routes.
func New(st *store.Store, p Pipeline, w Workflow, opts ...Option) *Server {
	s := &Server{
		store:    st,
		pipeline: p,
		workflow: w,
		logger:   slog.Default(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("POST /api/collect", "collect", s.handleCollect)
	s.handle("POST /api/collect/historical", "collect_historical", s.handleCollectHistorical)
	s.handle("POST /api/sync/retry", "sync_retry", s.handleRetry)
	s.handle("POST /api/reset", "reset", s.handleReset)

	s.handle("GET /api/events", "events", s.handleListEvents)
	s.handle("GET /api/events/{id}", "event", s.handleGetEvent)
	s.handle("GET /api/processes", "processes", s.handleListProcesses)
	s.handle("GET /api/processes/{id}", "process", s.handleGetProcess)
	s.handle("PUT /api/processes/{id}/status", "process_status", s.handleProcessStatus)
	s.handle("GET /api/templates", "templates", s.handleTemplates)
	s.handle("GET /api/health", "health", s.handleHealth)

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "API not found")
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handle(pattern, name string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.ObserveHTTP(name, r.Method, rec.status, start)
		s.logger.Debug("request served", "handler", name, "method", r.Method,
			"status", rec.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writeFailure reports an error the request could not recover from.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err, "kind", domain.KindOf(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

// page reads the 1-based "page" and "limit" query parameters.
func page(r *http.Request) (store.Page, int, bool) {
	q := r.URL.Query()
	p, limit := 1, store.DefaultPageLimit
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return store.Page{}, 0, false
		}
		p = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return store.Page{}, 0, false
		}
		limit = min(n, store.MaxPageLimit)
	}
	return store.Page{Limit: limit, Offset: (p - 1) * limit}, p, true
}
