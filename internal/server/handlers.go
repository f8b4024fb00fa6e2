package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shawcc/trumpsword/internal/domain"
	"github.com/shawcc/trumpsword/internal/store"
	"github.com/shawcc/trumpsword/internal/workflow"
)

type collectStats struct {
	TotalProcessed int      `json:"total_processed"`
	Dropped        int      `json:"dropped"`
	Errors         []string `json:"errors"`
}

type collectResponse struct {
	Success bool         `json:"success"`
	Stats   collectStats `json:"stats"`
}

type retryStats struct {
	SuccessCount int      `json:"successCount"`
	FailCount    int      `json:"failCount"`
	Errors       []string `json:"errors"`
}

type retryResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Stats   retryStats `json:"stats"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type processDetail struct {
	domain.Process
	History []domain.StatusHistoryEntry `json:"history"`
}

type statusRequest struct {
	NextNode       string          `json:"nextNode"`
	Status         string          `json:"status"`
	TransitionData json.RawMessage `json:"transitionData"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.CollectAll(r.Context())
	if err != nil {
		s.writeFailure(w, "collect", err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{
		Success: true,
		Stats:   collectStats{TotalProcessed: res.Added, Dropped: res.Dropped, Errors: res.Errors},
	})
}

func (s *Server) handleCollectHistorical(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "since is required (YYYY-MM-DD)")
		return
	}
	since, err := time.Parse(DateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q: want YYYY-MM-DD", raw))
		return
	}

	res, err := s.pipeline.CollectHistorical(r.Context(), since)
	if err != nil {
		s.writeFailure(w, "collect historical", err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{
		Success: true,
		Stats:   collectStats{TotalProcessed: res.Added, Dropped: res.Dropped, Errors: res.Errors},
	})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.RetryPending(r.Context())
	if err != nil {
		s.writeFailure(w, "retry", err)
		return
	}
	writeJSON(w, http.StatusOK, retryResponse{
		Success: true,
		Message: fmt.Sprintf("Retried %d events", res.SuccessCount+res.FailCount),
		Stats:   retryStats{SuccessCount: res.SuccessCount, FailCount: res.FailCount, Errors: res.Errors},
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.pipeline.Reset(r.Context())
	if err != nil {
		s.writeFailure(w, "reset", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: fmt.Sprintf("Deleted %d events", n),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	pg, n, ok := page(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "page and limit must be positive integers")
		return
	}
	q := r.URL.Query()
	f := store.EventFilter{
		Type:       domain.EventType(q.Get("type")),
		Source:     domain.Source(q.Get("source")),
		SyncStatus: domain.SyncStatus(q.Get("status")),
		Page:       pg,
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown type %q", f.Type))
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), f)
	if err != nil {
		s.writeFailure(w, "list events", domain.NewPersistenceError("list events", err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Event]{Data: events, Count: total, Page: n, Limit: pg.Limit})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEvent(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		s.writeFailure(w, "get event", domain.NewPersistenceError("get event", err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	pg, n, ok := page(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "page and limit must be positive integers")
		return
	}
	q := r.URL.Query()
	f := store.ProcessFilter{
		Status:    domain.ProcessStatus(q.Get("status")),
		EventType: domain.EventType(q.Get("type")),
		Page:      pg,
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", f.Status))
		return
	}

	procs, total, err := s.store.ListProcesses(r.Context(), f)
	if err != nil {
		s.writeFailure(w, "list processes", domain.NewPersistenceError("list processes", err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.ProcessView]{Data: procs, Count: total, Page: n, Limit: pg.Limit})
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProcess(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Process not found")
		return
	}
	if err != nil {
		s.writeFailure(w, "get process", domain.NewPersistenceError("get process", err))
		return
	}
	history, err := s.store.ListHistory(r.Context(), id)
	if err != nil {
		s.writeFailure(w, "list history", domain.NewPersistenceError("list history", err))
		return
	}
	writeJSON(w, http.StatusOK, processDetail{Process: p, History: history})
}

func (s *Server) handleProcessStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := r.PathValue("id")

	var (
		p   domain.Process
		err error
	)
	switch {
	case req.NextNode != "":
		p, err = s.workflow.Transition(r.Context(), id, req.NextNode, req.TransitionData)
	case req.Status != "":
		p, err = s.workflow.SetStatus(r.Context(), id, domain.ProcessStatus(req.Status), req.TransitionData)
	default:
		writeError(w, http.StatusBadRequest, "nextNode or status is required")
		return
	}

	switch {
	case workflow.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Process not found")
	case workflow.IsInvalid(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case workflow.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeFailure(w, "update process", err)
	default:
		writeJSON(w, http.StatusOK, struct {
			Success bool           `json:"success"`
			Data    domain.Process `json:"data"`
		}{true, p})
	}
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.workflow.Templates(r.Context())
	if err != nil {
		s.writeFailure(w, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []domain.WorkflowTemplate `json:"data"`
	}{templates})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}{false, "service unavailable", err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success  bool   `json:"success"`
		Message  string `json:"message"`
		Database string `json:"database"`
	}{true, "ok", "connected"})
}
