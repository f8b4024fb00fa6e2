package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shawcc/trumpsword/internal/domain"
)

const processColumns = `p.id, p.event_id, p.template_id, p.current_node, p.status, p.started_at, p.updated_at`

// ProcessFilter narrows ListProcesses. Empty fields match everything.
type ProcessFilter struct {
	Status    domain.ProcessStatus
	EventType domain.EventType
	Page
}

// CreateProcess atomically writes a process and its initial history entry.
// Returns ErrDuplicate if the event already has a process.
func (s *Store) CreateProcess(ctx context.Context, p domain.Process, initial domain.StatusHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create process: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processes (id, event_id, template_id, current_node, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.EventID, p.TemplateID, p.CurrentNode, string(p.Status), formatTime(p.StartedAt), formatTime(p.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create process for event %s: %w", p.EventID, ErrDuplicate)
		}
		return fmt.Errorf("create process for event %s: %w", p.EventID, err)
	}

	initial.ProcessID = p.ID
	if err := appendHistory(ctx, tx, initial); err != nil {
		return fmt.Errorf("create process: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create process: commit: %w", err)
	}
	return nil
}

// TransitionProcess moves a process from fromNode to toNode and appends the
// history entry in the same transaction. Returns ErrConflict if the process
// is no longer at fromNode.
func (s *Store) TransitionProcess(ctx context.Context, id, fromNode, toNode string, entry domain.StatusHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transition process: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE processes SET current_node = ?, updated_at = ?
		WHERE id = ? AND current_node = ?
	`, toNode, formatTime(entry.Timestamp), id, fromNode)
	if err != nil {
		return fmt.Errorf("transition process %s: %w", id, err)
	}
	if err := expectOneRow(res, id); err != nil {
		return fmt.Errorf("transition process: %w", err)
	}

	entry.ProcessID = id
	from := fromNode
	entry.FromNode = &from
	entry.ToNode = toNode
	if err := appendHistory(ctx, tx, entry); err != nil {
		return fmt.Errorf("transition process: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transition process: commit: %w", err)
	}
	return nil
}

// UpdateProcessStatus changes a process status and appends the history entry
// in the same transaction.
func (s *Store) UpdateProcessStatus(ctx context.Context, id string, status domain.ProcessStatus, entry domain.StatusHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update process status: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE processes SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(entry.Timestamp), id)
	if err != nil {
		return fmt.Errorf("update process status %s: %w", id, err)
	}
	if err := expectOneRow(res, id); err != nil {
		return fmt.Errorf("update process status: %w", err)
	}

	entry.ProcessID = id
	if err := appendHistory(ctx, tx, entry); err != nil {
		return fmt.Errorf("update process status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update process status: commit: %w", err)
	}
	return nil
}

// GetProcess returns a process by primary key.
func (s *Store) GetProcess(ctx context.Context, id string) (domain.Process, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes p WHERE p.id = ?`, id)
	p, err := scanProcess(row)
	if err != nil {
		return domain.Process{}, fmt.Errorf("get process %s: %w", id, err)
	}
	return p, nil
}

// GetProcessByEventID returns the process attached to an event.
func (s *Store) GetProcessByEventID(ctx context.Context, eventID string) (domain.Process, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes p WHERE p.event_id = ?`, eventID)
	p, err := scanProcess(row)
	if err != nil {
		return domain.Process{}, fmt.Errorf("get process for event %s: %w", eventID, err)
	}
	return p, nil
}

// ListProcesses returns a page of processes joined with their event and
// template, newest first, plus the total number of matching rows.
func (s *Store) ListProcesses(ctx context.Context, f ProcessFilter) ([]domain.ProcessView, int, error) {
	var w where
	w.eq("p.status", string(f.Status))
	w.eq("e.type", string(f.EventType))

	from := `
		FROM processes p
		JOIN events e ON e.id = p.event_id
		JOIN workflow_templates t ON t.id = p.template_id`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count processes: %w", err)
	}

	args := append(append([]any{}, w.args...), f.limit(), f.offset())
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+processColumns+`, e.title, e.type, t.name`+from+w.String()+`
		ORDER BY p.started_at DESC, p.id ASC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	views := []domain.ProcessView{}
	for rows.Next() {
		var (
			v                domain.ProcessView
			status, typ      string
			started, updated string
		)
		if err := rows.Scan(
			&v.ID, &v.EventID, &v.TemplateID, &v.CurrentNode, &status, &started, &updated,
			&v.EventTitle, &typ, &v.TemplateName,
		); err != nil {
			return nil, 0, fmt.Errorf("scan process view: %w", err)
		}
		v.Status = domain.ProcessStatus(status)
		v.EventType = domain.EventType(typ)
		if v.StartedAt, err = parseTime(started); err != nil {
			return nil, 0, err
		}
		if v.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, 0, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate processes: %w", err)
	}
	return views, total, nil
}

// ListHistory returns a process's history in append order.
func (s *Store) ListHistory(ctx context.Context, processID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process_id, from_node, to_node, transition_data, timestamp
		FROM status_history
		WHERE process_id = ?
		ORDER BY id ASC
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("list history %s: %w", processID, err)
	}
	defer rows.Close()

	entries := []domain.StatusHistoryEntry{}
	for rows.Next() {
		var (
			h        domain.StatusHistoryEntry
			from     sql.NullString
			data, ts string
		)
		if err := rows.Scan(&h.ID, &h.ProcessID, &from, &h.ToNode, &data, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.FromNode = stringPtr(from)
		h.TransitionData = json.RawMessage(data)
		if h.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, h domain.StatusHistoryEntry) error {
	data := string(h.TransitionData)
	if data == "" {
		data = "{}"
	}
	ts := h.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO status_history (process_id, from_node, to_node, transition_data, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, h.ProcessID, nullString(h.FromNode), h.ToNode, data, formatTime(ts))
	if err != nil {
		return fmt.Errorf("append history for %s: %w", h.ProcessID, err)
	}
	return nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrConflict)
	}
	return nil
}

func scanProcess(r rowScanner) (domain.Process, error) {
	var (
		p                        domain.Process
		status, started, updated string
	)
	err := r.Scan(&p.ID, &p.EventID, &p.TemplateID, &p.CurrentNode, &status, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Process{}, ErrNotFound
	}
	if err != nil {
		return domain.Process{}, fmt.Errorf("scan process: %w", err)
	}
	p.Status = domain.ProcessStatus(status)
	if p.StartedAt, err = parseTime(started); err != nil {
		return domain.Process{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Process{}, err
	}
	return p, nil
}
