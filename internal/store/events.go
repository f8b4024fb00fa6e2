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

const eventColumns = `id, external_id, title, type, source, confidence_score, summary, entities,
	raw_data, content_hash, event_date, sync_status, sync_error, work_item_id, created_at, updated_at`

// EventFilter narrows ListEvents. Empty fields match everything.
type EventFilter struct {
	Type       domain.EventType
	Source     domain.Source
	SyncStatus domain.SyncStatus
	Page
}

// InsertEvent writes a new event. Returns ErrDuplicate when the external id
// (or primary key) already exists.
func (s *Store) InsertEvent(ctx context.Context, e domain.Event) error {
	entities, err := json.Marshal(nonNilStrings(e.Entities))
	if err != nil {
		return fmt.Errorf("insert event: marshal entities: %w", err)
	}
	raw := string(e.RawData)
	if raw == "" {
		raw = "{}"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.ExternalID,
		e.Title,
		string(e.Type),
		string(e.Source),
		e.ConfidenceScore,
		e.Summary,
		string(entities),
		raw,
		e.ContentHash,
		formatTime(e.EventDate),
		string(e.SyncStatus),
		nullString(e.SyncError),
		nullString(e.WorkItemID),
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert event %s: %w", e.ExternalID, ErrDuplicate)
		}
		return fmt.Errorf("insert event %s: %w", e.ExternalID, err)
	}
	return nil
}

// GetEvent retrieves an event by primary key.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// GetEventByExternalID retrieves an event by its deduplication identity.
func (s *Store) GetEventByExternalID(ctx context.Context, externalID string) (domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE external_id = ?`, externalID)
	e, err := scanEvent(row)
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event by external id %s: %w", externalID, err)
	}
	return e, nil
}

// UpdateEventSync records the outcome of a sync attempt. A nil workItemID
// leaves any previously recorded work item id in place.
func (s *Store) UpdateEventSync(
	ctx context.Context,
	id string,
	status domain.SyncStatus,
	syncErr *string,
	workItemID *string,
	now time.Time,
) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET sync_status = ?, sync_error = ?, work_item_id = COALESCE(?, work_item_id), updated_at = ?
		WHERE id = ?
	`, string(status), nullString(syncErr), nullString(workItemID), formatTime(now), id)
	if err != nil {
		return fmt.Errorf("update event sync %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event sync %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update event sync %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListEvents returns a page of events ordered by event date, newest first,
// together with the total number of matching rows.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, int, error) {
	var w where
	w.eq("type", string(f.Type))
	w.eq("source", string(f.Source))
	w.eq("sync_status", string(f.SyncStatus))

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	args := append(append([]any{}, w.args...), f.limit(), f.offset())
	events, err := s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events`+w.String()+`
		ORDER BY event_date DESC, id ASC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

// ListUnsynced returns up to limit events whose sync status is not success,
// most recently created first.
func (s *Store) ListUnsynced(ctx context.Context, limit int) ([]domain.Event, error) {
	var w where
	w.neq("sync_status", string(domain.SyncSuccess))

	events, err := s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events`+w.String()+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, append(w.args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list unsynced events: %w", err)
	}
	return events, nil
}

// DeleteAllEvents removes every event. Processes and their history go with
// them through ON DELETE CASCADE. Templates are kept.
func (s *Store) DeleteAllEvents(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("delete all events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all events: rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (domain.Event, error) {
	var (
		e                               domain.Event
		typ, source, status             string
		entities, raw                   string
		eventDate, createdAt, updatedAt string
		syncErr, workItemID             sql.NullString
	)

	err := r.Scan(
		&e.ID, &e.ExternalID, &e.Title, &typ, &source, &e.ConfidenceScore, &e.Summary, &entities,
		&raw, &e.ContentHash, &eventDate, &status, &syncErr, &workItemID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("scan event: %w", err)
	}

	e.Type = domain.EventType(typ)
	e.Source = domain.Source(source)
	e.SyncStatus = domain.SyncStatus(status)
	e.SyncError = stringPtr(syncErr)
	e.WorkItemID = stringPtr(workItemID)
	e.RawData = json.RawMessage(raw)

	if err := json.Unmarshal([]byte(entities), &e.Entities); err != nil {
		return domain.Event{}, fmt.Errorf("scan event %s: entities: %w", e.ID, err)
	}
	if e.EventDate, err = parseTime(eventDate); err != nil {
		return domain.Event{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Event{}, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
