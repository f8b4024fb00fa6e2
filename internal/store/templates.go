package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shawcc/trumpsword/internal/domain"
)

const templateColumns = `id, type, name, nodes, transition_rules, created_at`

// InsertTemplateIfAbsent writes t unless a template for t.Type already exists.
// Uses ON CONFLICT(type) DO NOTHING; inserted reports whether a row was written.
func (s *Store) InsertTemplateIfAbsent(ctx context.Context, t domain.WorkflowTemplate) (inserted bool, err error) {
	if len(t.Nodes) == 0 {
		return false, fmt.Errorf("insert template %s: nodes must not be empty", t.Type)
	}
	nodes, err := json.Marshal(t.Nodes)
	if err != nil {
		return false, fmt.Errorf("insert template %s: marshal nodes: %w", t.Type, err)
	}
	rules := string(t.TransitionRules)
	if rules == "" {
		rules = "{}"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type) DO NOTHING
	`, t.ID, string(t.Type), t.Name, string(nodes), rules, formatTime(t.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert template %s: %w", t.Type, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert template %s: rows affected: %w", t.Type, err)
	}
	return n > 0, nil
}

// GetTemplateByType returns the template for an event type.
func (s *Store) GetTemplateByType(ctx context.Context, typ domain.EventType) (domain.WorkflowTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM workflow_templates WHERE type = ?`, string(typ))
	t, err := scanTemplate(row)
	if err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("get template %s: %w", typ, err)
	}
	return t, nil
}

// GetTemplate returns a template by primary key.
func (s *Store) GetTemplate(ctx context.Context, id string) (domain.WorkflowTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM workflow_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

// ListTemplates returns all templates ordered by type.
func (s *Store) ListTemplates(ctx context.Context) ([]domain.WorkflowTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM workflow_templates ORDER BY type ASC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []domain.WorkflowTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func scanTemplate(r rowScanner) (domain.WorkflowTemplate, error) {
	var (
		t                         domain.WorkflowTemplate
		typ, nodes, rules, create string
	)
	err := r.Scan(&t.ID, &typ, &t.Name, &nodes, &rules, &create)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkflowTemplate{}, ErrNotFound
	}
	if err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("scan template: %w", err)
	}
	t.Type = domain.EventType(typ)
	t.TransitionRules = json.RawMessage(rules)
	if err := json.Unmarshal([]byte(nodes), &t.Nodes); err != nil {
		return domain.WorkflowTemplate{}, fmt.Errorf("scan template %s: nodes: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(create); err != nil {
		return domain.WorkflowTemplate{}, err
	}
	return t, nil
}
