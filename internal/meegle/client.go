package meegle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxBodySize limits response bodies read from the tracker.
const maxBodySize = 4 * 1024 * 1024

// APIError is a failure reported by the tracker, either as an HTTP status
// >= 400 or as a non-zero business error code.
type APIError struct {
	Op      string
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("meegle %s: error %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("meegle %s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// WorkItemType is one entry of a project's type catalog.
type WorkItemType struct {
	TypeKey string `json:"type_key"`
	Name    string `json:"name"`
}

// Field is one entry of a work item type's field schema.
type Field struct {
	FieldKey  string `json:"field_key"`
	FieldName string `json:"field_name"`
	FieldType string `json:"field_type_key"`
}

// FieldValue is one field assignment sent on create and update.
type FieldValue struct {
	FieldKey   string `json:"field_key"`
	FieldValue any    `json:"field_value"`
}

// Client is a thin JSON client for the tracker's open API.
type Client struct {
	baseURL string
	http    *http.Client
	auth    *Authenticator
	logger  *slog.Logger
}

// NewClient creates a client for baseURL authenticated by auth.
func NewClient(baseURL string, auth *Authenticator, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		auth:    auth,
		logger:  logger,
	}
}

type envelope struct {
	ErrCode int             `json:"err_code"`
	ErrMsg  string          `json:"err_msg"`
	Data    json.RawMessage `json:"data"`
}

// ListWorkItemTypes returns the project's work item type catalog.
func (c *Client) ListWorkItemTypes(ctx context.Context, project string) ([]WorkItemType, error) {
	var types []WorkItemType
	path := "/projects/" + url.PathEscape(project) + "/work_item_types"
	if err := c.do(ctx, "list work item types", http.MethodGet, path, nil, &types); err != nil {
		return nil, err
	}
	if types == nil {
		types = []WorkItemType{}
	}
	return types, nil
}

// ListFields returns the field schema of a work item type.
func (c *Client) ListFields(ctx context.Context, project, typeKey string) ([]Field, error) {
	var fields []Field
	path := "/projects/" + url.PathEscape(project) + "/work_item_types/" + url.PathEscape(typeKey) + "/fields"
	if err := c.do(ctx, "list fields", http.MethodGet, path, nil, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []Field{}
	}
	return fields, nil
}

// CreateRequest is the body of a create call.
type CreateRequest struct {
	TypeKey string       `json:"work_item_type_key"`
	Name    string       `json:"name"`
	Fields  []FieldValue `json:"field_value_pairs"`
}

// CreateWorkItem creates a work item and returns its id.
func (c *Client) CreateWorkItem(ctx context.Context, project string, req CreateRequest) (string, error) {
	var id json.RawMessage
	path := "/projects/" + url.PathEscape(project) + "/work_items"
	if err := c.do(ctx, "create work item", http.MethodPost, path, req, &id); err != nil {
		return "", err
	}
	workItemID, err := decodeID(id)
	if err != nil {
		return "", &APIError{Op: "create work item", Status: http.StatusOK, Message: err.Error()}
	}
	return workItemID, nil
}

// UpdateWorkItem replaces field values on an existing work item.
func (c *Client) UpdateWorkItem(ctx context.Context, project, id string, fields []FieldValue) error {
	body := struct {
		Fields []FieldValue `json:"field_value_pairs"`
	}{fields}
	path := "/projects/" + url.PathEscape(project) + "/work_items/" + url.PathEscape(id)
	return c.do(ctx, "update work item", http.MethodPut, path, body, nil)
}

// TransitionWorkItem applies a workflow transition to a work item.
func (c *Client) TransitionWorkItem(ctx context.Context, project, id, transitionID string) error {
	body := struct {
		TransitionID string `json:"transition_id"`
	}{transitionID}
	path := "/projects/" + url.PathEscape(project) + "/work_items/" + url.PathEscape(id) + "/transitions"
	return c.do(ctx, "transition work item", http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.auth.Token()
	if err != nil {
		return fmt.Errorf("meegle %s: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("meegle %s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("meegle %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("meegle request", "op", op, "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("meegle %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("meegle %s: read body: %w", op, err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("meegle %s: decode: %w", op, err)
	}
	if env.ErrCode != 0 {
		return &APIError{Op: op, Status: resp.StatusCode, Code: env.ErrCode, Message: env.ErrMsg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("meegle %s: decode data: %w", op, err)
	}
	return nil
}

// decodeID accepts a bare number, a string or an object with an "id" key.
func decodeID(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode work item id: %w", err)
	}
	if obj, ok := v.(map[string]any); ok {
		v = obj["id"]
	}
	switch id := v.(type) {
	case json.Number:
		return id.String(), nil
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("response carries no work item id")
}
