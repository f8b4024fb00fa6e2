package domain

import (
	"encoding/json"
	"time"
)

// Source identifies where a RawItem came from.
type Source string

const (
	SourceCongress    Source = "congress"
	SourceWhiteHouse  Source = "whitehouse"
	SourceTruthSocial Source = "truth_social"
	SourceX           Source = "x"
	SourceTelegram    Source = "telegram"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceCongress, SourceWhiteHouse, SourceTruthSocial, SourceX, SourceTelegram:
		return true
	}
	return false
}

// IsSocial reports whether the source is a social-media source. Social
// sources are authoritative for the social_post category.
func (s Source) IsSocial() bool {
	switch s {
	case SourceTruthSocial, SourceX, SourceTelegram:
		return true
	}
	return false
}

// EventType is the closed classification taxonomy.
type EventType string

const (
	TypeLegislative EventType = "legislative"
	TypeExecutive   EventType = "executive"
	TypeAppointment EventType = "appointment"
	TypeSocialPost  EventType = "social_post"
)

// EventTypes lists the taxonomy in declaration order.
var EventTypes = []EventType{TypeLegislative, TypeExecutive, TypeAppointment, TypeSocialPost}

// Valid reports whether t is a member of the taxonomy.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SyncStatus is the outcome of the most recent external sync attempt.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// ProcessStatus is the lifecycle state of a Process.
type ProcessStatus string

const (
	ProcessActive    ProcessStatus = "active"
	ProcessCompleted ProcessStatus = "completed"
	ProcessSuspended ProcessStatus = "suspended"
)

// Valid reports whether s is a known process status.
func (s ProcessStatus) Valid() bool {
	switch s {
	case ProcessActive, ProcessCompleted, ProcessSuspended:
		return true
	}
	return false
}

// Classification is the classifier's verdict for one RawItem.
type Classification struct {
	Type       EventType `json:"type"`
	Confidence float64   `json:"confidence"`
	Summary    string    `json:"summary"`
	Entities   []string  `json:"entities"`

	// Method records which policy step produced the result
	// ("source", "rules", "llm", "fallback").
	Method string `json:"-"`
}

// Event is the canonical, deduplicated, classified record.
type Event struct {
	ID              string          `json:"id"`
	ExternalID      string          `json:"external_id"`
	Title           string          `json:"title"`
	Type            EventType       `json:"type"`
	Source          Source          `json:"source"`
	ConfidenceScore float64         `json:"confidence_score"`
	Summary         string          `json:"summary"`
	Entities        []string        `json:"entities"`
	RawData         json.RawMessage `json:"raw_data"`
	ContentHash     string          `json:"content_hash"`
	EventDate       time.Time       `json:"event_date"`
	SyncStatus      SyncStatus      `json:"sync_status"`
	SyncError       *string         `json:"sync_error"`
	WorkItemID      *string         `json:"work_item_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SourceURL returns the item URL embedded in the raw payload, if any.
func (e Event) SourceURL() string {
	var item struct {
		Key struct {
			URL string `json:"url"`
		} `json:"key"`
	}
	if err := json.Unmarshal(e.RawData, &item); err != nil {
		return ""
	}
	return item.Key.URL
}

// WorkflowTemplate is the ordered list of stages for one event type.
type WorkflowTemplate struct {
	ID              string          `json:"id"`
	Type            EventType       `json:"type"`
	Name            string          `json:"name"`
	Nodes           []string        `json:"nodes"`
	TransitionRules json.RawMessage `json:"transition_rules"`
	CreatedAt       time.Time       `json:"created_at"`
}

// HasNode reports whether node is one of the template's stages.
func (t WorkflowTemplate) HasNode(node string) bool {
	for _, n := range t.Nodes {
		if n == node {
			return true
		}
	}
	return false
}

// Process is a running instance of a template for one Event.
type Process struct {
	ID          string        `json:"id"`
	EventID     string        `json:"event_id"`
	TemplateID  string        `json:"template_id"`
	CurrentNode string        `json:"current_node"`
	Status      ProcessStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ProcessView is a Process joined with the fields listings display.
type ProcessView struct {
	Process
	EventTitle   string    `json:"event_title"`
	EventType    EventType `json:"event_type"`
	TemplateName string    `json:"template_name"`
}

// StatusHistoryEntry is one append-only audit record of a Process.
type StatusHistoryEntry struct {
	ID             int64           `json:"id"`
	ProcessID      string          `json:"process_id"`
	FromNode       *string         `json:"from_node"`
	ToNode         string          `json:"to_node"`
	TransitionData json.RawMessage `json:"transition_data"`
	Timestamp      time.Time       `json:"timestamp"`
}
