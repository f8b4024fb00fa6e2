package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shawcc/trumpsword/internal/domain"
)

// Scenario defines a pipeline scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tracker selects the sync backend: "recording" (default) or "mock".
	Tracker string `yaml:"tracker,omitempty"`

	// Sources are the canned adapters used by collect and historical steps.
	Sources []SourceDef `yaml:"sources,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// SourceDef is a canned source adapter.
type SourceDef struct {
	Name  string    `yaml:"name"`
	Error string    `yaml:"error,omitempty"`
	Items []ItemDef `yaml:"items,omitempty"`
}

// ItemDef describes a raw item. Which fields matter depends on the source.
type ItemDef struct {
	Title    string `yaml:"title"`
	Number   string `yaml:"number,omitempty"`
	Chamber  string `yaml:"chamber,omitempty"`
	URL      string `yaml:"url,omitempty"`
	ID       string `yaml:"id,omitempty"`
	Summary  string `yaml:"summary,omitempty"`
	Content  string `yaml:"content,omitempty"`
	Date     string `yaml:"date,omitempty"` // YYYY-MM-DD
	Category string `yaml:"category,omitempty"`
	Author   string `yaml:"author,omitempty"`
}

// Step is one operation of the scenario.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Source and Item are used by ingest.
	Source string   `yaml:"source,omitempty"`
	Item   *ItemDef `yaml:"item,omitempty"`

	// Since is used by historical (YYYY-MM-DD).
	Since string `yaml:"since,omitempty"`

	// ExternalID selects the event for transition and set_status.
	ExternalID string `yaml:"external_id,omitempty"`
	Node       string `yaml:"node,omitempty"`
	Status     string `yaml:"status,omitempty"`

	// ExternalIDs are used by fail_sync and heal_sync.
	ExternalIDs []string `yaml:"external_ids,omitempty"`

	// Expect is a subset match against the step result.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	ExternalID string `yaml:"external_id,omitempty"`

	// Expect is a subset match against the event or process fields.
	Expect map[string]any `yaml:"expect,omitempty"`

	Count *int `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpCollect    = "collect"
	OpHistorical = "historical"
	OpIngest     = "ingest"
	OpRetry      = "retry"
	OpTransition = "transition"
	OpSetStatus  = "set_status"
	OpFailSync   = "fail_sync"
	OpHealSync   = "heal_sync"
	OpReset      = "reset"
)

// Assertion types.
const (
	AssertEvent           = "event"
	AssertEventCount      = "event_count"
	AssertProcess         = "process"
	AssertProcessCount    = "process_count"
	AssertHistoryCount    = "history_count"
	AssertSyncCalls       = "sync_calls"
	AssertClassifyCalls   = "classify_calls"
	AssertTrackerRequests = "tracker_requests"
)

// Tracker modes.
const (
	TrackerRecording = "recording"
	TrackerMock      = "mock"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so "assertion:" vs "assertions:" typos surface.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Tracker {
	case "", TrackerRecording, TrackerMock:
	default:
		return fmt.Errorf("unknown tracker %q", s.Tracker)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, src := range s.Sources {
		if !domain.Source(src.Name).Valid() {
			return fmt.Errorf("sources[%d]: unknown source %q", i, src.Name)
		}
		for j, item := range src.Items {
			if err := validateItem(item); err != nil {
				return fmt.Errorf("sources[%d].items[%d]: %w", i, j, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, s.Tracker); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, s.Tracker); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateItem(item ItemDef) error {
	if item.Date == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, item.Date); err != nil {
		return fmt.Errorf("date %q: want YYYY-MM-DD", item.Date)
	}
	return nil
}

func validateStep(step Step, tracker string) error {
	switch step.Op {
	case OpCollect, OpRetry, OpReset:
	case OpHistorical:
		if _, err := time.Parse(time.DateOnly, step.Since); err != nil {
			return fmt.Errorf("historical: since %q: want YYYY-MM-DD", step.Since)
		}
	case OpIngest:
		if !domain.Source(step.Source).Valid() {
			return fmt.Errorf("ingest: unknown source %q", step.Source)
		}
		if step.Item == nil {
			return fmt.Errorf("ingest: item is required")
		}
		return validateItem(*step.Item)
	case OpTransition:
		if step.ExternalID == "" || step.Node == "" {
			return fmt.Errorf("transition: external_id and node are required")
		}
	case OpSetStatus:
		if step.ExternalID == "" || step.Status == "" {
			return fmt.Errorf("set_status: external_id and status are required")
		}
	case OpFailSync, OpHealSync:
		if tracker == TrackerMock {
			return fmt.Errorf("%s: requires the recording tracker", step.Op)
		}
		if len(step.ExternalIDs) == 0 {
			return fmt.Errorf("%s: external_ids is required", step.Op)
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion, tracker string) error {
	switch a.Type {
	case AssertEvent, AssertProcess:
		if a.ExternalID == "" {
			return fmt.Errorf("%s: external_id is required", a.Type)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("%s: expect is required", a.Type)
		}
	case AssertHistoryCount, AssertSyncCalls:
		if a.ExternalID == "" || a.Count == nil {
			return fmt.Errorf("%s: external_id and count are required", a.Type)
		}
		if a.Type == AssertSyncCalls && tracker == TrackerMock {
			return fmt.Errorf("sync_calls: requires the recording tracker")
		}
	case AssertEventCount, AssertProcessCount, AssertClassifyCalls, AssertTrackerRequests:
		if a.Count == nil {
			return fmt.Errorf("%s: count is required", a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// RawItem converts the definition into the item the named source would emit.
func (d ItemDef) RawItem(src domain.Source) domain.RawItem {
	item := domain.RawItem{
		Source:  src,
		Title:   d.Title,
		Summary: d.Summary,
		Content: d.Content,
	}
	if d.Date != "" {
		item.Date, _ = time.Parse(time.DateOnly, d.Date)
	}

	switch {
	case src == domain.SourceCongress:
		item.Key = domain.Key{BillNumber: d.Number, URL: d.URL}
		item.TypeHint = domain.TypeLegislative
		item.Bill = &domain.BillPayload{Chamber: d.Chamber, Number: d.Number}
	case src.IsSocial():
		item.Key = domain.Key{URL: d.URL, OpaqueID: d.ID}
		item.TypeHint = domain.TypeSocialPost
		item.Post = &domain.PostPayload{Platform: string(src), Author: d.Author}
	default:
		item.Key = domain.Key{URL: d.URL, OpaqueID: d.ID}
		item.Action = &domain.ActionPayload{Category: d.Category}
	}
	return item
}
