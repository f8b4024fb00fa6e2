package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes pipeline failures.
type ErrorKind string

const (
	// ErrKindSourceFetch: one source's fetch failed. Isolated by the collector.
	ErrKindSourceFetch ErrorKind = "SOURCE_FETCH"

	// ErrKindClassification: the completion service failed. Absorbed by the classifier.
	ErrKindClassification ErrorKind = "CLASSIFICATION"

	// ErrKindPersistence: a store write failed. Fatal for the item.
	ErrKindPersistence ErrorKind = "PERSISTENCE"

	// ErrKindExternalSync: the tracker rejected the item or was unreachable.
	// Recorded on the Event and re-raised.
	ErrKindExternalSync ErrorKind = "EXTERNAL_SYNC"

	// ErrKindConfiguration: required tracker identifiers are missing.
	// Recorded on the Event, never raised.
	ErrKindConfiguration ErrorKind = "CONFIGURATION"
)

// PipelineError is a failure raised somewhere in the ingestion pipeline.
type PipelineError struct {
	Kind    ErrorKind
	Message string

	// Source is the adapter that produced the item, if known.
	Source Source

	// EventID identifies the affected event, if one exists yet.
	EventID string

	Err error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.EventID != "" {
		msg += fmt.Sprintf(" (event=%s)", e.EventID)
	} else if e.Source != "" {
		msg += fmt.Sprintf(" (source=%s)", e.Source)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewSourceError wraps a fetch failure.
func NewSourceError(src Source, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindSourceFetch, Message: "fetch failed", Source: src, Err: err}
}

// NewPersistenceError wraps a store failure.
func NewPersistenceError(op string, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindPersistence, Message: op, Err: err}
}

// NewSyncError wraps an external system failure for an event.
func NewSyncError(eventID, message string, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindExternalSync, Message: message, EventID: eventID, Err: err}
}

// NewConfigError reports a missing tracker setting.
func NewConfigError(eventID, message string) *PipelineError {
	return &PipelineError{Kind: ErrKindConfiguration, Message: message, EventID: eventID}
}

// KindOf returns the kind of the first PipelineError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsSyncError reports whether err is an external sync failure.
func IsSyncError(err error) bool { return KindOf(err) == ErrKindExternalSync }

// IsPersistenceError reports whether err is a store failure.
func IsPersistenceError(err error) bool { return KindOf(err) == ErrKindPersistence }
