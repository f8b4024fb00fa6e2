package workflow

import (
	"errors"
	"fmt"
)

// Error is a rejected workflow operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ProcessID identifies the affected process, if any.
	ProcessID string
}

// ErrorCode categorizes workflow errors.
type ErrorCode string

const (
	// ErrCodeProcessNotFound indicates no process has the given id.
	ErrCodeProcessNotFound ErrorCode = "PROCESS_NOT_FOUND"

	// ErrCodeInvalidNode indicates the target node is not in the process template.
	ErrCodeInvalidNode ErrorCode = "INVALID_NODE"

	// ErrCodeInvalidStatus indicates an unknown process status.
	ErrCodeInvalidStatus ErrorCode = "INVALID_STATUS"

	// ErrCodeConcurrentTransition indicates the process moved while a
	// transition was being applied.
	ErrCodeConcurrentTransition ErrorCode = "CONCURRENT_TRANSITION"
)

func (e *Error) Error() string {
	if e.ProcessID != "" {
		return fmt.Sprintf("%s: %s (process=%s)", e.Code, e.Message, e.ProcessID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func codeOf(err error) ErrorCode {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// IsNotFound reports whether err is a missing-process error.
func IsNotFound(err error) bool {
	return codeOf(err) == ErrCodeProcessNotFound
}

// IsInvalid reports whether err rejects the request itself (bad node or status).
func IsInvalid(err error) bool {
	switch codeOf(err) {
	case ErrCodeInvalidNode, ErrCodeInvalidStatus:
		return true
	}
	return false
}

// IsConflict reports whether err is a lost transition race.
func IsConflict(err error) bool {
	return codeOf(err) == ErrCodeConcurrentTransition
}
