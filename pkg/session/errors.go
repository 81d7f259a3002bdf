package session

import (
	"errors"
	"fmt"

	"github.com/configdesk/configdesk/pkg/config"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// ErrorClass classifies sync failures for reporting.
type ErrorClass string

const (
	// ClassParse is malformed YAML. Reported inline, never blocks typing.
	ClassParse ErrorClass = "parse"

	// ClassValidation is well-formed YAML that does not match the schema.
	ClassValidation ErrorClass = "validation"

	// ClassPersistence is a failed save. The in-memory document is kept.
	ClassPersistence ErrorClass = "persistence"
)

// SyncError is a classified error raised while syncing or persisting a
// document.
type SyncError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// SessionID is the session the error belongs to, if any.
	SessionID string `json:"session_id,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches another *SyncError of the same class.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewParseError creates a parse-class error.
func NewParseError(message string, err error) *SyncError {
	return &SyncError{Class: ClassParse, Message: message, Err: err}
}

// NewValidationError creates a validation-class error.
func NewValidationError(message string, err error) *SyncError {
	return &SyncError{Class: ClassValidation, Message: message, Err: err}
}

// NewPersistenceError creates a persistence-class error.
func NewPersistenceError(message string, err error) *SyncError {
	return &SyncError{Class: ClassPersistence, Message: message, Err: err}
}

// WithSession adds the session ID to an error.
func (e *SyncError) WithSession(id string) *SyncError {
	e.SessionID = id
	return e
}

// WithOperation adds operation context to an error.
func (e *SyncError) WithOperation(operation string) *SyncError {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *SyncError) WithDetail(key string, value interface{}) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsParse returns true if the error is classified as a parse error.
func IsParse(err error) bool {
	return classOf(err) == ClassParse
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return classOf(err) == ClassValidation
}

// IsPersistence returns true if the error is classified as a persistence error.
func IsPersistence(err error) bool {
	return classOf(err) == ClassPersistence
}

func classOf(err error) ErrorClass {
	var e *SyncError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// classify wraps a decode or validate error.
func classify(op string, err error) *SyncError {
	if config.IsParseError(err) {
		return NewParseError("document is not valid YAML", err).WithOperation(op)
	}
	return NewValidationError("document does not match the schema", err).WithOperation(op)
}
