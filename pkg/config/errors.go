package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/configdesk/configdesk/pkg/schema"
)

// ParseError reports text that is not well-formed YAML.
type ParseError struct {
	// Line is the 1-based line the parser stopped at, or 0 if unknown.
	Line int `json:"line,omitempty"`

	// Message is the parser's description of the problem.
	Message string `json:"message"`

	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid YAML at line %d: %s", e.Line, e.Message)
	}
	return "invalid YAML: " + e.Message
}

// Unwrap returns the underlying parser error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

var yamlLineRe = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

// newParseError converts a yaml.v3 error into a ParseError.
func newParseError(err error) *ParseError {
	msg := err.Error()
	pe := &ParseError{Message: strings.TrimPrefix(msg, "yaml: "), Err: err}
	if m := yamlLineRe.FindStringSubmatch(msg); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
		pe.Message = m[2]
	}
	return pe
}

// FieldError is a single schema violation at a path.
type FieldError struct {
	Path    schema.Path `json:"path"`
	Message string      `json:"message"`
}

// String renders "server.port: must be an integer".
func (f FieldError) String() string {
	if len(f.Path) == 0 {
		return f.Message
	}
	return f.Path.String() + ": " + f.Message
}

// ValidationError reports a well-formed document that does not match the schema.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, f := range e.Errors {
		parts[i] = f.String()
	}
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(parts, "\n  - "))
}

// Has reports whether any error is reported at exactly path.
func (e *ValidationError) Has(path schema.Path) bool {
	for _, f := range e.Errors {
		if f.Path.Equal(path) {
			return true
		}
	}
	return false
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
