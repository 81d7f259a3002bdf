// Package api serves the editor's HTTP API: the current document, text and
// form edits, completions, the schema, health and Prometheus metrics.
//
// Lines in requests and responses are 1-based; columns are 0-based.
package api

import (
	"github.com/configdesk/configdesk/pkg/completion"
	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/position"
	"github.com/configdesk/configdesk/pkg/schema"
)

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`

	// Kind is "parse_error", "validation_error" or "bad_request".
	Kind string `json:"kind"`

	Errors []config.FieldError `json:"errors,omitempty"`

	// YAMLContent echoes the text the session now holds after a rejected
	// text edit, so the editor keeps the user's input.
	YAMLContent string `json:"yaml_content,omitempty"`
}

// ConfigResponse describes the session's current document.
type ConfigResponse struct {
	Success     bool          `json:"success"`
	Config      config.Config `json:"config"`
	YAMLContent string        `json:"yaml_content"`
	Valid       bool          `json:"valid"`
	Revision    int           `json:"revision"`
	Pending     bool          `json:"pending"`
}

// ConfigUpdateRequest carries a text edit.
type ConfigUpdateRequest struct {
	YAMLContent *string `json:"yaml_content"`
}

// StructuredUpdateRequest carries a form edit.
type StructuredUpdateRequest struct {
	Config *config.Config `json:"config"`
}

// CompletionRequest asks for suggestions at a cursor. FullContent is the
// whole document; Line is the cursor's line and is used when FullContent
// is empty.
type CompletionRequest struct {
	Line           string `json:"line"`
	FullContent    string `json:"full_content"`
	LineNumber     int    `json:"line_number"`
	CursorPosition int    `json:"cursor_position"`
}

// CompletionResponse lists suggestions and the context they were drawn from.
type CompletionResponse struct {
	Completions  []completion.Item `json:"completions"`
	Path         schema.Path       `json:"path"`
	TokenKind    string            `json:"token_kind"`
	PartialText  string            `json:"partial_text"`
	ReplaceRange position.Range    `json:"replace_range"`
	Located      bool              `json:"located"`
}

// SchemaField is one node of the schema tree as served by /api/schema.
type SchemaField struct {
	Name        string        `json:"name"`
	Path        schema.Path   `json:"path"`
	Kind        string        `json:"kind"`
	Type        string        `json:"type,omitempty"`
	Enum        []string      `json:"enum,omitempty"`
	Required    bool          `json:"required"`
	Detail      string        `json:"detail,omitempty"`
	Description string        `json:"description,omitempty"`
	Children    []SchemaField `json:"children,omitempty"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store,omitempty"`
	SessionID string `json:"session_id"`
	Uptime    string `json:"uptime"`
	Error     string `json:"error,omitempty"`
}
