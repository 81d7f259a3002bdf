package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/configdesk/configdesk/pkg/schema"
	"github.com/configdesk/configdesk/pkg/session"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

// maxBodyBytes bounds request bodies; documents are a handful of sections.
const maxBodyBytes = 1 << 20

const kindBadRequest = "bad_request"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) configResponse() ConfigResponse {
	doc := s.session.Document()
	return ConfigResponse{
		Success:     true,
		Config:      doc.Structured,
		YAMLContent: doc.Text,
		Valid:       s.session.Valid(),
		Revision:    doc.Revision,
		Pending:     s.session.Pending(),
	}
}

// writeResult maps an edit outcome to a response.
func (s *Server) writeResult(w http.ResponseWriter, res session.Result) {
	if res.OK() {
		writeJSON(w, http.StatusOK, s.configResponse())
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:       res.Message,
		Kind:        string(res.Status),
		Errors:      res.Errors,
		YAMLContent: res.Document.Text,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		SessionID: s.session.ID(),
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
	}

	status := http.StatusOK
	if store := s.session.Store(); store != nil {
		resp.Store = store.Name()
		if hc, ok := store.(interface{ HealthCheck(context.Context) error }); ok {
			if err := hc.HealthCheck(r.Context()); err != nil {
				resp.Status = "unavailable"
				resp.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) getConfigHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.configResponse())
}

func (s *Server) updateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	if req.YAMLContent == nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "yaml_content is required")
		return
	}
	s.writeResult(w, s.session.ApplyTextEdit(r.Context(), *req.YAMLContent))
}

func (s *Server) updateStructuredHandler(w http.ResponseWriter, r *http.Request) {
	var req StructuredUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	if req.Config == nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "config is required")
		return
	}
	s.writeResult(w, s.session.ApplyStructuredEdit(r.Context(), *req.Config))
}

func (s *Server) flushHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Flush(r.Context()); err != nil {
		telemetry.FromContext(r.Context()).WithError(err).Error("flush failed")
		writeError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.configResponse())
}

func (s *Server) completionsHandler(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	text := req.FullContent
	if text == "" && req.Line != "" {
		text, req.LineNumber = req.Line, 1
	}
	if req.LineNumber < 1 {
		writeError(w, http.StatusBadRequest, kindBadRequest, "line_number must be at least 1")
		return
	}
	if req.CursorPosition < 0 {
		writeError(w, http.StatusBadRequest, kindBadRequest, "cursor_position must not be negative")
		return
	}

	res, err := s.completer.CompleteAt(r.Context(), text, req.LineNumber-1, req.CursorPosition)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	items := res.Items
	for i := range items {
		items[i].Range.Line++
	}
	rng := res.Context.ReplaceRange
	rng.Line++

	writeJSON(w, http.StatusOK, CompletionResponse{
		Completions:  items,
		Path:         nonNilPath(res.Context.Path),
		TokenKind:    res.Context.TokenKind.String(),
		PartialText:  res.Context.PartialText,
		ReplaceRange: rng,
		Located:      res.Located,
	})
}

func (s *Server) schemaHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DescribeSchema(s.session.Schema()))
}

// DescribeSchema renders root and its descendants.
func DescribeSchema(root *schema.Node) SchemaField {
	return describe(root, schema.Path{})
}

func describe(n *schema.Node, path schema.Path) SchemaField {
	f := SchemaField{
		Name:        n.Name,
		Path:        path,
		Kind:        string(n.Kind),
		Type:        string(n.ValueType),
		Enum:        n.EnumValues,
		Required:    n.Required,
		Detail:      n.Detail,
		Description: n.Description,
	}
	for _, c := range n.Children() {
		f.Children = append(f.Children, describe(c, path.Append(c.Name)))
	}
	return f
}

func nonNilPath(p schema.Path) schema.Path {
	if p == nil {
		return schema.Path{}
	}
	return p
}
