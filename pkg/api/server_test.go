package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/debounce"
	"github.com/configdesk/configdesk/pkg/schema"
	"github.com/configdesk/configdesk/pkg/session"
	"github.com/configdesk/configdesk/pkg/stores"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	session *session.Session
	clock   *debounce.FakeClock
	path    string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	clock := debounce.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	require.NoError(t, err)
	tel := telemetry.NewNop()
	tel.Metrics = metrics

	sess, err := session.Open(context.Background(), stores.NewFileStore(path),
		session.WithClock(clock), session.WithTelemetry(tel))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	srv := NewServer(Config{Session: sess, Telemetry: tel})
	return &testEnv{server: srv, handler: srv.Handler(), session: sess, clock: clock, path: path}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetConfig(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[ConfigResponse](t, rec)
	assert.True(t, resp.Success)
	assert.True(t, resp.Valid)
	assert.Equal(t, config.DefaultConfig(), resp.Config)
	assert.Equal(t, stores.DefaultText(), resp.YAMLContent)
	assert.Equal(t, 0, resp.Revision)
}

func TestUpdateConfig(t *testing.T) {
	env := setupTestServer(t)
	text := strings.Replace(stores.DefaultText(), "port: 3000", "port: 8080", 1)

	rec := env.do(t, http.MethodPost, "/api/config", map[string]string{"yaml_content": text})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ConfigResponse](t, rec)
	assert.Equal(t, 8080, resp.Config.Server.Port)
	assert.Equal(t, text, resp.YAMLContent)
	assert.Equal(t, 1, resp.Revision)
	assert.True(t, resp.Pending)

	env.clock.Advance(session.DefaultDebounce)
	data, err := os.ReadFile(env.path)
	require.NoError(t, err)
	assert.Equal(t, text, string(data))
}

func TestUpdateConfigRejected(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name     string
		text     string
		wantKind string
		wantPath schema.Path
	}{
		{"validation", "server:\n  port: abc", "validation_error", schema.Path{"server", "port"}},
		{"parse", "server: [", "parse_error", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/config", map[string]string{"yaml_content": tt.text})
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.text, resp.YAMLContent)
			if tt.wantPath != nil {
				ve := &config.ValidationError{Errors: resp.Errors}
				assert.True(t, ve.Has(tt.wantPath), "errors: %v", resp.Errors)
			}

			cur := decode[ConfigResponse](t, env.do(t, http.MethodGet, "/api/config", nil))
			assert.False(t, cur.Valid)
			assert.Equal(t, tt.text, cur.YAMLContent, "typed text is retained")
			assert.Equal(t, config.DefaultConfig(), cur.Config, "structured keeps the last valid value")
		})
	}
}

func TestUpdateConfigBadRequest(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"empty body", nil},
		{"not json", "yaml_content: x"},
		{"missing field", map[string]string{"content": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/config", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, kindBadRequest, decode[ErrorResponse](t, rec).Kind)
		})
	}
}

func TestUpdateStructured(t *testing.T) {
	env := setupTestServer(t)

	cfg := config.DefaultConfig()
	cfg.Server.Port = 9090
	rec := env.do(t, http.MethodPut, "/api/config/structured", map[string]any{"config": cfg})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ConfigResponse](t, rec)
	assert.Equal(t, strings.Replace(stores.DefaultText(), "port: 3000", "port: 9090", 1), resp.YAMLContent)

	cfg.Server.Port = 0
	rec = env.do(t, http.MethodPut, "/api/config/structured", map[string]any{"config": cfg})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	bad := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", bad.Kind)

	rec = env.do(t, http.MethodPut, "/api/config/structured", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlush(t *testing.T) {
	env := setupTestServer(t)

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/config/structured", map[string]any{"config": cfg}).Code)

	rec := env.do(t, http.MethodPost, "/api/config/flush", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ConfigResponse](t, rec).Pending)

	data, err := os.ReadFile(env.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "level: error")
}

func TestCompletions(t *testing.T) {
	env := setupTestServer(t)

	t.Run("keys", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/completions", CompletionRequest{
			FullContent:    "server:\n  host: 127.0.0.1\n  po",
			LineNumber:     3,
			CursorPosition: 4,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[CompletionResponse](t, rec)
		assert.True(t, resp.Located)
		assert.Equal(t, schema.Path{"server"}, resp.Path)
		assert.Equal(t, "key", resp.TokenKind)
		assert.Equal(t, "po", resp.PartialText)
		assert.Equal(t, 3, resp.ReplaceRange.Line)
		assert.Equal(t, 2, resp.ReplaceRange.StartColumn)
		assert.Equal(t, 4, resp.ReplaceRange.EndColumn)
		require.Len(t, resp.Completions, 1)
		assert.Equal(t, "port", resp.Completions[0].Label)
		assert.Equal(t, 3, resp.Completions[0].Range.Line)
	})

	t.Run("enum values", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/completions", CompletionRequest{
			FullContent:    "logging:\n  level: ",
			LineNumber:     2,
			CursorPosition: 9,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var raw struct {
			Completions []struct {
				Label string `json:"label"`
				Kind  string `json:"kind"`
			} `json:"completions"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		var labels []string
		for _, c := range raw.Completions {
			labels = append(labels, c.Label)
			assert.Equal(t, "value", c.Kind)
		}
		assert.Equal(t, []string{"debug", "info", "warn", "error"}, labels)
	})

	t.Run("unknown path", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/completions", CompletionRequest{
			FullContent:    "database:\n  ho",
			LineNumber:     2,
			CursorPosition: 4,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"completions":[]`)
		assert.False(t, decode[CompletionResponse](t, rec).Located)
	})

	t.Run("single line fallback", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/completions", CompletionRequest{
			Line:           "ser",
			CursorPosition: 3,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[CompletionResponse](t, rec)
		require.NotEmpty(t, resp.Completions)
		assert.Equal(t, "server", resp.Completions[0].Label)
	})

	t.Run("invalid positions", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/completions", CompletionRequest{FullContent: "a", LineNumber: 0})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(t, http.MethodPost, "/api/completions", CompletionRequest{FullContent: "a", LineNumber: 1, CursorPosition: -1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSchema(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	root := decode[SchemaField](t, rec)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "server", root.Children[0].Name)
	assert.Equal(t, "logging", root.Children[1].Name)

	level := root.Children[1].Children[0]
	assert.Equal(t, schema.Path{"logging", "level"}, level.Path)
	assert.Equal(t, "enum", level.Type)
	assert.Equal(t, []string{"debug", "info", "warn", "error"}, level.Enum)
}

func TestHealthAndRequestID(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "file", resp.Store)
	assert.Equal(t, env.session.ID(), resp.SessionID)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodGet, "/api/config", nil)
	env.do(t, http.MethodPost, "/api/completions", CompletionRequest{FullContent: "se", LineNumber: 1, CursorPosition: 2})

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "configdesk_http_requests_total")
	assert.Contains(t, body, `route="GET /api/config"`)
	assert.Contains(t, body, "configdesk_completion_requests_total")
	assert.Contains(t, body, "configdesk_active_sessions 1")
}

func TestCORSAndRouting(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodOptions, "/api/config", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodGet, "/api/completions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownFlushes(t *testing.T) {
	env := setupTestServer(t)

	cfg := config.DefaultConfig()
	cfg.Server.Host = "example.org"
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/config/structured", map[string]any{"config": cfg}).Code)

	require.NoError(t, env.server.Shutdown(context.Background()))
	data, err := os.ReadFile(env.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "host: example.org")
}
