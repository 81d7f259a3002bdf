package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/debounce"
	"github.com/configdesk/configdesk/pkg/schema"
	"github.com/configdesk/configdesk/pkg/stores"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

const defaultDoc = `server:
  host: 127.0.0.1
  port: 3000
  use_ssl: true
logging:
  level: debug
  file: ./debug.log
`

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// memStore records saves in memory and can be told to fail.
type memStore struct {
	mu    sync.Mutex
	text  string
	saves []string
	err   error
}

func (m *memStore) Load(context.Context) (*stores.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.text == "" {
		m.text = stores.DefaultText()
	}
	return &stores.Snapshot{Text: m.text, CreatedAt: epoch}, nil
}

func (m *memStore) Save(_ context.Context, snap *stores.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.text = snap.Text
	m.saves = append(m.saves, snap.Text)
	return nil
}

func (m *memStore) Name() string { return "mem" }
func (m *memStore) Close() error { return nil }

func (m *memStore) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memStore) saved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saves...)
}

// newTestSession returns a session over the default config backed by a
// memStore and driven by a FakeClock.
func newTestSession(t *testing.T, opts ...Option) (*Session, *memStore, *debounce.FakeClock) {
	t.Helper()
	store := &memStore{}
	clock := debounce.NewFakeClock(epoch)
	opts = append([]Option{
		WithStore(store),
		WithClock(clock),
		WithDebounce(500 * time.Millisecond),
	}, opts...)

	s, err := New(Document{Structured: config.DefaultConfig()}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, store, clock
}

func TestNewFillsText(t *testing.T) {
	s, _, _ := newTestSession(t)

	doc := s.Document()
	assert.Equal(t, defaultDoc, doc.Text)
	assert.Equal(t, config.DefaultConfig(), doc.Structured)
	assert.Equal(t, 0, doc.Revision)
	assert.Equal(t, epoch, doc.UpdatedAt)
	assert.True(t, s.Valid())
	assert.False(t, s.Pending())
	assert.NotEmpty(t, s.ID())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	_, err := New(Document{Structured: cfg})
	require.Error(t, err)
	assert.True(t, config.IsValidationError(err))
}

func TestNewWithMismatchedText(t *testing.T) {
	s, err := New(Document{Structured: config.DefaultConfig(), Text: "server: ["})
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.Valid())
	assert.Equal(t, "server: [", s.Document().Text)
}

func TestApplyTextEdit(t *testing.T) {
	s, _, _ := newTestSession(t)
	text := "server:\n  host: 0.0.0.0\n  port: 8080\n  use_ssl: false\nlogging:\n  level: info\n  file: app.log\n"

	res := s.ApplyTextEdit(context.Background(), text)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Errors)
	assert.Nil(t, res.Err)

	doc := s.Document()
	assert.Equal(t, text, doc.Text, "the user's text is kept as typed")
	assert.Equal(t, 8080, doc.Structured.Server.Port)
	assert.Equal(t, "0.0.0.0", doc.Structured.Server.Host)
	assert.False(t, doc.Structured.Server.UseSSL)
	assert.Equal(t, "info", doc.Structured.Logging.Level)
	assert.Equal(t, 1, doc.Revision)
	assert.True(t, s.Valid())
	assert.True(t, s.Pending())
}

func TestApplyTextEditRetainsStructuredOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantStatus Status
		wantClass  ErrorClass
		wantPaths  []schema.Path
	}{
		{
			name:       "non-integer port",
			text:       "server:\n  port: abc",
			wantStatus: StatusValidationError,
			wantClass:  ClassValidation,
			wantPaths:  []schema.Path{{"server", "port"}, {"server", "host"}, {"logging"}},
		},
		{
			name:       "tab indentation",
			text:       "server:\n\tport: 1\n",
			wantStatus: StatusParseError,
			wantClass:  ClassParse,
		},
		{
			name:       "unclosed flow",
			text:       "server: [",
			wantStatus: StatusParseError,
			wantClass:  ClassParse,
		},
		{
			name:       "unknown field",
			text:       defaultDoc + "extra: 1\n",
			wantStatus: StatusValidationError,
			wantClass:  ClassValidation,
			wantPaths:  []schema.Path{{"extra"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, clock := newTestSession(t)

			res := s.ApplyTextEdit(context.Background(), tt.text)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.False(t, res.OK())
			assert.NotEmpty(t, res.Message)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.wantClass, res.Err.Class)
			assert.Equal(t, s.ID(), res.Err.SessionID)

			ve := &config.ValidationError{Errors: res.Errors}
			for _, p := range tt.wantPaths {
				assert.True(t, ve.Has(p), "missing error at %v in %v", p, res.Errors)
			}

			doc := s.Document()
			assert.Equal(t, config.DefaultConfig(), doc.Structured, "structured keeps the last valid value")
			assert.Equal(t, tt.text, doc.Text, "typed text is not lost")
			assert.Equal(t, 0, doc.Revision)
			assert.False(t, s.Valid())

			assert.False(t, s.Pending())
			clock.Advance(time.Second)
			assert.Empty(t, store.saved())
		})
	}
}

func TestApplyTextEditRecoversAfterFailure(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	require.False(t, s.ApplyTextEdit(ctx, "server:\n  port: abc").OK())
	res := s.ApplyTextEdit(ctx, defaultDoc)
	require.True(t, res.OK())
	assert.True(t, s.Valid())
	assert.Equal(t, 1, res.Document.Revision)
}

func TestApplyStructuredEdit(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	// Key order in the text is incidental; regeneration uses schema order.
	require.True(t, s.ApplyTextEdit(ctx, "logging:\n  file: ./debug.log\n  level: debug\nserver:\n  port: 8080\n  use_ssl: true\n  host: 127.0.0.1\n").OK())

	cfg := s.Document().Structured
	cfg.Server.Port = 9090
	res := s.ApplyStructuredEdit(ctx, cfg)
	require.True(t, res.OK(), res.Message)

	want := `server:
  host: 127.0.0.1
  port: 9090
  use_ssl: true
logging:
  level: debug
  file: ./debug.log
`
	doc := s.Document()
	assert.Equal(t, want, doc.Text)
	assert.Equal(t, 9090, doc.Structured.Server.Port)
	assert.Equal(t, 2, doc.Revision)
	assert.True(t, s.Valid())

	decoded, err := config.Decode(doc.Text, nil)
	require.NoError(t, err)
	assert.Equal(t, doc.Structured, *decoded)
}

func TestApplyStructuredEditRejectsInvalid(t *testing.T) {
	s, _, clock := newTestSession(t)

	cfg := config.DefaultConfig()
	cfg.Server.Port = 70000
	cfg.Logging.Level = "verbose"

	res := s.ApplyStructuredEdit(context.Background(), cfg)
	assert.Equal(t, StatusValidationError, res.Status)
	require.NotNil(t, res.Err)
	assert.True(t, IsValidation(res.Err))

	ve := &config.ValidationError{Errors: res.Errors}
	assert.True(t, ve.Has(schema.Path{"server", "port"}))
	assert.True(t, ve.Has(schema.Path{"logging", "level"}))

	doc := s.Document()
	assert.Equal(t, config.DefaultConfig(), doc.Structured)
	assert.Equal(t, defaultDoc, doc.Text)
	assert.Equal(t, 0, doc.Revision)
	assert.True(t, s.Valid())
	assert.False(t, s.Pending())
	clock.Advance(time.Second)
}

func TestDebouncedPersistence(t *testing.T) {
	s, store, clock := newTestSession(t)
	ctx := context.Background()

	var last string
	for port := 8001; port <= 8005; port++ {
		cfg := s.Document().Structured
		cfg.Server.Port = port
		res := s.ApplyStructuredEdit(ctx, cfg)
		require.True(t, res.OK())
		last = res.Document.Text
		clock.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, store.saved(), "timer restarts on every edit")

	clock.Advance(399 * time.Millisecond)
	assert.Empty(t, store.saved())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{last}, store.saved(), "burst collapses into one write")
	assert.False(t, s.Pending())
	assert.Equal(t, 5, s.SavedRevision())
	assert.NoError(t, s.LastPersistError())

	clock.Advance(time.Second)
	assert.Len(t, store.saved(), 1)
}

func TestPersistsLastValidText(t *testing.T) {
	s, store, clock := newTestSession(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Server.Port = 8080
	valid := s.ApplyStructuredEdit(ctx, cfg)
	require.True(t, valid.OK())
	require.False(t, s.ApplyTextEdit(ctx, valid.Document.Text+"  bogus").OK())

	clock.Advance(time.Second)
	assert.Equal(t, []string{valid.Document.Text}, store.saved())
}

func TestCloseCancelsPendingWrite(t *testing.T) {
	s, store, clock := newTestSession(t)
	ctx := context.Background()

	require.True(t, s.ApplyTextEdit(ctx, defaultDoc).OK())
	require.True(t, s.Pending())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	clock.Advance(time.Minute)
	assert.Empty(t, store.saved(), "no stray write after Close")
	assert.ErrorIs(t, s.Flush(ctx), ErrClosed)

	res := s.ApplyTextEdit(ctx, defaultDoc)
	assert.True(t, res.OK(), "edits still apply in memory")
	clock.Advance(time.Minute)
	assert.Empty(t, store.saved())
}

func TestFlush(t *testing.T) {
	s, store, clock := newTestSession(t)
	ctx := context.Background()

	assert.NoError(t, s.Flush(ctx), "nothing pending")
	assert.Empty(t, store.saved())

	require.True(t, s.ApplyTextEdit(ctx, defaultDoc).OK())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, []string{defaultDoc}, store.saved())
	assert.False(t, s.Pending())

	clock.Advance(time.Second)
	assert.Len(t, store.saved(), 1, "flushed write is not repeated")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Flush(cancelled), context.Canceled)
}

func TestPersistenceFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		notes []Notification
	)
	notifier := NotifierFunc(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		notes = append(notes, n)
	})

	s, store, clock := newTestSession(t, WithNotifier(notifier))
	ctx := context.Background()
	store.setErr(errors.New("disk full"))

	cfg := config.DefaultConfig()
	cfg.Server.Host = "example.com"
	res := s.ApplyStructuredEdit(ctx, cfg)
	require.True(t, res.OK())
	clock.Advance(time.Second)

	mu.Lock()
	require.Len(t, notes, 1)
	note := notes[0]
	mu.Unlock()
	assert.Equal(t, s.ID(), note.SessionID)
	assert.Equal(t, 1, note.Revision)
	assert.True(t, IsPersistence(note.Err))
	assert.ErrorContains(t, note.Err, "disk full")

	doc := s.Document()
	assert.Equal(t, "example.com", doc.Structured.Server.Host, "local edit is not rolled back")
	assert.True(t, s.Pending())
	assert.Error(t, s.LastPersistError())
	assert.Equal(t, 0, s.SavedRevision())

	store.setErr(nil)
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, []string{doc.Text}, store.saved())
	assert.False(t, s.Pending())
	assert.NoError(t, s.LastPersistError())
	assert.Equal(t, 1, s.SavedRevision())
}

func TestPersistenceFailureRetriesOnNextEdit(t *testing.T) {
	s, store, clock := newTestSession(t)
	ctx := context.Background()

	store.setErr(errors.New("disk full"))
	require.True(t, s.ApplyTextEdit(ctx, defaultDoc).OK())
	clock.Advance(time.Second)
	assert.Empty(t, store.saved())

	store.setErr(nil)
	require.True(t, s.ApplyTextEdit(ctx, defaultDoc).OK())
	clock.Advance(time.Second)
	assert.Len(t, store.saved(), 1)
}

func TestWithoutStore(t *testing.T) {
	clock := debounce.NewFakeClock(epoch)
	s, err := New(Document{Structured: config.DefaultConfig()}, WithClock(clock))
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.ApplyTextEdit(context.Background(), defaultDoc).OK())
	assert.False(t, s.Pending())
	assert.Nil(t, s.Store())
	assert.NoError(t, s.Flush(context.Background()))
	assert.Zero(t, clock.Waiting())
}

func TestReload(t *testing.T) {
	s, store, clock := newTestSession(t)
	ctx := context.Background()

	require.True(t, s.ApplyTextEdit(ctx, defaultDoc).OK())
	require.True(t, s.Pending())

	external := "server:\n  host: remote\n  port: 1\n  use_ssl: false\nlogging:\n  level: warn\n  file: x.log\n"
	res := s.Reload(ctx, external)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, external, s.Document().Text)
	assert.Equal(t, "remote", s.Document().Structured.Server.Host)
	assert.False(t, s.Pending(), "external content replaces the pending save")
	assert.Equal(t, 2, s.SavedRevision())

	clock.Advance(time.Second)
	assert.Empty(t, store.saved())

	bad := s.Reload(ctx, "server: [")
	assert.Equal(t, StatusParseError, bad.Status)
	assert.Equal(t, external, s.Document().Text, "a broken file does not replace the view")
}

func TestComplete(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	s.ApplyTextEdit(ctx, "logging:\n  level: ")
	res, err := s.Complete(ctx, 1, 9)
	require.NoError(t, err)
	require.True(t, res.Located)

	labels := make([]string, len(res.Items))
	for i, it := range res.Items {
		labels[i] = it.Label
	}
	assert.Equal(t, []string{"debug", "info", "warn", "error"}, labels)
}

func TestEvents(t *testing.T) {
	events := telemetry.NewSyncEventPublisher()
	var (
		mu    sync.Mutex
		types []string
	)
	events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
	}, nil)

	s, _, clock := newTestSession(t, WithEvents(events))
	ctx := context.Background()
	s.ApplyTextEdit(ctx, "server: [")
	s.ApplyTextEdit(ctx, defaultDoc)
	clock.Advance(time.Second)
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		telemetry.EventTypeSessionOpened,
		telemetry.EventTypeSyncRejected,
		telemetry.EventTypeSyncApplied,
		telemetry.EventTypePersistSucceeded,
		telemetry.EventTypeSessionClosed,
	}, types)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := stores.NewFileStore(path)
	clock := debounce.NewFakeClock(epoch)
	ctx := context.Background()

	s, err := Open(ctx, store, WithClock(clock))
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Valid())
	assert.Equal(t, config.DefaultConfig(), s.Document().Structured)
	assert.Equal(t, store, s.Store())

	cfg := config.DefaultConfig()
	cfg.Server.Port = 4000
	require.True(t, s.ApplyStructuredEdit(ctx, cfg).OK())
	clock.Advance(DefaultDebounce)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port: 4000")
}

func TestOpenInvalidStoredText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: abc\n"), 0o644))

	s, err := Open(context.Background(), stores.NewFileStore(path))
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Valid())
	assert.Equal(t, "server:\n  port: abc\n", s.Document().Text)
	assert.Equal(t, config.DefaultConfig(), s.Document().Structured)
}

func TestConcurrentAccess(t *testing.T) {
	store := &memStore{}
	s, err := New(Document{Structured: config.DefaultConfig()},
		WithStore(store), WithDebounce(time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				cfg := s.Document().Structured
				cfg.Server.Port = 1000 + i*100 + j
				s.ApplyStructuredEdit(ctx, cfg)
				_, _ = s.Complete(ctx, 0, 0)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close())

	saved := store.saved()
	require.NotEmpty(t, saved)
	assert.Equal(t, s.Document().Text, saved[len(saved)-1])
}
