package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/configdesk/configdesk/pkg/completion"
	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/debounce"
	"github.com/configdesk/configdesk/pkg/schema"
	"github.com/configdesk/configdesk/pkg/stores"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

// Status is the outcome of an edit.
type Status string

const (
	StatusOK              Status = "ok"
	StatusParseError      Status = "parse_error"
	StatusValidationError Status = "validation_error"
)

// Edit sources, used in logs, metrics and events.
const (
	SourceText       = "text"
	SourceStructured = "structured"
	SourceExternal   = "external"
)

// Document is the pair of representations a session keeps in step.
// Structured is always the last valid value; Text is what the user typed
// last and may not parse.
type Document struct {
	Structured config.Config `json:"config"`
	Text       string        `json:"yaml_content"`
	Revision   int           `json:"revision"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Result reports the outcome of an edit. Parse and validation failures are
// reported here rather than as Go errors.
type Result struct {
	Status   Status              `json:"status"`
	Document Document            `json:"document"`
	Message  string              `json:"message,omitempty"`
	Errors   []config.FieldError `json:"errors,omitempty"`
	Err      *SyncError          `json:"-"`
}

// OK reports whether the edit was applied.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Notification describes a failed save.
type Notification struct {
	SessionID string
	Revision  int
	Err       error
	Time      time.Time
}

// Notifier is told about failed saves so they can be shown to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Session owns one editable document. Edits from either view are applied
// synchronously; successful ones are persisted after a debounce delay.
type Session struct {
	id          string
	root        *schema.Node
	store       stores.Store
	clock       debounce.Clock
	delay       time.Duration
	saveTimeout time.Duration
	notifier    Notifier

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
	tracer  *telemetry.Tracer

	completer *completion.Service
	debouncer *debounce.Debouncer

	// saveMu keeps at most one save in flight.
	saveMu sync.Mutex

	mu        sync.Mutex
	doc       Document
	validText string
	valid     bool
	dirty     bool
	saved     int
	lastErr   error
	closed    bool
}

// New returns a session editing doc. doc.Structured must be valid. An empty
// doc.Text is filled with the serialized form of doc.Structured.
func New(doc Document, opts ...Option) (*Session, error) {
	s := &Session{
		id:          uuid.New().String(),
		root:        schema.Default(),
		clock:       debounce.RealClock{},
		delay:       DefaultDebounce,
		saveTimeout: 10 * time.Second,
		logger:      telemetry.NewNopLogger(),
		metrics:     telemetry.NewNopMetrics(),
		tracer:      telemetry.NewNopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := config.Validate(&doc.Structured); err != nil {
		return nil, fmt.Errorf("invalid initial config: %w", err)
	}
	serialized, err := config.Serialize(&doc.Structured, s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize initial config: %w", err)
	}
	if doc.Text == "" {
		doc.Text = serialized
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.clock.Now()
	}

	s.doc = doc
	s.saved = doc.Revision
	s.validText = serialized
	if cfg, err := config.Decode(doc.Text, s.root); err == nil && *cfg == doc.Structured {
		s.valid = true
		s.validText = doc.Text
	}

	s.logger = s.logger.NewComponentLogger("session").WithSessionID(s.id)
	s.debouncer = debounce.New(s.delay, s.clock)
	s.completer = completion.NewService(s.root, &telemetry.Telemetry{
		Logger:  s.logger,
		Tracer:  s.tracer,
		Metrics: s.metrics,
		Events:  s.events,
	})

	s.metrics.SessionOpened()
	_ = s.events.PublishSessionOpened(s.id)
	s.logger.Zerolog().Debug().Bool("valid", s.valid).Msg("session opened")
	return s, nil
}

// Open loads the current document from store and returns a session that
// persists to it. Stored text that fails to decode is kept as the session's
// text, with the default config as the structured value.
func Open(ctx context.Context, store stores.Store, opts ...Option) (*Session, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", store.Name(), err)
	}

	doc := Document{Text: snap.Text, UpdatedAt: snap.CreatedAt}
	cfg, decodeErr := config.Decode(snap.Text, nil)
	if decodeErr == nil {
		doc.Structured = *cfg
	} else {
		doc.Structured = config.DefaultConfig()
	}

	opts = append([]Option{WithStore(store)}, opts...)
	s, err := New(doc, opts...)
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		s.logger.Zerolog().Warn().
			Err(decodeErr).
			Str("store", store.Name()).
			Msg("stored config is invalid, using defaults until it is fixed")
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Schema returns the schema the session checks documents against.
func (s *Session) Schema() *schema.Node {
	return s.root
}

// Store returns the persistence backend, or nil.
func (s *Session) Store() stores.Store {
	return s.store
}

// Document returns a copy of the current document.
func (s *Session) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Valid reports whether the current text decodes to the structured value.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Pending reports whether an applied edit has not been persisted yet.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// SavedRevision returns the revision most recently persisted.
func (s *Session) SavedRevision() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// LastPersistError returns the error of the most recent save, or nil if it
// succeeded.
func (s *Session) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ApplyTextEdit replaces the document text. If text does not decode, the
// text is still kept but the structured value stays at its last valid
// state. Applied edits are scheduled for persistence.
func (s *Session) ApplyTextEdit(ctx context.Context, text string) Result {
	ctx, span := s.tracer.StartSyncSpan(ctx, s.id, SourceText)
	defer span.End()
	timer := telemetry.NewTimer()

	cfg, err := config.Decode(text, s.root)

	s.mu.Lock()
	s.doc.Text = text
	s.doc.UpdatedAt = s.clock.Now()
	if err != nil {
		s.valid = false
		res := s.rejectedLocked(SourceText, err)
		s.mu.Unlock()
		s.reportRejected(ctx, SourceText, res, timer)
		return res
	}
	s.doc.Structured = *cfg
	res := s.appliedLocked(text)
	s.mu.Unlock()

	s.reportApplied(ctx, SourceText, res, timer)
	return res
}

// ApplyStructuredEdit replaces the structured value and regenerates the
// text in schema order. A value that fails validation changes nothing.
func (s *Session) ApplyStructuredEdit(ctx context.Context, cfg config.Config) Result {
	ctx, span := s.tracer.StartSyncSpan(ctx, s.id, SourceStructured)
	defer span.End()
	timer := telemetry.NewTimer()

	err := config.Validate(&cfg)
	var text string
	if err == nil {
		text, err = config.Serialize(&cfg, s.root)
	}

	s.mu.Lock()
	if err != nil {
		res := s.rejectedLocked(SourceStructured, err)
		s.mu.Unlock()
		s.reportRejected(ctx, SourceStructured, res, timer)
		return res
	}
	s.doc.Structured = cfg
	s.doc.Text = text
	s.doc.UpdatedAt = s.clock.Now()
	res := s.appliedLocked(text)
	s.mu.Unlock()

	s.reportApplied(ctx, SourceStructured, res, timer)
	return res
}

// Reload applies text that came from the store itself, such as a file
// edited outside the session. It replaces the document like a text edit
// but drops any pending save instead of scheduling one.
func (s *Session) Reload(ctx context.Context, text string) Result {
	ctx, span := s.tracer.StartSyncSpan(ctx, s.id, SourceExternal)
	defer span.End()
	timer := telemetry.NewTimer()

	cfg, err := config.Decode(text, s.root)

	s.mu.Lock()
	if err != nil {
		// Keep the user's view; the broken file is theirs to fix.
		res := s.rejectedLocked(SourceExternal, err)
		s.mu.Unlock()
		s.reportRejected(ctx, SourceExternal, res, timer)
		return res
	}
	s.debouncer.Cancel()
	if s.dirty {
		s.metrics.AddPendingWrites(-1)
	}
	s.dirty = false
	s.doc.Structured = *cfg
	s.doc.Text = text
	s.doc.UpdatedAt = s.clock.Now()
	s.doc.Revision++
	s.saved = s.doc.Revision
	s.validText = text
	s.valid = true
	res := Result{Status: StatusOK, Document: s.doc}
	s.mu.Unlock()

	s.reportApplied(ctx, SourceExternal, res, timer)
	return res
}

// appliedLocked records a successful edit whose text is text and schedules
// a save. s.mu must be held.
func (s *Session) appliedLocked(text string) Result {
	s.doc.Revision++
	s.validText = text
	s.valid = true
	if s.store != nil && !s.closed {
		if !s.dirty {
			s.metrics.AddPendingWrites(1)
		}
		s.dirty = true
		s.debouncer.Trigger(s.persistDebounced)
	}
	return Result{Status: StatusOK, Document: s.doc}
}

// rejectedLocked builds the Result for a failed edit. s.mu must be held.
func (s *Session) rejectedLocked(source string, err error) Result {
	serr := classify(source, err).WithSession(s.id)
	res := Result{Document: s.doc, Err: serr}

	var pe *config.ParseError
	var ve *config.ValidationError
	switch {
	case errors.As(err, &pe):
		res.Status = StatusParseError
		res.Message = pe.Error()
	case errors.As(err, &ve):
		res.Status = StatusValidationError
		res.Message = ve.Error()
		res.Errors = ve.Errors
	default:
		res.Status = StatusValidationError
		res.Message = err.Error()
	}
	return res
}

func (s *Session) reportApplied(ctx context.Context, source string, res Result, timer *telemetry.Timer) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		telemetry.AttrSyncStatus.String(string(res.Status)),
		telemetry.AttrRevision.Int(res.Document.Revision),
	)
	telemetry.RecordSuccess(span)

	s.metrics.RecordSync(source, string(res.Status), timer.Duration())
	_ = s.events.PublishSyncApplied(s.id, source, res.Document.Revision)
	s.logger.Zerolog().Debug().
		Str("source", source).
		Int("revision", res.Document.Revision).
		Msg("edit applied")
}

func (s *Session) reportRejected(ctx context.Context, source string, res Result, timer *telemetry.Timer) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		telemetry.AttrSyncStatus.String(string(res.Status)),
		telemetry.AttrErrorClass.String(string(res.Err.Class)),
	)
	telemetry.RecordError(span, res.Err)

	s.metrics.RecordSync(source, string(res.Status), timer.Duration())
	s.metrics.RecordError(string(res.Err.Class))
	_ = s.events.PublishSyncRejected(s.id, source, string(res.Status), res.Message)
	s.logger.Zerolog().Debug().
		Str("source", source).
		Str("status", string(res.Status)).
		Str("reason", res.Message).
		Msg("edit rejected")
}

// Complete returns completion suggestions for a 0-based cursor position in
// the session's current text.
func (s *Session) Complete(ctx context.Context, line, column int) (*completion.Result, error) {
	s.mu.Lock()
	text := s.doc.Text
	s.mu.Unlock()
	return s.completer.CompleteAt(ctx, text, line, column)
}

// persistDebounced is the debouncer callback.
func (s *Session) persistDebounced() {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	_ = s.persist(ctx)
}

// Flush saves any pending edit now instead of waiting for the debounce
// delay. It returns the save error, if any.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.debouncer.Cancel()
	s.debouncer.Wait()
	return s.persist(ctx)
}

// persist writes the last valid text if an applied edit is unsaved.
func (s *Session) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty || s.store == nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	text, rev := s.validText, s.doc.Revision
	s.dirty = false
	s.mu.Unlock()
	s.metrics.AddPendingWrites(-1)

	err := s.save(ctx, text, rev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		// Retry on the next edit or Flush.
		if !s.dirty {
			s.metrics.AddPendingWrites(1)
		}
		s.dirty = true
		return err
	}
	if rev > s.saved {
		s.saved = rev
	}
	return nil
}

func (s *Session) save(ctx context.Context, text string, rev int) error {
	name := s.store.Name()
	ctx, span := s.tracer.StartPersistSpan(ctx, s.id, name)
	defer span.End()
	span.SetAttributes(telemetry.AttrRevision.Int(rev))
	timer := telemetry.NewTimer()

	err := s.store.Save(ctx, &stores.Snapshot{Text: text})
	dur := timer.Duration()
	s.metrics.RecordPersist(name, err, dur)

	if err != nil {
		serr := NewPersistenceError("failed to save config", err).
			WithSession(s.id).
			WithOperation("save").
			WithDetail("revision", rev).
			WithDetail("store", name)
		span.SetAttributes(telemetry.AttrErrorClass.String(string(ClassPersistence)))
		telemetry.RecordError(span, serr)
		s.metrics.RecordError(string(ClassPersistence))
		_ = s.events.PublishPersistFailed(s.id, name, rev, err.Error())
		s.logger.Zerolog().Error().Err(err).Str("store", name).Int("revision", rev).Msg("failed to persist config")
		if s.notifier != nil {
			s.notifier.Notify(Notification{SessionID: s.id, Revision: rev, Err: serr, Time: s.clock.Now()})
		}
		return serr
	}

	telemetry.RecordSuccess(span)
	_ = s.events.PublishPersistSucceeded(s.id, name, rev, dur)
	s.logger.Zerolog().Debug().Str("store", name).Int("revision", rev).Dur("duration", dur).Msg("config persisted")
	return nil
}

// Close cancels any pending save. Nothing is written after Close returns,
// except a save that was already running.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.dirty {
		s.metrics.AddPendingWrites(-1)
		s.logger.WithField("revision", s.doc.Revision).Warn("session closed with unsaved edits")
	}
	s.mu.Unlock()

	s.debouncer.Close()
	s.metrics.SessionClosed()
	_ = s.events.PublishSessionClosed(s.id)
	s.logger.Debug("session closed")
	return nil
}
