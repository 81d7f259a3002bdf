package session

import (
	"time"

	"github.com/configdesk/configdesk/pkg/debounce"
	"github.com/configdesk/configdesk/pkg/schema"
	"github.com/configdesk/configdesk/pkg/stores"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

// DefaultDebounce is the quiet period before an edit is persisted.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a Session.
type Option func(*Session)

// WithStore sets the persistence backend. Without a store, edits are kept
// in memory only.
func WithStore(store stores.Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithDebounce sets the quiet period before an edit is persisted.
func WithDebounce(delay time.Duration) Option {
	return func(s *Session) {
		s.delay = delay
	}
}

// WithClock sets the clock that drives debouncing and timestamps.
func WithClock(clock debounce.Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithSchema sets the schema documents are checked against.
func WithSchema(root *schema.Node) Option {
	return func(s *Session) {
		s.root = root
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(s *Session) {
		s.metrics = metrics
	}
}

// WithEvents sets the event publisher.
func WithEvents(events *telemetry.EventPublisher) Option {
	return func(s *Session) {
		s.events = events
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer *telemetry.Tracer) Option {
	return func(s *Session) {
		s.tracer = tracer
	}
}

// WithTelemetry sets the logger, metrics, events and tracer from tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Session) {
		if tel == nil {
			return
		}
		s.logger = tel.Logger
		s.metrics = tel.Metrics
		s.events = tel.Events
		s.tracer = tel.Tracer
	}
}

// WithNotifier sets who is told about failed saves.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithSaveTimeout bounds each debounced save.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.saveTimeout = d
	}
}
