package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted by an editing session.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// SessionID is the associated session, if applicable.
	SessionID string `json:"session_id,omitempty"`

	// Revision is the session document revision the event refers to.
	Revision int `json:"revision,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for session event types.
const (
	EventTypeSessionOpened    = "session.opened"
	EventTypeSessionClosed    = "session.closed"
	EventTypeSyncApplied      = "sync.applied"
	EventTypeSyncRejected     = "sync.rejected"
	EventTypePersistSucceeded = "persist.succeeded"
	EventTypePersistFailed    = "persist.failed"
	EventTypeStoreChanged     = "store.changed"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	nextID      uint64
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	id         uint64
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// NewSyncEventPublisher returns an enabled publisher that delivers each
// event to subscribers before Publish returns.
func NewSyncEventPublisher() *EventPublisher {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 1})
	return ep
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishSyncApplied publishes an accepted edit.
func (ep *EventPublisher) PublishSyncApplied(sessionID, source string, revision int) error {
	return ep.Publish(Event{
		Type:      EventTypeSyncApplied,
		Source:    source,
		SessionID: sessionID,
		Revision:  revision,
		Message:   fmt.Sprintf("Session %s accepted %s edit, revision %d", sessionID, source, revision),
		Level:     EventLevelInfo,
	})
}

// PublishSyncRejected publishes an edit that failed to parse or validate.
func (ep *EventPublisher) PublishSyncRejected(sessionID, source, status, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeSyncRejected,
		Source:    source,
		SessionID: sessionID,
		Message:   fmt.Sprintf("Session %s rejected %s edit: %s", sessionID, source, reason),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"status": status,
			"reason": reason,
		},
	})
}

// PublishPersistSucceeded publishes a completed persistence write.
func (ep *EventPublisher) PublishPersistSucceeded(sessionID, store string, revision int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypePersistSucceeded,
		Source:    store,
		SessionID: sessionID,
		Revision:  revision,
		Message:   fmt.Sprintf("Session %s saved revision %d to %s", sessionID, revision, store),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishPersistFailed publishes a failed persistence write.
func (ep *EventPublisher) PublishPersistFailed(sessionID, store string, revision int, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypePersistFailed,
		Source:    store,
		SessionID: sessionID,
		Revision:  revision,
		Message:   fmt.Sprintf("Session %s failed to save revision %d to %s: %s", sessionID, revision, store, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishSessionOpened publishes a new session.
func (ep *EventPublisher) PublishSessionOpened(sessionID string) error {
	return ep.Publish(Event{
		Type:      EventTypeSessionOpened,
		Source:    "session",
		SessionID: sessionID,
		Message:   fmt.Sprintf("Session %s opened", sessionID),
		Level:     EventLevelInfo,
	})
}

// PublishSessionClosed publishes a closed session.
func (ep *EventPublisher) PublishSessionClosed(sessionID string) error {
	return ep.Publish(Event{
		Type:      EventTypeSessionClosed,
		Source:    "session",
		SessionID: sessionID,
		Message:   fmt.Sprintf("Session %s closed", sessionID),
		Level:     EventLevelInfo,
	})
}

// PublishStoreChanged publishes an external modification of the persisted file.
func (ep *EventPublisher) PublishStoreChanged(store, path string) error {
	return ep.Publish(Event{
		Type:    EventTypeStoreChanged,
		Source:  store,
		Message: fmt.Sprintf("%s modified outside the editor", path),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// Enabled reports whether published events reach subscribers.
func (ep *EventPublisher) Enabled() bool {
	return ep != nil && ep.config.Enabled
}

// Subscribe adds a new event subscriber and returns a function that removes
// it. A nil filter accepts every event. Subscribers are called while the
// publisher holds its read lock and must not block.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) (unsubscribe func()) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.nextID++
	id := ep.nextID
	ep.subscribers = append(ep.subscribers, subscriberEntry{
		id:         id,
		subscriber: subscriber,
		filter:     filter,
	})

	return func() {
		ep.mu.Lock()
		defer ep.mu.Unlock()
		for i, entry := range ep.subscribers {
			if entry.id == id {
				ep.subscribers = append(ep.subscribers[:i:i], ep.subscribers[i+1:]...)
				return
			}
		}
	}
}

// processEvents delivers buffered events in batches, flushing a partial
// batch every FlushInterval.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers in order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher, delivering any
// buffered events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterBySessionID creates a filter that only allows events for one session.
func FilterBySessionID(sessionID string) EventFilter {
	return func(event Event) bool {
		return event.SessionID == sessionID
	}
}
