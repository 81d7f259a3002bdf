package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "production needs endpoint", mutate: func(c *Config) { *c = *ProductionConfig() }, wantErr: true},
		{name: "production with endpoint", mutate: func(c *Config) {
			*c = *ProductionConfig()
			c.Tracing.Endpoint = "localhost:4317"
		}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "empty event buffer", mutate: func(c *Config) { c.Events.BufferSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.RecordCompletion("value", "ok", 4, time.Millisecond)
	m.RecordCompletion("value", "ok", 2, time.Millisecond)
	m.RecordSync("text", "parse_error", time.Millisecond)
	m.RecordPersist("file", errors.New("disk full"), time.Millisecond)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.completionRequests.WithLabelValues("value", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncResults.WithLabelValues("text", "parse_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistWrites.WithLabelValues("file", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordCompletion("key", "empty", 0, time.Millisecond)
		m.RecordSync("structured", "ok", time.Millisecond)
		m.RecordPersist("sqlite", nil, time.Millisecond)
		m.AddPendingWrites(1)
		m.SessionOpened()
	})
	assert.Nil(t, m.Registry())

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordError("persistence") })
}

func TestSyncEventPublisherDeliversInline(t *testing.T) {
	ep := NewSyncEventPublisher()

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterBySessionID("a"))

	require.NoError(t, ep.PublishSyncApplied("a", "text", 1))
	require.NoError(t, ep.PublishSyncApplied("b", "text", 1))
	require.NoError(t, ep.PublishPersistFailed("a", "file", 1, "boom"))

	require.Len(t, got, 2)
	assert.Equal(t, EventTypeSyncApplied, got[0].Type)
	assert.Equal(t, EventTypePersistFailed, got[1].Type)
	assert.Equal(t, EventLevelError, got[1].Level)
	assert.NotEmpty(t, got[1].ID)
	assert.False(t, got[1].Timestamp.IsZero())
}

func TestUnsubscribe(t *testing.T) {
	ep := NewSyncEventPublisher()
	require.True(t, ep.Enabled())

	var first, second int
	stopFirst := ep.Subscribe(func(Event) { first++ }, nil)
	ep.Subscribe(func(Event) { second++ }, nil)

	require.NoError(t, ep.PublishSessionOpened("s"))
	stopFirst()
	stopFirst()
	require.NoError(t, ep.PublishSessionClosed("s"))

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)

	disabled, err := NewEventPublisher(EventsConfig{})
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	var nilPublisher *EventPublisher
	assert.False(t, nilPublisher.Enabled())
}

func TestAsyncEventPublisherFlushesOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		BufferSize:    16,
		FlushInterval: time.Hour,
		MaxBatchSize:  100,
		EnableAsync:   true,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var types []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	}, nil)

	require.NoError(t, ep.PublishSessionOpened("s"))
	require.NoError(t, ep.PublishSessionClosed("s"))
	require.NoError(t, ep.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventTypeSessionOpened, EventTypeSessionClosed}, types)
}

func TestFilterByLevel(t *testing.T) {
	f := FilterByLevel(EventLevelWarning)
	assert.False(t, f(Event{Level: EventLevelInfo}))
	assert.True(t, f(Event{Level: EventLevelWarning}))
	assert.True(t, f(Event{Level: EventLevelError}))
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "noop")
	require.NotNil(t, ic.Logger)
	assert.Nil(t, ic.Span)
	assert.NotPanics(t, func() { ic.End(errors.New("x")) })
}

func TestNopTelemetry(t *testing.T) {
	tel := NewNop()
	ctx := tel.WithContext(context.Background())
	assert.Same(t, tel, FromTelemetryContext(ctx))

	ic := StartOperation(ctx, "op")
	ic.End(nil)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
