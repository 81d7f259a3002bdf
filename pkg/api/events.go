package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/configdesk/configdesk/pkg/telemetry"
)

// eventBuffer is how many events a slow stream client may lag behind
// before newer ones are dropped for it.
const eventBuffer = 128

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event and flushes it to the client.
func writeSSEEvent(w http.ResponseWriter, id, event, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	_ = http.NewResponseController(w).Flush()
}

// eventStreamHandler streams session events via SSE.
// Supports ?type= (comma-separated event types), ?level= (minimum level:
// info, warning, error) and ?session= filters.
func (s *Server) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	if !s.tel.Events.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event publishing is disabled")
		return
	}

	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	events := make(chan telemetry.Event, eventBuffer)
	unsubscribe := s.tel.Events.Subscribe(func(e telemetry.Event) {
		select {
		case events <- e:
		default:
		}
	}, filter)
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			seq++
			writeSSEEvent(w, strconv.FormatUint(seq, 10), e.Type, string(data))
		}
	}
}

// parseEventFilter combines the stream's query filters. It returns nil when
// no filter is given.
func parseEventFilter(q url.Values) (telemetry.EventFilter, error) {
	var filters []telemetry.EventFilter

	if v := q.Get("type"); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		filters = append(filters, telemetry.FilterByType(types...))
	}

	if v := q.Get("level"); v != "" {
		switch v {
		case telemetry.EventLevelInfo, telemetry.EventLevelWarning, telemetry.EventLevelError:
		default:
			return nil, fmt.Errorf("unknown event level %q (want info, warning or error)", v)
		}
		filters = append(filters, telemetry.FilterByLevel(v))
	}

	if v := q.Get("session"); v != "" {
		filters = append(filters, telemetry.FilterBySessionID(v))
	}

	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	}
	return func(e telemetry.Event) bool {
		for _, f := range filters {
			if !f(e) {
				return false
			}
		}
		return true
	}, nil
}
