package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"labmate/internal/domain/models/orchestration"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// EventWriter writes orchestration events as SSE frames.
// Headers are sent lazily with the first frame, so a request that fails
// before producing any event can still be answered with a plain error status.
// It is safe for concurrent use by the run and the keep-alive goroutine.
type EventWriter struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	clientID string
	started  bool
	seq      int
	err      error
}

// NewEventWriter wraps w. It fails if w does not support flushing.
func NewEventWriter(w http.ResponseWriter, clientID string) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &EventWriter{w: w, flusher: flusher, clientID: clientID}, nil
}

// Started reports whether any frame has been written.
func (e *EventWriter) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Err returns the first write error, if any.
func (e *EventWriter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Emit implements the orchestration EventSink. Write failures are kept in
// Err; the run keeps going so its checkpoint is still saved.
func (e *EventWriter) Emit(event orchestration.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"type":%q,"thread_id":%q}`, event.Type, event.ThreadID))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return
	}
	e.start()
	e.seq++
	if _, err := fmt.Fprintf(e.w, "id: %d\nevent: %s\ndata: %s\n\n", e.seq, event.Type, data); err != nil {
		e.err = fmt.Errorf("write event: %w", err)
		return
	}
	e.flusher.Flush()
}

// WriteKeepAlive implements KeepAliveWriter.
func (e *EventWriter) WriteKeepAlive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.start()
	if _, err := fmt.Fprint(e.w, ": keepalive\n\n"); err != nil {
		e.err = fmt.Errorf("write keepalive failed: %w", err)
		return e.err
	}
	e.flusher.Flush()
	return nil
}

func (e *EventWriter) start() {
	if e.started {
		return
	}
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	if e.clientID != "" {
		h.Set("X-Client-ID", e.clientID)
	}
	e.w.WriteHeader(http.StatusOK)
	e.started = true
}
