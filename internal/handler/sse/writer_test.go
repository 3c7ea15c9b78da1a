package sse

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"labmate/internal/domain/models/orchestration"
)

func TestEventWriter_Emit(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewEventWriter(rec, "client-1")
	if err != nil {
		t.Fatalf("NewEventWriter() error = %v", err)
	}
	if w.Started() {
		t.Fatal("headers must not be sent before the first event")
	}

	w.Emit(orchestration.StreamEvent{Type: orchestration.EventLog, ThreadID: "t1", Data: orchestration.LogData{Stage: "planning"}})
	w.Emit(orchestration.StreamEvent{Type: orchestration.EventDone, ThreadID: "t1"})

	if !w.Started() {
		t.Fatal("expected stream to be started")
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("X-Client-ID"); got != "client-1" {
		t.Errorf("X-Client-ID = %q", got)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"id: 1\nevent: log\ndata: {",
		`"stage":"planning"`,
		"id: 2\nevent: done\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

type nonFlusher struct{ http.ResponseWriter }

func TestNewEventWriter_RequiresFlusher(t *testing.T) {
	_, err := NewEventWriter(nonFlusher{httptest.NewRecorder()}, "")
	if !errors.Is(err, ErrStreamingUnsupported) {
		t.Fatalf("error = %v, want ErrStreamingUnsupported", err)
	}
}

// brokenWriter fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (b brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestEventWriter_RemembersWriteError(t *testing.T) {
	w, err := NewEventWriter(brokenWriter{httptest.NewRecorder()}, "")
	if err != nil {
		t.Fatal(err)
	}
	w.Emit(orchestration.StreamEvent{Type: orchestration.EventLog})
	if w.Err() == nil {
		t.Fatal("expected write error to be kept")
	}
	if err := w.WriteKeepAlive(); err == nil {
		t.Fatal("keep-alive must fail after a write error")
	}
}

// countingKeepAlive counts pings and can be told to fail.
type countingKeepAlive struct {
	mu    sync.Mutex
	count int
	fail  bool
}

func (c *countingKeepAlive) WriteKeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if c.fail {
		return errors.New("gone")
	}
	return nil
}

func (c *countingKeepAlive) pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestTickerKeepAlive(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("pings until stopped", func(t *testing.T) {
		w := &countingKeepAlive{}
		k := NewTickerKeepAlive(5 * time.Millisecond)
		stopped := k.Start(w, logger)

		deadline := time.After(2 * time.Second)
		for w.pings() < 2 {
			select {
			case <-deadline:
				t.Fatal("keep-alive did not ping")
			case <-time.After(5 * time.Millisecond):
			}
		}
		k.Stop()
		k.Stop()
		<-stopped
	})

	t.Run("stops on write failure", func(t *testing.T) {
		w := &countingKeepAlive{fail: true}
		k := NewTickerKeepAlive(5 * time.Millisecond)
		stopped := k.Start(w, logger)

		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("keep-alive did not stop after a failed write")
		}
		k.Stop()
		if w.pings() != 1 {
			t.Errorf("pings = %d, want 1", w.pings())
		}
	})
}

func TestEventWriter_KeepAliveWritesComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewEventWriter(rec, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteKeepAlive(); err != nil {
		t.Fatal(err)
	}
	if rec.Body.String() != ": keepalive\n\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
