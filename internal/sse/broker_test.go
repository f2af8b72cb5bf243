package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(NewEvent(TypeReindexFailed, map[string]string{"error": "boom"}))

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: reindex.failed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"error":"boom"`) {
			t.Errorf("missing data in %q", s)
		}
		if !strings.HasPrefix(s, "id: ") || len(strings.SplitN(s, "\n", 2)[0]) != len("id: ")+36 {
			t.Errorf("missing uuid id line in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublish_AssignsMissingID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "custom", Data: 1})
	msg := string(<-ch)
	if strings.HasPrefix(msg, "id: \n") {
		t.Errorf("empty id in %q", msg)
	}
}

func drain(ch chan []byte) (graph, other int) {
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "event: graph.updated") {
				graph++
			} else {
				other++
			}
		default:
			return graph, other
		}
	}
}

func TestPublishNoteEvent_GraphThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a.md")
	b.PublishNoteEvent("updated", "b.md")
	b.PublishNoteEvent("skipped", "c.md")

	time.Sleep(50 * time.Millisecond)
	graph, notes := drain(ch)
	if notes != 2 {
		t.Errorf("note events = %d, want 2", notes)
	}
	if graph != 1 {
		t.Errorf("graph events = %d, want 1 (throttled)", graph)
	}
}

func TestReindexEvents_GraphOnlyOnSuccess(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(NewEvent(TypeReindexFailed, nil))
	time.Sleep(20 * time.Millisecond)
	if graph, _ := drain(ch); graph != 0 {
		t.Errorf("failed reindex emitted graph.updated")
	}

	b.Publish(NewEvent(TypeReindexFinished, nil))
	time.Sleep(20 * time.Millisecond)
	if graph, _ := drain(ch); graph != 1 {
		t.Errorf("graph events after success = %d, want 1", graph)
	}
}

// flushRecorder guards the recorder body so the handler goroutine and the
// test can both touch it.
type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishNoteEvent("updated", "x.md")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(NewEvent(TypeNoteUpdated, map[string]string{"path": "x.md"}))
	b.PublishNoteEvent("updated", "x.md")
}

func TestSubscribeFrom_ReplaysAfterLastID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	probe := b.Subscribe()
	defer b.Unsubscribe(probe)

	events := []Event{
		NewEvent("custom", 1),
		NewEvent("custom", 2),
		NewEvent("custom", 3),
	}
	for _, ev := range events {
		b.Publish(ev)
	}
	for range events {
		select {
		case <-probe:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for publish")
		}
	}

	ch := b.SubscribeFrom(events[0].ID)
	defer b.Unsubscribe(ch)
	for _, want := range events[1:] {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), "id: "+want.ID+"\n") {
				t.Errorf("replayed %q, want id %s", msg, want.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %s not replayed", want.ID)
		}
	}

	unknown := b.SubscribeFrom("no-such-id")
	defer b.Unsubscribe(unknown)
	select {
	case msg := <-unknown:
		t.Errorf("unexpected replay %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	old := heartbeatInterval
	heartbeatInterval = 10 * time.Millisecond
	defer func() { heartbeatInterval = old }()

	b := NewBroker(time.Second)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !strings.Contains(w.body(), ": ping\n\n") {
		t.Errorf("no heartbeat in %q", w.body())
	}
}
