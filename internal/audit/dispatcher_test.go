package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *captureSink) Emit(_ context.Context, event Event) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	if d == nil {
		t.Fatal("enabled dispatcher must not be nil")
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.Emit(ctx, Event{EventType: "login", SubjectID: strconv.Itoa(i)})
	}
	d.Close()

	events := sink.all()
	if len(events) != 5 {
		t.Fatalf("delivered %d events, want 5", len(events))
	}
	for i, event := range events {
		if event.SubjectID != strconv.Itoa(i) {
			t.Fatalf("event %d out of order: %+v", i, event)
		}
	}
	if d.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", d.Dropped())
	}
}

func TestDispatcherDisabled(t *testing.T) {
	if d := NewDispatcher(Config{}, &captureSink{}); d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}

	var d *Dispatcher
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropsUnderBackpressure(t *testing.T) {
	sink := &captureSink{block: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()
	// The run loop pulls one event and blocks in the sink; the buffer
	// holds one more. Everything past that must be dropped, not block.
	for i := 0; i < 10; i++ {
		d.Emit(ctx, Event{EventType: "login"})
	}

	deadline := time.After(time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("no events dropped under backpressure")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(sink.block)
	d.Close()
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Close()

	d.Emit(context.Background(), Event{EventType: "login"})
	if got := len(sink.all()); got != 0 {
		t.Fatalf("events after close = %d, want 0", got)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: "logout",
		SubjectID: "sub-1",
		Success:   true,
	})

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EventType != "logout" || decoded.SubjectID != "sub-1" || !decoded.Success {
		t.Fatalf("decoded: %+v", decoded)
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(2)
	sink.Emit(context.Background(), Event{EventType: "login"})

	select {
	case event := <-sink.Events():
		if event.EventType != "login" {
			t.Fatalf("event: %+v", event)
		}
	default:
		t.Fatal("event not buffered")
	}

	// A full channel respects context cancellation instead of blocking.
	sink.Emit(context.Background(), Event{EventType: "a"})
	sink.Emit(context.Background(), Event{EventType: "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(ctx, Event{EventType: "c"})
}
