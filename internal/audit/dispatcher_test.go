package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "ignored"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 || len(d.DroppedByType()) != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 128}, sink)
	for i := 0; i < 100; i++ {
		d.Emit(context.Background(), Event{EventType: "e"})
	}
	d.Close()

	if got := sink.count.Load(); got != 100 {
		t.Fatalf("expected 100 delivered events, got %d", got)
	}
	if d.Delivered() != 100 {
		t.Fatalf("expected delivered counter 100, got %d", d.Delivered())
	}

	d.Emit(context.Background(), Event{EventType: "after-close"})
	if got := sink.count.Load(); got != 100 {
		t.Fatal("emit after close must be ignored")
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{EventType: "e3"})
	if time.Since(start) > time.Second {
		t.Fatal("blocking emit must return on context cancellation")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", d.Dropped())
	}
}

type gatedTypeSink struct {
	entered chan struct{}
	gate    chan struct{}
	mu      sync.Mutex
	seen    map[string]int
}

func (s *gatedTypeSink) Emit(_ context.Context, event Event) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
	s.mu.Lock()
	s.seen[event.EventType]++
	s.mu.Unlock()
}

func TestDispatcherRetainedTypesAreNotShed(t *testing.T) {
	sink := &gatedTypeSink{
		entered: make(chan struct{}, 8),
		gate:    make(chan struct{}),
		seen:    map[string]int{},
	}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Retained:   []string{"account_locked"},
	}, sink)

	// The worker holds the first event and the second fills the buffer.
	d.Emit(context.Background(), Event{EventType: "sign_in_failure"})
	<-sink.entered
	d.Emit(context.Background(), Event{EventType: "sign_in_failure"})
	d.Emit(context.Background(), Event{EventType: "sign_in_failure"})
	d.Emit(context.Background(), Event{EventType: "token_rejected"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{EventType: "account_locked"})
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("retained event must wait for room instead of being shed")
	}

	queued := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "account_locked"})
		close(queued)
	}()
	close(sink.gate)
	<-queued
	d.Close()

	drops := d.DroppedByType()
	if len(drops) != 3 || drops["sign_in_failure"] != 1 || drops["token_rejected"] != 1 || drops["account_locked"] != 1 {
		t.Fatalf("unexpected drops by type: %v", drops)
	}
	var total uint64
	for _, n := range drops {
		total += n
	}
	if total != d.Dropped() {
		t.Fatalf("per-type drops %d do not add up to %d", total, d.Dropped())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.seen["account_locked"] != 1 {
		t.Fatalf("expected the second lock event to be delivered, got %v", sink.seen)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "sign_in_success", UserID: "u1", Success: true})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["event_type"] != "sign_in_success" || decoded["user_id"] != "u1" {
		t.Fatalf("unexpected payload: %s", line)
	}
	if _, ok := decoded["ip"]; ok {
		t.Fatal("empty ip must be omitted")
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "sign_in_success", Success: true})
	sink.Emit(context.Background(), Event{
		EventType: "account_locked",
		UserID:    "u1",
		Error:     "account_locked",
		Metadata:  map[string]string{"attempts": "10"},
	})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels: %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].LoggerName != "audit" {
		t.Fatalf("expected logger name audit, got %q", entries[1].LoggerName)
	}
	fields := entries[1].ContextMap()
	if fields["meta.attempts"] != "10" || fields["error_code"] != "account_locked" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
