package goGuard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, SecurityEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, SecurityEvent) {
	<-s.gate
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	h := newTestHarness(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })

	if _, err := h.engine.CreateSession(context.Background(), CreateSessionRequest{UserID: "u1"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	h.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesPersistedEvent(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(8)
	h := newTestHarness(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	setup := h.enable(t, "u1")
	if _, err := h.engine.VerifyTwoFactorLogin(ctx, "u1", setup.BackupCodes[0], MethodBackupCodes); err != nil {
		t.Fatalf("VerifyTwoFactorLogin failed: %v", err)
	}

	stored := h.events(t, "u1")
	seen := map[string]SecurityEvent{}
	timeout := time.After(2 * time.Second)
	for len(seen) < len(stored) {
		select {
		case ev := <-sink.Events():
			seen[ev.ID] = ev
		case <-timeout:
			t.Fatalf("expected %d audit events, got %d", len(stored), len(seen))
		}
	}

	for _, ev := range stored {
		got, ok := seen[ev.ID]
		if !ok || got.Type != ev.Type {
			t.Fatalf("audit stream missing stored event %+v", ev)
		}
	}
	login := eventsOfType(stored, EventLogin)
	if len(login) != 1 || seen[login[0].ID].Details.IP != "198.51.100.33" {
		t.Fatalf("expected login event with client ip, got %+v", login)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false

	var buf syncBuffer
	h := newTestHarness(t, cfg, func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(&buf)) })
	ctx := context.Background()

	setup := h.enable(t, "u1")
	h.clock.Advance(30 * time.Second)
	totp := h.code(t, setup.Secret)
	if ok, _ := h.engine.VerifyTwoFactorLogin(ctx, "u1", totp, MethodTOTP); !ok {
		t.Fatal("expected totp login")
	}
	if ok, _ := h.engine.VerifyTwoFactorLogin(ctx, "u1", setup.BackupCodes[0], MethodBackupCodes); !ok {
		t.Fatal("expected backup code login")
	}
	h.engine.Close()

	needles := append([]string{setup.Secret, totp}, setup.BackupCodes...)
	out := buf.String()
	if out == "" {
		t.Fatal("expected audit output")
	}
	for _, needle := range needles {
		if strings.Contains(out, needle) {
			t.Fatalf("sensitive value leaked in audit stream: %q", needle)
		}
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e1"})
	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e1"})
	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), SecurityEvent{ID: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditDispatcherCloseDrainsQueue(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 8,
		DropIfFull: false,
	}, sink, nil)

	for i := 0; i < 5; i++ {
		dispatcher.Emit(context.Background(), SecurityEvent{ID: "e"})
	}
	dispatcher.Close()

	if sink.Count() != 5 {
		t.Fatalf("expected queued events to reach the sink before Close returns, got %d", sink.Count())
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{}, nil)

	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), SecurityEvent{ID: "e2"})
}

type panickySink struct {
	calls atomic.Int64
}

func (s *panickySink) Emit(_ context.Context, ev SecurityEvent) {
	s.calls.Add(1)
	if ev.ID == "boom" {
		panic("sink failure")
	}
}

func TestAuditDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panickySink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
	}, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))

	dispatcher.Emit(context.Background(), SecurityEvent{ID: "boom"})
	dispatcher.Emit(context.Background(), SecurityEvent{ID: "after"})
	dispatcher.Close()

	if sink.calls.Load() != 2 {
		t.Fatalf("expected delivery to continue after a panic, got %d calls", sink.calls.Load())
	}
	if dispatcher.Panics() != 1 {
		t.Fatalf("expected one recorded panic, got %d", dispatcher.Panics())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	sink := MultiSink{a, nil, b}
	sink.Emit(context.Background(), SecurityEvent{ID: "e1"})
	sink.Emit(context.Background(), SecurityEvent{ID: "e2"})

	if a.Count() != 2 || b.Count() != 2 {
		t.Fatalf("expected both sinks to see 2 events, got %d and %d", a.Count(), b.Count())
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), SecurityEvent{
		ID:        "01J0000000000000000000000A",
		UserID:    "u1",
		Type:      EventTwoFactorDisabled,
		Severity:  SeverityHigh,
		Details:   EventDetails{IP: "127.0.0.1"},
		Timestamp: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	})
	sink.Emit(context.Background(), SecurityEvent{ID: "second", UserID: "u1", Type: EventLogin})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if decoded["type"] != "2fa_disabled" || decoded["user_id"] != "u1" || decoded["severity"] != "high" {
		t.Fatalf("unexpected document %v", decoded)
	}
	if decoded["timestamp"] != "2026-03-02T09:00:00Z" {
		t.Fatalf("unexpected timestamp %v", decoded["timestamp"])
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
