package progress_test

import (
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := progress.NewMemoryEventLogger()

	err := logger.LogEvent(progress.TransitionEvent{
		Op:        progress.OpMarkComplete,
		StudentID: "s1",
		TopicID:   "A",
		From:      progress.StatusInProgress,
		To:        progress.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Op != progress.OpMarkComplete {
		t.Errorf("Op = %q, want mark_topic_complete", events[0].Op)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresOp(t *testing.T) {
	logger := progress.NewMemoryEventLogger()
	if err := logger.LogEvent(progress.TransitionEvent{StudentID: "s1"}); err == nil {
		t.Fatal("expected error for missing op")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := progress.NewPostgresEventLogger(nil)

	err := logger.LogEvent(progress.TransitionEvent{
		Op:        progress.OpEnroll,
		StudentID: "s1",
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

type failingLogger struct{ calls int }

func (f *failingLogger) LogEvent(progress.TransitionEvent) error {
	f.calls++
	return errors.New("sink down")
}

func TestMultiEventLogger_CallsAll(t *testing.T) {
	failing := &failingLogger{}
	memory := progress.NewMemoryEventLogger()
	multi := progress.MultiEventLogger{failing, memory}

	err := multi.LogEvent(progress.TransitionEvent{Op: progress.OpCascade})
	if err == nil {
		t.Fatal("expected first error to be returned")
	}
	if failing.calls != 1 {
		t.Errorf("failing calls = %d, want 1", failing.calls)
	}
	if len(memory.Events()) != 1 {
		t.Errorf("memory events = %d, want 1 after earlier failure", len(memory.Events()))
	}
}

func TestBroadcaster(t *testing.T) {
	b := progress.NewBroadcaster(1)
	events, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", b.Subscribers())
	}

	_ = b.LogEvent(progress.TransitionEvent{ID: "e1", Op: progress.OpApprove})
	// Buffer is full; the second event is dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		_ = b.LogEvent(progress.TransitionEvent{ID: "e2", Op: progress.OpApprove})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LogEvent blocked on a full subscriber")
	}

	got := <-events
	if got.ID != "e1" {
		t.Errorf("event ID = %q, want e1", got.ID)
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Error("channel should be closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", b.Subscribers())
	}
	if err := b.LogEvent(progress.TransitionEvent{ID: "e3"}); err != nil {
		t.Errorf("LogEvent() with no subscribers error = %v", err)
	}
}
