package service_test

import (
	"context"
	"testing"
	"time"

	"etlbranching/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("walmart") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("walmart") {
		t.Fatal("expected second TryLock for same dataset to fail")
	}
	if !g.TryLock("instagram") {
		t.Fatal("expected TryLock for different dataset to succeed")
	}
	if !g.Running("walmart") {
		t.Fatal("expected walmart to be running")
	}
	g.Unlock("walmart")
	g.Unlock("instagram")

	if g.Running("walmart") {
		t.Fatal("expected walmart to be released")
	}
	if !g.TryLock("walmart") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("walmart")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("walmart") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("walmart")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	got := m.Recorded()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Event != "test:event" {
		t.Errorf("expected 'test:event', got %q", got[0].Event)
	}
	if got[1].Event != "test:event2" {
		t.Errorf("expected 'test:event2', got %q", got[1].Event)
	}
}

func TestLogEmitter_NilLogger(t *testing.T) {
	// falls back to slog.Default
	var e service.LogEmitter
	e.Emit(context.Background(), "test:event", 1)
}
