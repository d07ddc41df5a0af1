package service

import (
	"context"
	"log/slog"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from the event transport
// ─────────────────────────────────────────────────────────────

// Event names.
const (
	EventRunCompleted  = "pipeline:run-completed"
	EventTaskCompleted = "pipeline:task-completed"
)

// EventEmitter publishes pipeline events. The mq.Publisher implements it over
// RabbitMQ; LogEmitter is used when no broker is configured.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e *LogEmitter) Emit(_ context.Context, event string, data any) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Event emitted.", "event", event, "data", data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Recorded returns a copy of the events emitted so far.
func (m *MockEmitter) Recorded() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}
