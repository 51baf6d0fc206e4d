package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from wailsRuntime
// ─────────────────────────────────────────────────────────────

// Events emitted to the page bridge.
const (
	EventRedirect         = "page:redirect"
	EventNavigateFailed   = "page:navigate-failed"
	EventNavigateDeferred = "page:navigate-deferred"
	EventAutosaveDisabled = "page:autosave-disabled"
	EventAutosaveEnabled  = "page:autosave-enabled"
)

// EventEmitter is an interface for emitting events to the frontend.
// The App struct implements this by delegating to wailsRuntime.EventsEmit.
// Services receive this interface instead of a wailsRuntime context,
// which makes them independently testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Navigations complete on their own goroutine, so recording is locked.
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

// Named returns the recorded emissions of one event, in order.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
