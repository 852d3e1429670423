// Package history exports lifecycle events to external audit systems.
// Recording is best-effort: sinks never influence supervision decisions and
// no state is ever read back (sessions and processes are not recoverable
// across restarts by design).
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventReady            EventType = "ready"   // process observed its readiness marker
	EventFailed           EventType = "failed"  // startup failure (missing workdir, timeout, early exit)
	EventStopped          EventType = "stopped" // explicit stop completed
	EventExited           EventType = "exited"  // unexpected exit while running
	EventSessionCreated   EventType = "session_created"
	EventSessionDestroyed EventType = "session_destroyed"
)

// Event is a self-contained audit record. Name is a process name for process
// events and a document id for session events.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	PID        int       `json:"pid,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
