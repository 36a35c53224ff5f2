package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/notifyq/pkg/broadcast"
	"github.com/notifyhub/notifyq/pkg/notification"
)

// EventType identifies a job lifecycle observation.
type EventType string

const (
	EventEnqueued  EventType = "enqueued"
	EventPromoted  EventType = "promoted"
	EventActive    EventType = "active"
	EventCompleted EventType = "completed"
	EventRetried   EventType = "retried"
	EventFailed    EventType = "failed"
	EventStalled   EventType = "stalled"
)

// Event is one lifecycle observation published for external consumers
// (logging, metrics, status endpoints). Events are advisory: delivery to
// subscribers is best-effort and never blocks job processing.
type Event struct {
	Type          EventType            `json:"type"`
	JobID         uuid.UUID            `json:"job_id"`
	Channel       notification.Channel `json:"channel,omitempty"`
	Attempt       int                  `json:"attempt,omitempty"`
	Error         string               `json:"error,omitempty"`
	NextAttemptAt *time.Time           `json:"next_attempt_at,omitempty"`
	Result        *notification.Result `json:"result,omitempty"`
	At            time.Time            `json:"at"`
}

// Events is the typed broadcaster the queue components publish through.
type Events = broadcast.Broadcaster[Event]

// NewEvents creates an in-memory event broadcaster with the given
// per-subscriber buffer.
func NewEvents(bufferSize int) Events {
	return broadcast.NewMemoryBroadcaster[Event](bufferSize)
}

// emit publishes an event when a broadcaster is configured. A nil
// broadcaster disables observation entirely.
func emit(ctx context.Context, events Events, evt Event) {
	if events == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	_ = events.Broadcast(ctx, broadcast.Message[Event]{Data: evt})
}
