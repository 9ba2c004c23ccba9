package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// EventType represents different event types in the system
type EventType string

const (
	EventPresentation EventType = "presentation"
	EventJobFailed    EventType = "job_failed"
	EventPaperStored  EventType = "paper_stored"
	EventAlertMatched EventType = "alert_matched"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}

// PresentationPublisher emits the human-facing progress feed. Stages call
// it after every durable transition; failures to publish never fail the
// stage itself.
type PresentationPublisher interface {
	PublishPhase(ctx context.Context, event *models.PresentationEvent)
	PublishError(ctx context.Context, jobID uint64, phase models.PresentationPhase, reason string)
}
