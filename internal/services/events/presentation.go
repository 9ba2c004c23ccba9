// -----------------------------------------------------------------------
// Presentation publisher - per-user progress feed over the event bus
// -----------------------------------------------------------------------

package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// UserEvent is the bus payload for presentation events: the event plus the
// channel owner it belongs to. SSE and WebSocket subscribers filter on
// UserID to build per-user streams.
type UserEvent struct {
	UserID string
	Event  *models.PresentationEvent
}

// Publisher implements PresentationPublisher over the in-process bus.
// Delivery is best-effort and lossy; a failed publish is logged, never
// propagated, so pipeline stages cannot fail on presentation.
type Publisher struct {
	events  interfaces.EventService
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewPublisher creates a presentation publisher that resolves each job's
// owner through storage.
func NewPublisher(events interfaces.EventService, storage interfaces.StorageManager, logger arbor.ILogger) interfaces.PresentationPublisher {
	return &Publisher{
		events:  events,
		storage: storage,
		logger:  logger,
	}
}

// PublishPhase emits one progress event on the owning user's channel.
func (p *Publisher) PublishPhase(ctx context.Context, event *models.PresentationEvent) {
	job, err := p.storage.Jobs().GetJob(ctx, event.JobID)
	if err != nil {
		p.logger.Warn().Err(err).Int64("job_id", int64(event.JobID)).Msg("Cannot resolve job owner for presentation event")
		return
	}
	if event.JobType == "" {
		event.JobType = string(job.Mode)
	}

	if err := p.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventPresentation,
		Payload: &UserEvent{UserID: job.UserID, Event: event},
	}); err != nil {
		p.logger.Warn().Err(err).Int64("job_id", int64(event.JobID)).Msg("Presentation publish failed")
	}
}

// PublishError emits a failure event for the phase that broke.
func (p *Publisher) PublishError(ctx context.Context, jobID uint64, phase models.PresentationPhase, reason string) {
	p.PublishPhase(ctx, &models.PresentationEvent{
		JobID:       jobID,
		Phase:       phase,
		Result:      "error",
		ErrorReason: reason,
	})
}
