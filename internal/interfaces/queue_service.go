package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// QueueManager manages the persistent work queue. Delivery is
// at-least-once: a received message reappears after the visibility
// timeout unless its delete function is called.
type QueueManager interface {
	Enqueue(ctx context.Context, msg *models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, delay time.Duration) error

	// Receive returns the next visible message along with a delete
	// function that acknowledges it. Returns models.ErrNoMessage when
	// the queue is empty.
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)

	// Extend pushes the visibility deadline of an in-flight delivery.
	Extend(ctx context.Context, queueID string, duration time.Duration) error

	Length(ctx context.Context) (int, error)
	Close() error
}

// Dispatcher runs the worker pool that drains the queue and routes each
// job to the stage handler registered for its current status.
type Dispatcher interface {
	RegisterStage(handler StageHandler)
	Start() error
	Stop() error
}
