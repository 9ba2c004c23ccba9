package models

import "errors"

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the structure stored in the work queue.
// Keep it simple - just enough to route the job to the dispatcher.
type QueueMessage struct {
	JobID  uint64 `json:"job_id"` // References the research job
	Reason string `json:"reason"` // Why it was enqueued (creation, requeue, decision handler, ...)

	// QueueID is the delivery envelope ID, populated by the queue on
	// Receive so handlers can extend visibility. Never persisted.
	QueueID string `json:"-"`
}
