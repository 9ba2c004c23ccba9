// -----------------------------------------------------------------------
// Stage Dispatcher - worker pool routing jobs to their status's handler
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Dispatcher drains the job queue with a bounded worker pool and routes
// each delivery to the stage handler registered for the job's current
// status. It owns every status transition: handlers report the next
// status, the dispatcher performs the compare-and-set.
type Dispatcher struct {
	queue     interfaces.QueueManager
	storage   interfaces.StorageManager
	presenter interfaces.PresentationPublisher
	logger    arbor.ILogger

	stages map[models.JobStatus]interfaces.StageHandler

	concurrency  int
	pollInterval time.Duration
	stageTimeout time.Duration
	heartbeat    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates an unstarted dispatcher.
func NewDispatcher(cfg *common.Config, storage interfaces.StorageManager, queue interfaces.QueueManager, presenter interfaces.PresentationPublisher, logger arbor.ILogger) *Dispatcher {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Dispatcher{
		queue:        queue,
		storage:      storage,
		presenter:    presenter,
		logger:       logger,
		stages:       make(map[models.JobStatus]interfaces.StageHandler),
		concurrency:  concurrency,
		pollInterval: common.ParseDurationOr(cfg.Queue.PollInterval, time.Second),
		stageTimeout: common.ParseDurationOr(cfg.Pipeline.StageTimeout, 10*time.Minute),
		heartbeat:    common.ParseDurationOr(cfg.Pipeline.HeartbeatInterval, time.Minute),
	}
}

// RegisterStage registers a handler for its status. Last registration wins.
func (d *Dispatcher) RegisterStage(handler interfaces.StageHandler) {
	d.stages[handler.Status()] = handler
}

// Start launches the worker pool.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("dispatcher already started")
	}
	if len(d.stages) == 0 {
		return fmt.Errorf("no stage handlers registered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	d.logger.Info().
		Int("workers", d.concurrency).
		Int("stages", len(d.stages)).
		Msg("Dispatcher started")
	return nil
}

// Stop cancels the workers and waits for in-flight stages to finish.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	d.wg.Wait()
	d.logger.Info().Msg("Dispatcher stopped")
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ack, err := d.queue.Receive(ctx)
		if err == models.ErrNoMessage {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn().Err(err).Int("worker", id).Msg("Queue receive failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.pollInterval):
			}
			continue
		}

		d.process(ctx, msg, ack)
	}
}

// process runs one delivery end to end. Any panic or handler error marks
// the job FAILED; the delivery is acknowledged in all paths except
// transient infrastructure failures, where queue redelivery takes over.
func (d *Dispatcher) process(ctx context.Context, msg *models.QueueMessage, ack func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Int64("job_id", int64(msg.JobID)).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Stage handler panicked")
			d.failJob(ctx, msg.JobID, models.JobStatus(""), fmt.Sprintf("internal error: %v", r))
			d.acknowledge(msg, ack)
		}
	}()

	job, err := d.storage.Jobs().GetJob(ctx, msg.JobID)
	if err == interfaces.ErrNotFound {
		d.acknowledge(msg, ack)
		return
	}
	if err != nil {
		d.logger.Warn().Err(err).Int64("job_id", int64(msg.JobID)).Msg("Job load failed, leaving delivery for redelivery")
		return
	}

	handler, ok := d.stages[job.Status]
	if !ok {
		// Terminal and waiting statuses land here; nothing to do.
		d.logger.Debug().
			Int64("job_id", int64(job.ID)).
			Str("status", string(job.Status)).
			Msg("No stage handler for status, dropping delivery")
		d.acknowledge(msg, ack)
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, d.stageTimeout)
	stopHeartbeat := d.startHeartbeat(stageCtx, msg.QueueID)

	result, err := handler.Execute(stageCtx, job)
	stopHeartbeat()
	cancel()

	if err != nil {
		d.logger.Error().Err(err).
			Int64("job_id", int64(job.ID)).
			Str("status", string(job.Status)).
			Msg("Stage failed")
		d.failJob(ctx, job.ID, job.Status, err.Error())
		d.acknowledge(msg, ack)
		return
	}

	if result == nil {
		d.acknowledge(msg, ack)
		return
	}

	if result.NextStatus != "" && result.NextStatus != job.Status {
		moved, err := d.storage.Jobs().UpdateStatusCAS(ctx, job.ID, job.Status, result.NextStatus)
		if err != nil {
			d.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Status CAS failed, leaving delivery for redelivery")
			return
		}
		if !moved {
			d.logger.Debug().
				Int64("job_id", int64(job.ID)).
				Str("expected", string(job.Status)).
				Str("next", string(result.NextStatus)).
				Msg("Status CAS conflict, another worker advanced the job")
			d.acknowledge(msg, ack)
			return
		}
	}

	if result.Requeue {
		requeue := &models.QueueMessage{JobID: job.ID, Reason: "stage:" + string(job.Status)}
		if err := d.queue.Enqueue(ctx, requeue); err != nil {
			d.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Re-enqueue failed")
		}
	}

	d.acknowledge(msg, ack)
}

// startHeartbeat extends the delivery's visibility while a stage runs so a
// slow LLM call does not trigger a duplicate delivery mid-stage.
func (d *Dispatcher) startHeartbeat(ctx context.Context, queueID string) func() {
	if queueID == "" {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.queue.Extend(ctx, queueID, 2*d.heartbeat); err != nil {
					d.logger.Warn().Err(err).Str("queue_id", queueID).Msg("Visibility extend failed")
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (d *Dispatcher) failJob(ctx context.Context, jobID uint64, status models.JobStatus, reason string) {
	if err := d.storage.Jobs().MarkFailed(ctx, jobID, reason); err != nil {
		d.logger.Error().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to mark job failed")
		return
	}
	d.presenter.PublishError(ctx, jobID, phaseFor(status), reason)
}

func (d *Dispatcher) acknowledge(msg *models.QueueMessage, ack func() error) {
	if err := ack(); err != nil {
		d.logger.Warn().Err(err).Int64("job_id", int64(msg.JobID)).Msg("Queue acknowledge failed")
	}
}

// phaseFor maps a status to the presentation phase its events report under.
func phaseFor(status models.JobStatus) models.PresentationPhase {
	switch status {
	case models.JobStatusCreated:
		return models.PhaseCreation
	case models.JobStatusReadyToIngest:
		return models.PhaseIngestion
	case models.JobStatusIngested:
		return models.PhaseTriples
	case models.JobStatusTriplesExtracted, models.JobStatusStructuralGraph, models.JobStatusGraphSanitized:
		return models.PhaseGraph
	case models.JobStatusGraphSemanticMerged:
		return models.PhasePathReasoning
	case models.JobStatusPathReasoningDone, models.JobStatusDecisionMade:
		return models.PhaseDecision
	case models.JobStatusFetchQueued:
		return models.PhaseFetch
	case models.JobStatusDownloadQueued:
		return models.PhaseDownload
	default:
		return models.PhaseCreation
	}
}
