package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// fakeQueue is an in-memory QueueManager good enough for one delivery.
type fakeQueue struct {
	mu       sync.Mutex
	messages []*models.QueueMessage
	acked    int
	enqueued []*models.QueueMessage
}

func (q *fakeQueue) Enqueue(_ context.Context, msg *models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msg)
	return nil
}

func (q *fakeQueue) EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, _ time.Duration) error {
	return q.Enqueue(ctx, msg)
}

func (q *fakeQueue) Receive(_ context.Context) (*models.QueueMessage, func() error, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, nil, models.ErrNoMessage
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, func() error {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.acked++
		return nil
	}, nil
}

func (q *fakeQueue) Extend(_ context.Context, _ string, _ time.Duration) error { return nil }

func (q *fakeQueue) Length(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages), nil
}

func (q *fakeQueue) Close() error { return nil }

type noopPresenter struct{}

func (noopPresenter) PublishPhase(_ context.Context, _ *models.PresentationEvent) {}
func (noopPresenter) PublishError(_ context.Context, _ uint64, _ models.PresentationPhase, _ string) {
}

// stubStage advances jobs from one fixed status.
type stubStage struct {
	status models.JobStatus
	result *interfaces.StageResult
	err    error
	calls  int
}

func (s *stubStage) Status() models.JobStatus { return s.status }

func (s *stubStage) Execute(_ context.Context, _ *models.ResearchJob) (*interfaces.StageResult, error) {
	s.calls++
	return s.result, s.err
}

func newTestDispatcher(t *testing.T, queue *fakeQueue) (*Dispatcher, interfaces.StorageManager) {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	cfg := common.NewDefaultConfig()
	d := NewDispatcher(cfg, mgr, queue, noopPresenter{}, arbor.NewLogger())
	return d, mgr
}

func createJob(t *testing.T, storage interfaces.StorageManager) *models.ResearchJob {
	t.Helper()
	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(context.Background(), job)
	require.NoError(t, err)
	job.ID = id
	return job
}

func TestProcessAdvancesStatusAndRequeues(t *testing.T) {
	queue := &fakeQueue{}
	d, storage := newTestDispatcher(t, queue)
	job := createJob(t, storage)

	stage := &stubStage{
		status: models.JobStatusCreated,
		result: &interfaces.StageResult{NextStatus: models.JobStatusReadyToIngest, Requeue: true},
	}
	d.RegisterStage(stage)

	msg := &models.QueueMessage{JobID: job.ID}
	ack := func() error { queue.acked++; return nil }
	d.process(context.Background(), msg, ack)

	assert.Equal(t, 1, stage.calls)
	got, err := storage.Jobs().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusReadyToIngest, got.Status)
	assert.Equal(t, 1, queue.acked)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].JobID)
}

func TestProcessStageErrorFailsJob(t *testing.T) {
	queue := &fakeQueue{}
	d, storage := newTestDispatcher(t, queue)
	job := createJob(t, storage)

	d.RegisterStage(&stubStage{
		status: models.JobStatusCreated,
		err:    errors.New("extraction exploded"),
	})

	d.process(context.Background(), &models.QueueMessage{JobID: job.ID}, func() error { queue.acked++; return nil })

	got, err := storage.Jobs().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "extraction exploded")
	assert.Equal(t, 1, queue.acked)
	assert.Empty(t, queue.enqueued)
}

func TestProcessPanicFailsJob(t *testing.T) {
	queue := &fakeQueue{}
	d, storage := newTestDispatcher(t, queue)
	job := createJob(t, storage)

	d.RegisterStage(&panicStage{})

	d.process(context.Background(), &models.QueueMessage{JobID: job.ID}, func() error { queue.acked++; return nil })

	got, err := storage.Jobs().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 1, queue.acked)
}

type panicStage struct{}

func (panicStage) Status() models.JobStatus { return models.JobStatusCreated }
func (panicStage) Execute(_ context.Context, _ *models.ResearchJob) (*interfaces.StageResult, error) {
	panic("boom")
}

func TestProcessDropsUnknownJob(t *testing.T) {
	queue := &fakeQueue{}
	d, _ := newTestDispatcher(t, queue)
	d.RegisterStage(&stubStage{status: models.JobStatusCreated})

	d.process(context.Background(), &models.QueueMessage{JobID: 9999}, func() error { queue.acked++; return nil })
	assert.Equal(t, 1, queue.acked)
}

func TestProcessDropsStatusWithoutHandler(t *testing.T) {
	queue := &fakeQueue{}
	d, storage := newTestDispatcher(t, queue)
	job := createJob(t, storage)

	// Only a handler for a different status is registered.
	stage := &stubStage{status: models.JobStatusIngested}
	d.RegisterStage(stage)

	d.process(context.Background(), &models.QueueMessage{JobID: job.ID}, func() error { queue.acked++; return nil })

	assert.Zero(t, stage.calls)
	assert.Equal(t, 1, queue.acked)
	got, err := storage.Jobs().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, got.Status)
}

func TestProcessCASConflictDropsDelivery(t *testing.T) {
	queue := &fakeQueue{}
	d, storage := newTestDispatcher(t, queue)
	job := createJob(t, storage)

	// The stage itself simulates a racing worker: it moves the job away
	// mid-execution, so the dispatcher's own CAS must lose.
	d.RegisterStage(&racingStage{storage: storage})

	d.process(context.Background(), &models.QueueMessage{JobID: job.ID}, func() error { queue.acked++; return nil })

	got, err := storage.Jobs().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFetchQueued, got.Status)
	assert.Equal(t, 1, queue.acked)
	assert.Empty(t, queue.enqueued)
}

// racingStage advances the job itself before returning a stale NextStatus.
type racingStage struct {
	storage interfaces.StorageManager
}

func (racingStage) Status() models.JobStatus { return models.JobStatusCreated }

func (s *racingStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	if _, err := s.storage.Jobs().UpdateStatusCAS(ctx, job.ID, models.JobStatusCreated, models.JobStatusFetchQueued); err != nil {
		return nil, err
	}
	return &interfaces.StageResult{NextStatus: models.JobStatusReadyToIngest, Requeue: true}, nil
}

func TestStartRequiresStages(t *testing.T) {
	queue := &fakeQueue{}
	d, _ := newTestDispatcher(t, queue)
	assert.Error(t, d.Start())
}

func TestStartStop(t *testing.T) {
	queue := &fakeQueue{}
	d, _ := newTestDispatcher(t, queue)
	d.RegisterStage(&stubStage{status: models.JobStatusCreated})

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
}
