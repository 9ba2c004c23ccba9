package chat

import (
	"context"
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

type fixedClassifier struct {
	label models.ClassifierLabel
}

func (f fixedClassifier) Classify(_ context.Context, _ string, _ *models.ResearchJob) (models.ClassifierLabel, error) {
	return f.label, nil
}

type captureQueue struct {
	mu       sync.Mutex
	enqueued []*models.QueueMessage
}

func (q *captureQueue) Enqueue(_ context.Context, msg *models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msg)
	return nil
}

func (q *captureQueue) EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, _ time.Duration) error {
	return q.Enqueue(ctx, msg)
}

func (q *captureQueue) Receive(_ context.Context) (*models.QueueMessage, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (q *captureQueue) Extend(_ context.Context, _ string, _ time.Duration) error { return nil }
func (q *captureQueue) Length(_ context.Context) (int, error)                     { return 0, nil }
func (q *captureQueue) Close() error                                              { return nil }

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestHandleSeedCreatesJob(t *testing.T) {
	storage := newTestStorage(t)
	queue := &captureQueue{}
	svc := NewService(storage, queue, fixedClassifier{models.ClassifyResearchSeed}, nil, arbor.NewLogger())

	resp, err := svc.Handle(context.Background(), &models.ChatRequest{
		UserID:  "user-1",
		Message: "investigate the link between gut microbiome and depression",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClassifyResearchSeed, resp.Classification)
	require.NotZero(t, resp.JobID)

	job, err := storage.Jobs().GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, job.Status)
	assert.Equal(t, models.JobModeDiscovery, job.Mode)

	sources, err := storage.Sources().ListByJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, models.SourceTypeUserText, sources[0].SourceType)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.JobID, queue.enqueued[0].JobID)
}

func TestHandleEvidenceResumesWaitingJob(t *testing.T) {
	storage := newTestStorage(t)
	queue := &captureQueue{}
	svc := NewService(storage, queue, fixedClassifier{models.ClassifyEvidenceInput}, nil, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)
	moved, err := storage.Jobs().UpdateStatusCAS(ctx, id, models.JobStatusCreated, models.JobStatusNeedMoreInput)
	require.NoError(t, err)
	require.True(t, moved)

	resp, err := svc.Handle(ctx, &models.ChatRequest{
		UserID:  "user-1",
		JobID:   id,
		Message: "A 2021 cohort study found reduced microbial diversity in depressed patients.",
	})
	require.NoError(t, err)
	assert.Equal(t, id, resp.JobID)

	got, err := storage.Jobs().GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusReadyToIngest, got.Status)
	require.Len(t, queue.enqueued, 1)

	sources, err := storage.Sources().ListByJob(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sources, 1)

	// The exchange lands in the conversation log.
	msgs, err := storage.Messages().ListByJob(ctx, id, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestHandleConstraintAppendsFocusArea(t *testing.T) {
	storage := newTestStorage(t)
	svc := NewService(storage, &captureQueue{}, fixedClassifier{models.ClassifyClarificationConstraint}, nil, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{FocusAreas: []string{"existing"}})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)

	_, err = svc.Handle(ctx, &models.ChatRequest{UserID: "user-1", JobID: id, Message: "focus on human studies only"})
	require.NoError(t, err)

	got, err := storage.Jobs().GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"existing", "focus on human studies only"}, got.Config.FocusAreas)
	assert.Equal(t, models.JobStatusCreated, got.Status)
}

func TestHandleGraphQueryWithoutGraph(t *testing.T) {
	storage := newTestStorage(t)
	svc := NewService(storage, &captureQueue{}, fixedClassifier{models.ClassifyGraphQuery}, nil, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)

	resp, err := svc.Handle(ctx, &models.ChatRequest{UserID: "user-1", JobID: id, Message: "what does the graph show?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "No knowledge graph")
}

func TestHandleRejectsEmptyMessage(t *testing.T) {
	svc := NewService(newTestStorage(t), &captureQueue{}, fixedClassifier{models.ClassifyConversational}, nil, arbor.NewLogger())
	_, err := svc.Handle(context.Background(), &models.ChatRequest{UserID: "user-1", Message: "  "})
	assert.Error(t, err)
}

func TestKeywordClassify(t *testing.T) {
	job := &models.ResearchJob{ID: 1, Status: models.JobStatusCompleted}

	tests := []struct {
		name    string
		message string
		job     *models.ResearchJob
		want    models.ClassifierLabel
	}{
		{"seed without job", "investigate aspirin and cancer risk", nil, models.ClassifyResearchSeed},
		{"greeting", "hello", nil, models.ClassifyConversational},
		{"constraint", "please focus on human trials", job, models.ClassifyClarificationConstraint},
		{"guidance", "as an expert, assume TNF signaling is intact", job, models.ClassifyExpertGuidance},
		{"graph question", "which hypotheses connect aspirin to inflammation?", job, models.ClassifyGraphQuery},
		{"short note with job", "see attached abstract text", job, models.ClassifyEvidenceInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keywordClassify(tt.message, tt.job))
		})
	}
}
