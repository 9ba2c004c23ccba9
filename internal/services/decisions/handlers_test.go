package decisions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

type capturingPresenter struct {
	events []*models.PresentationEvent
}

func (p *capturingPresenter) PublishPhase(ctx context.Context, e *models.PresentationEvent) {
	p.events = append(p.events, e)
}

func (p *capturingPresenter) PublishError(ctx context.Context, jobID uint64, phase models.PresentationPhase, reason string) {
}

func newHandlerDeps(t *testing.T) (*HandlerDeps, *capturingPresenter) {
	t.Helper()
	presenter := &capturingPresenter{}
	deps := &HandlerDeps{
		Storage:   newTestStorage(t),
		Presenter: presenter,
		Policy:    common.NewDefaultPolicy(),
		Logger:    arbor.NewLogger(),
	}
	return deps, presenter
}

func decisionInput(job *models.ResearchJob, label models.DecisionLabel, hyps ...*models.Hypothesis) *interfaces.DecisionInput {
	return &interfaces.DecisionInput{
		Job:        job,
		Decision:   models.NewDecisionResult(job.ID, label, "rule", models.Measurements{}),
		Hypotheses: hyps,
	}
}

func addEvidence(t *testing.T, deps *HandlerDeps, jobID uint64, n int) []*models.JobPaperEvidence {
	t.Helper()
	ctx := context.Background()
	out := make([]*models.JobPaperEvidence, 0, n)
	for i := 0; i < n; i++ {
		e, err := deps.Storage.Papers().CreateEvidence(ctx,
			models.NewJobPaperEvidence(jobID, fmt.Sprintf("paper-%d", i), "run-1"))
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestFetchMoreHandlerQueuesUnderCap(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	h := &fetchMoreHandler{deps}
	job := &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}

	res, err := h.Handle(context.Background(), decisionInput(job, models.DecisionFetchMoreLiterature))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFetchQueued, res.Status)
	assert.True(t, res.Requeue)
}

func TestFetchMoreHandlerFinalizesAtPaperCap(t *testing.T) {
	deps, presenter := newHandlerDeps(t)
	deps.Policy.MaxPapersPerJob = 2
	h := &fetchMoreHandler{deps}
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{})
	id, err := deps.Storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)
	job.ID = id
	addEvidence(t, deps, job.ID, 2)

	res, err := h.Handle(ctx, decisionInput(job, models.DecisionFetchMoreLiterature))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, res.Status)
	assert.Equal(t, "max_papers_reached", res.Message)
	assert.False(t, res.Requeue)

	stored, err := deps.Storage.Jobs().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "max_papers_reached", stored.Result["reason"])

	require.Len(t, presenter.events, 1)
	assert.Equal(t, "max_papers_reached", presenter.events[0].Result)
}

func TestStrategicDownloadHandlerPrefersUnevaluated(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	h := &strategicDownloadHandler{deps}
	job := &models.ResearchJob{ID: 3, Mode: models.JobModeDiscovery}
	addEvidence(t, deps, job.ID, 1)

	res, err := h.Handle(context.Background(), decisionInput(job, models.DecisionStrategicDownload))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusDownloadQueued, res.Status)
	assert.True(t, res.Requeue)
}

func TestStrategicDownloadHandlerFallsBackToFetch(t *testing.T) {
	deps, _ := newHandlerDeps(t)
	h := &strategicDownloadHandler{deps}
	ctx := context.Background()
	job := &models.ResearchJob{ID: 4, Mode: models.JobModeDiscovery}

	evidence := addEvidence(t, deps, job.ID, 1)
	require.NoError(t, deps.Storage.Papers().MarkEvaluated(ctx, evidence[0].ID))

	res, err := h.Handle(ctx, decisionInput(job, models.DecisionStrategicDownload))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFetchQueued, res.Status)
	assert.True(t, res.Requeue)
}

func TestInsufficientSignalHandlerSuggestsPromising(t *testing.T) {
	deps, presenter := newHandlerDeps(t)
	h := &insufficientSignalHandler{deps}
	job := &models.ResearchJob{ID: 5, Mode: models.JobModeDiscovery}

	promising := models.NewHypothesis(job.ID, models.HypothesisModeExplore, []string{"a", "b", "c"}, 1)
	promising.Confidence = 1
	promising.FilterReason = map[string]string{models.FilterRuleEvidenceThreshold: "confidence 1 below minimum 2"}
	rejected := models.NewHypothesis(job.ID, models.HypothesisModeExplore, []string{"d", "e", "f"}, 1)
	rejected.FilterReason = map[string]string{models.FilterRuleNovelty: "direct edge exists"}

	res, err := h.Handle(context.Background(), decisionInput(job, models.DecisionInsufficientSignal, promising, rejected))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusNeedMoreInput, res.Status)
	assert.False(t, res.Requeue)

	require.Len(t, presenter.events, 1)
	suggestions, ok := presenter.events[0].Payload["suggestions"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "a", suggestions[0]["source"])
}
