// -----------------------------------------------------------------------
// Fetch stage - run the query orchestrator against external providers
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/queries"
)

// FetchStage consumes FETCH_QUEUED jobs. The orchestrator selects leads
// from the active hypotheses, runs or reuses queries against the paper
// providers and lands accepted abstracts as ingestion sources; the job
// then re-enters the pipeline at READY_TO_INGEST.
type FetchStage struct {
	storage      interfaces.StorageManager
	orchestrator *queries.Orchestrator
	presenter    interfaces.PresentationPublisher
	logger       arbor.ILogger
}

// NewFetchStage creates the fetch stage handler.
func NewFetchStage(storage interfaces.StorageManager, orchestrator *queries.Orchestrator, presenter interfaces.PresentationPublisher, logger arbor.ILogger) *FetchStage {
	return &FetchStage{
		storage:      storage,
		orchestrator: orchestrator,
		presenter:    presenter,
		logger:       logger,
	}
}

func (s *FetchStage) Status() models.JobStatus {
	return models.JobStatusFetchQueued
}

func (s *FetchStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	hyps, err := s.storage.Hypotheses().ListActive(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hypotheses: %w", err)
	}

	summary, err := s.orchestrator.ExecuteFetchMore(ctx, job, hyps)
	if err != nil {
		return nil, fmt.Errorf("fetch pass failed: %w", err)
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseFetch,
		Status: string(models.JobStatusReadyToIngest),
		Result: "fetched",
		Metric: map[string]interface{}{
			"leads_considered": summary.LeadsConsidered,
			"queries_run":      summary.QueriesRun,
			"queries_skipped":  summary.QueriesSkipped,
			"papers_fetched":   summary.PapersFetched,
			"papers_accepted":  summary.PapersAccepted,
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusReadyToIngest,
		Requeue:    true,
		Message:    fmt.Sprintf("%d queries run, %d papers accepted", summary.QueriesRun, summary.PapersAccepted),
	}, nil
}
