// -----------------------------------------------------------------------
// Decide stage - measure the current state and persist a decision
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/decisions"
	"github.com/ternarybob/colligo/internal/services/measurements"
)

// DecideStage consumes PATH_REASONING_DONE jobs. It assembles the
// measurement input, computes the snapshot and asks the decision
// controller for a label. The controller persists the DecisionResult;
// acting on it happens in the apply stage.
type DecideStage struct {
	storage    interfaces.StorageManager
	engine     *measurements.Engine
	controller *decisions.Controller
	presenter  interfaces.PresentationPublisher
	logger     arbor.ILogger
}

// NewDecideStage creates the decision stage handler.
func NewDecideStage(storage interfaces.StorageManager, engine *measurements.Engine, controller *decisions.Controller, presenter interfaces.PresentationPublisher, logger arbor.ILogger) *DecideStage {
	return &DecideStage{
		storage:    storage,
		engine:     engine,
		controller: controller,
		presenter:  presenter,
		logger:     logger,
	}
}

func (s *DecideStage) Status() models.JobStatus {
	return models.JobStatusPathReasoningDone
}

func (s *DecideStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	in := &measurements.Input{Job: job}

	graph, err := s.storage.Graphs().GetActive(ctx, job.ID)
	if err != nil && err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("failed to load active graph: %w", err)
	}
	in.Graph = graph

	in.Hypotheses, err = s.storage.Hypotheses().ListActive(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hypotheses: %w", err)
	}

	if prev, err := s.storage.Decisions().Latest(ctx, job.ID); err == nil {
		in.Previous = &prev.MeasurementsSnapshot
	} else if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("failed to load previous decision: %w", err)
	}

	in.PendingNewQueries, err = s.storage.Queries().CountByStatus(ctx, job.ID, models.QueryStatusNew)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending queries: %w", err)
	}

	if v, err := s.storage.Decisions().GetVerification(ctx, job.ID); err == nil {
		in.Verification = v
	} else if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("failed to load verification result: %w", err)
	}

	m := s.engine.Compute(in)

	decision, err := s.controller.Decide(ctx, job, m)
	if err != nil {
		return nil, fmt.Errorf("decision failed: %w", err)
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseDecision,
		Status: string(models.JobStatusDecisionMade),
		Result: string(decision.DecisionLabel),
		Metric: m.MetricMap(),
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusDecisionMade,
		Requeue:    true,
		Message:    fmt.Sprintf("decision %s via %s", decision.DecisionLabel, decision.ProviderUsed),
	}, nil
}
