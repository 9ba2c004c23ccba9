// -----------------------------------------------------------------------
// Apply stage - run the decision's handler and close the feedback loop
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/decisions"
	"github.com/ternarybob/colligo/internal/services/signals"
)

// ApplyStage consumes DECISION_MADE jobs. Before the decision's handler
// runs, the signal evaluator attributes the measurement delta since the
// previous decision back to the query runs inside that window, and a
// strategic download refreshes paper impact scores so the handler ranks
// candidates on current numbers.
type ApplyStage struct {
	storage   interfaces.StorageManager
	registry  *decisions.Registry
	evaluator *signals.Evaluator
	impact    *signals.ImpactScorer
	logger    arbor.ILogger
}

// NewApplyStage creates the decision apply stage handler.
func NewApplyStage(storage interfaces.StorageManager, registry *decisions.Registry, evaluator *signals.Evaluator, impact *signals.ImpactScorer, logger arbor.ILogger) *ApplyStage {
	return &ApplyStage{
		storage:   storage,
		registry:  registry,
		evaluator: evaluator,
		impact:    impact,
		logger:    logger,
	}
}

func (s *ApplyStage) Status() models.JobStatus {
	return models.JobStatusDecisionMade
}

func (s *ApplyStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	decision, err := s.storage.Decisions().Latest(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest decision: %w", err)
	}

	// Attribution is idempotent: runs carry their delta exactly once.
	if err := s.evaluator.Attribute(ctx, decision); err != nil {
		return nil, fmt.Errorf("signal attribution failed: %w", err)
	}

	if decision.DecisionLabel == models.DecisionStrategicDownload {
		if err := s.impact.Recompute(ctx, job.ID); err != nil {
			return nil, fmt.Errorf("impact recompute failed: %w", err)
		}
	}

	handler, ok := s.registry.Get(decision.DecisionLabel)
	if !ok {
		return nil, fmt.Errorf("no handler registered for decision %s", decision.DecisionLabel)
	}

	in := &interfaces.DecisionInput{Job: job, Decision: decision}
	if graph, err := s.storage.Graphs().GetActive(ctx, job.ID); err == nil {
		in.Graph = graph
	} else if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("failed to load active graph: %w", err)
	}
	in.Hypotheses, err = s.storage.Hypotheses().ListActive(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hypotheses: %w", err)
	}

	result, err := handler.Handle(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("decision handler %s failed: %w", decision.DecisionLabel, err)
	}

	return &interfaces.StageResult{
		NextStatus: result.Status,
		Requeue:    result.Requeue,
		Message:    result.Message,
	}, nil
}
