// -----------------------------------------------------------------------
// Path reasoning stage - generate and filter indirect-path hypotheses
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/reasoning"
)

// ReasonStage consumes GRAPH_SEMANTIC_MERGED jobs. The active graph goes
// through path enumeration and the hypothesis filter; the resulting set
// replaces the job's active hypotheses wholesale.
type ReasonStage struct {
	storage   interfaces.StorageManager
	reasoner  *reasoning.Service
	presenter interfaces.PresentationPublisher
	logger    arbor.ILogger
}

// NewReasonStage creates the path reasoning stage handler.
func NewReasonStage(storage interfaces.StorageManager, reasoner *reasoning.Service, presenter interfaces.PresentationPublisher, logger arbor.ILogger) *ReasonStage {
	return &ReasonStage{
		storage:   storage,
		reasoner:  reasoner,
		presenter: presenter,
		logger:    logger,
	}
}

func (s *ReasonStage) Status() models.JobStatus {
	return models.JobStatusGraphSemanticMerged
}

func (s *ReasonStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	graph, err := s.storage.Graphs().GetActive(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active graph: %w", err)
	}

	hyps, err := s.reasoner.GenerateHypotheses(ctx, job, graph, graph.Version)
	if err != nil {
		return nil, fmt.Errorf("hypothesis generation failed: %w", err)
	}

	if err := s.storage.Hypotheses().ReplaceActive(ctx, job.ID, hyps); err != nil {
		return nil, fmt.Errorf("failed to replace active hypotheses: %w", err)
	}

	passed := 0
	for _, h := range hyps {
		if h.PassedFilter {
			passed++
		}
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhasePathReasoning,
		Status: string(models.JobStatusPathReasoningDone),
		Result: "pathreasoningdone",
		Metric: map[string]interface{}{
			"hypotheses_total":  len(hyps),
			"hypotheses_passed": passed,
			"graph_version":     graph.Version,
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusPathReasoningDone,
		Requeue:    true,
		Message:    fmt.Sprintf("%d hypotheses, %d passed", len(hyps), passed),
	}, nil
}
