// -----------------------------------------------------------------------
// Triple extraction stage - LLM pipe-format extraction with partial recovery
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const maxTripleFieldChars = 300

const triplePrompt = `Extract factual subject-predicate-object triples from the text below. Rules:
- One triple per line in the exact format: subject | predicate | object
- Subjects and objects are specific entities or concepts from the text
- Predicates are short verb phrases in snake_case (e.g. inhibits, binds_to, increases)
- Skip opinions, citations and document structure
- Output only triples, no commentary

Text:
%s`

// TriplesStage consumes INGESTED jobs. Every block not yet extracted goes
// through the LLM once; the block flips to extracted whatever the outcome,
// so a malformed response costs that block's triples but never wedges the
// pipeline.
type TriplesStage struct {
	storage   interfaces.StorageManager
	llm       interfaces.LLMService
	presenter interfaces.PresentationPublisher
	logger    arbor.ILogger
}

// NewTriplesStage creates the triple extraction stage handler.
func NewTriplesStage(storage interfaces.StorageManager, llm interfaces.LLMService, presenter interfaces.PresentationPublisher, logger arbor.ILogger) *TriplesStage {
	return &TriplesStage{
		storage:   storage,
		llm:       llm,
		presenter: presenter,
		logger:    logger,
	}
}

func (s *TriplesStage) Status() models.JobStatus {
	return models.JobStatusIngested
}

func (s *TriplesStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	blocks, err := s.storage.Sources().ListUnextractedBlocks(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unextracted blocks: %w", err)
	}

	tripleCount := 0
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		triples := s.extractBlock(ctx, job, block)
		if len(triples) > 0 {
			if err := s.storage.Triples().CreateBatch(ctx, triples); err != nil {
				return nil, fmt.Errorf("failed to store triples for block %s: %w", block.ID, err)
			}
			tripleCount += len(triples)
		}
		if err := s.storage.Sources().MarkBlockExtracted(ctx, block.ID); err != nil {
			return nil, fmt.Errorf("failed to mark block %s extracted: %w", block.ID, err)
		}
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseTriples,
		Status: string(models.JobStatusTriplesExtracted),
		Result: "triplesextracted",
		Metric: map[string]interface{}{
			"blocks_processed": len(blocks),
			"triples_created":  tripleCount,
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusTriplesExtracted,
		Requeue:    true,
		Message:    fmt.Sprintf("%d triples from %d blocks", tripleCount, len(blocks)),
	}, nil
}

func (s *TriplesStage) extractBlock(ctx context.Context, job *models.ResearchJob, block *models.TextBlock) []*models.Triple {
	resp, err := s.llm.Generate(ctx, fmt.Sprintf(triplePrompt, block.BlockText), interfaces.GenerateOptions{})
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("job_id", int64(job.ID)).
			Str("block_id", block.ID).
			Msg("Triple extraction call failed, block skipped")
		return nil
	}
	return parseTriples(resp, job.ID, block, s.llm.ProviderName())
}

// parseTriples recovers whatever well-formed lines a response contains.
// Commentary at head or tail, malformed lines and oversized fields are
// dropped individually; the rest survive.
func parseTriples(response string, jobID uint64, block *models.TextBlock, extractor string) []*models.Triple {
	var triples []*models.Triple
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line == "" || !strings.Contains(line, "|") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}

		subject := strings.TrimSpace(parts[0])
		predicate := strings.TrimSpace(parts[1])
		object := strings.TrimSpace(parts[2])
		if !validTripleField(subject) || !validTripleField(predicate) || !validTripleField(object) {
			continue
		}

		triples = append(triples, models.NewTriple(jobID, block.ID, block.IngestionSourceID, subject, predicate, object, extractor))
	}
	return triples
}

func validTripleField(field string) bool {
	return field != "" && len(field) <= maxTripleFieldChars && !strings.ContainsRune(field, '\n')
}
