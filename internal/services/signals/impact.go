// -----------------------------------------------------------------------
// Impact Scorer - rank ledger papers by hypothesis relevance
// -----------------------------------------------------------------------

package signals

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ImpactScorer recomputes the strategic ledger's impact scores from the
// active hypothesis set. The strategic download stage downloads the
// top-scored unevaluated papers.
type ImpactScorer struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewImpactScorer creates the scorer.
func NewImpactScorer(storage interfaces.StorageManager, logger arbor.ILogger) *ImpactScorer {
	return &ImpactScorer{storage: storage, logger: logger}
}

// paperContribution accumulates one paper's standing in the hypothesis set.
type paperContribution struct {
	hypoRefs       int
	cumulativeConf float64
	entities       map[string]bool
	pathSlots      int
}

// Recompute refreshes every ledger row of the job. A paper's terms come
// from the active hypotheses whose provenance traces back to it through
// the "paper:{id}" source_ref:
//
//	hypo_ref_count  - distinct hypotheses referencing the paper
//	cumulative_conf - summed confidence of those hypotheses
//	entity_density  - unique path entities over total path slots
func (s *ImpactScorer) Recompute(ctx context.Context, jobID uint64) error {
	hyps, err := s.storage.Hypotheses().ListActive(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to list active hypotheses: %w", err)
	}

	contributions := make(map[string]*paperContribution)
	for _, h := range hyps {
		paperIDs, err := s.paperIDsFor(ctx, h)
		if err != nil {
			return err
		}
		for paperID := range paperIDs {
			c, ok := contributions[paperID]
			if !ok {
				c = &paperContribution{entities: make(map[string]bool)}
				contributions[paperID] = c
			}
			c.hypoRefs++
			c.cumulativeConf += float64(h.Confidence)
			for _, node := range h.Path {
				c.entities[node] = true
			}
			c.pathSlots += len(h.Path)
		}
	}

	ledger, err := s.storage.Papers().ListEvidenceByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to list evidence ledger: %w", err)
	}

	for _, e := range ledger {
		c := contributions[e.PaperID]
		if c == nil {
			e.HypoRefCount = 0
			e.CumulativeConf = 0
			e.EntityDensity = 0
		} else {
			e.HypoRefCount = c.hypoRefs
			e.CumulativeConf = c.cumulativeConf
			if c.pathSlots > 0 {
				e.EntityDensity = float64(len(c.entities)) / float64(c.pathSlots)
			}
		}
		e.RecomputeImpact()
		if err := s.storage.Papers().UpdateEvidence(ctx, e); err != nil {
			return fmt.Errorf("failed to update evidence %s: %w", e.ID, err)
		}
	}

	s.logger.Debug().
		Int64("job_id", int64(jobID)).
		Int("ledger_rows", len(ledger)).
		Int("referenced_papers", len(contributions)).
		Msg("Impact scores recomputed")

	return nil
}

// paperIDsFor resolves the papers a hypothesis's provenance touches.
func (s *ImpactScorer) paperIDsFor(ctx context.Context, h *models.Hypothesis) (map[string]bool, error) {
	if len(h.SourceIDs) == 0 {
		return nil, nil
	}
	sources, err := s.storage.Sources().GetByIDs(ctx, h.SourceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hypothesis sources: %w", err)
	}

	ids := make(map[string]bool)
	for _, src := range sources {
		if paperID, ok := strings.CutPrefix(src.SourceRef, "paper:"); ok && paperID != "" {
			ids[paperID] = true
		}
	}
	return ids, nil
}
