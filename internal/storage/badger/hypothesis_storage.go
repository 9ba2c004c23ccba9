package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// HypothesisStorage persists the active hypothesis set on Badger. Each
// generation run replaces the whole set; only one active set exists per job.
type HypothesisStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHypothesisStorage creates a new HypothesisStorage instance
func NewHypothesisStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HypothesisStorage {
	return &HypothesisStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceActive deletes the current active set and inserts hyps. The delete
// runs first so a crash between the two steps leaves no doubled set; the
// stage re-runs and converges.
func (s *HypothesisStorage) ReplaceActive(ctx context.Context, jobID uint64, hyps []*models.Hypothesis) error {
	query := badgerhold.Where("JobID").Eq(jobID).And("IsActive").Eq(true)
	if err := s.db.Store().DeleteMatching(&models.Hypothesis{}, query); err != nil {
		return fmt.Errorf("failed to delete active hypotheses for job %d: %w", jobID, err)
	}

	for _, h := range hyps {
		if err := s.db.Store().Insert(h.ID, h); err != nil {
			return fmt.Errorf("failed to insert hypothesis %s: %w", h.ID, err)
		}
	}

	s.logger.Debug().Int64("job_id", int64(jobID)).Int("count", len(hyps)).Msg("Active hypothesis set replaced")
	return nil
}

func (s *HypothesisStorage) ListActive(ctx context.Context, jobID uint64) ([]*models.Hypothesis, error) {
	var hyps []models.Hypothesis
	query := badgerhold.Where("JobID").Eq(jobID).And("IsActive").Eq(true)
	if err := s.db.Store().Find(&hyps, query); err != nil {
		return nil, fmt.Errorf("failed to list active hypotheses for job %d: %w", jobID, err)
	}

	result := make([]*models.Hypothesis, len(hyps))
	for i := range hyps {
		result[i] = &hyps[i]
	}
	models.SortHypotheses(result)
	return result, nil
}

func (s *HypothesisStorage) GetByIDs(ctx context.Context, ids []string) ([]*models.Hypothesis, error) {
	result := make([]*models.Hypothesis, 0, len(ids))
	for _, id := range ids {
		var h models.Hypothesis
		if err := s.db.Store().Get(id, &h); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get hypothesis %s: %w", id, err)
		}
		result = append(result, &h)
	}
	return result, nil
}

func (s *HypothesisStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.Hypothesis{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete hypotheses for job %d: %w", jobID, err)
	}
	return nil
}
