package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// DecisionStorage persists decision results and verification outcomes on
// Badger. Decision rows are append-only.
type DecisionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDecisionStorage creates a new DecisionStorage instance
func NewDecisionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DecisionStorage {
	return &DecisionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DecisionStorage) Insert(ctx context.Context, d *models.DecisionResult) error {
	if !d.DecisionLabel.Valid() {
		return fmt.Errorf("invalid decision label: %q", d.DecisionLabel)
	}
	if err := s.db.Store().Insert(d.ID, d); err != nil {
		return fmt.Errorf("failed to insert decision result: %w", err)
	}

	s.logger.Debug().
		Int64("job_id", int64(d.JobID)).
		Str("decision", string(d.DecisionLabel)).
		Str("provider", d.ProviderUsed).
		Msg("Decision recorded")
	return nil
}

func (s *DecisionStorage) ListByJob(ctx context.Context, jobID uint64) ([]*models.DecisionResult, error) {
	var decisions []models.DecisionResult
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&decisions, query); err != nil {
		return nil, fmt.Errorf("failed to list decisions for job %d: %w", jobID, err)
	}

	result := make([]*models.DecisionResult, len(decisions))
	for i := range decisions {
		result[i] = &decisions[i]
	}
	return result, nil
}

func (s *DecisionStorage) Latest(ctx context.Context, jobID uint64) (*models.DecisionResult, error) {
	var decisions []models.DecisionResult
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&decisions, query); err != nil {
		return nil, fmt.Errorf("failed to get latest decision for job %d: %w", jobID, err)
	}
	if len(decisions) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &decisions[0], nil
}

// PreviousBefore returns the latest decision strictly before ts, or
// ErrNotFound when the given decision was the job's first.
func (s *DecisionStorage) PreviousBefore(ctx context.Context, jobID uint64, ts time.Time) (*models.DecisionResult, error) {
	var decisions []models.DecisionResult
	query := badgerhold.Where("JobID").Eq(jobID).And("CreatedAt").Lt(ts).
		SortBy("CreatedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&decisions, query); err != nil {
		return nil, fmt.Errorf("failed to get previous decision for job %d: %w", jobID, err)
	}
	if len(decisions) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &decisions[0], nil
}

func (s *DecisionStorage) SaveVerification(ctx context.Context, v *models.VerificationResult) error {
	if err := s.db.Store().Upsert(v.ID, v); err != nil {
		return fmt.Errorf("failed to save verification result: %w", err)
	}
	return nil
}

func (s *DecisionStorage) GetVerification(ctx context.Context, jobID uint64) (*models.VerificationResult, error) {
	var results []models.VerificationResult
	query := badgerhold.Where("JobID").Eq(jobID).Limit(1)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to get verification result for job %d: %w", jobID, err)
	}
	if len(results) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &results[0], nil
}

func (s *DecisionStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.DecisionResult{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete decisions for job %d: %w", jobID, err)
	}
	if err := s.db.Store().DeleteMatching(&models.VerificationResult{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete verification results for job %d: %w", jobID, err)
	}
	return nil
}
