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

// QueryStorage persists search queries and their append-only run log on
// Badger.
type QueryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueryStorage creates a new QueryStorage instance
func NewQueryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueryStorage {
	return &QueryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *QueryStorage) Insert(ctx context.Context, q *models.SearchQuery) error {
	// (JobID, HypothesisSignature) is unique; a concurrent creator wins
	// and the caller re-reads.
	if existing, err := s.GetBySignature(ctx, q.JobID, q.HypothesisSignature); err == nil && existing != nil {
		return fmt.Errorf("search query for signature %s already exists in job %d", q.HypothesisSignature, q.JobID)
	}

	if err := s.db.Store().Insert(q.ID, q); err != nil {
		return fmt.Errorf("failed to insert search query: %w", err)
	}
	return nil
}

func (s *QueryStorage) Update(ctx context.Context, q *models.SearchQuery) error {
	q.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Update(q.ID, q); err != nil {
		return fmt.Errorf("failed to update search query %s: %w", q.ID, err)
	}
	return nil
}

func (s *QueryStorage) Get(ctx context.Context, id string) (*models.SearchQuery, error) {
	var q models.SearchQuery
	if err := s.db.Store().Get(id, &q); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get search query %s: %w", id, err)
	}
	return &q, nil
}

func (s *QueryStorage) GetBySignature(ctx context.Context, jobID uint64, signature string) (*models.SearchQuery, error) {
	var queries []models.SearchQuery
	query := badgerhold.Where("JobID").Eq(jobID).And("HypothesisSignature").Eq(signature).Limit(1)
	if err := s.db.Store().Find(&queries, query); err != nil {
		return nil, fmt.Errorf("failed to find query by signature: %w", err)
	}
	if len(queries) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &queries[0], nil
}

func (s *QueryStorage) ListByJob(ctx context.Context, jobID uint64) ([]*models.SearchQuery, error) {
	var queries []models.SearchQuery
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&queries, query); err != nil {
		return nil, fmt.Errorf("failed to list queries for job %d: %w", jobID, err)
	}

	result := make([]*models.SearchQuery, len(queries))
	for i := range queries {
		result[i] = &queries[i]
	}
	return result, nil
}

func (s *QueryStorage) CountByStatus(ctx context.Context, jobID uint64, status string) (int, error) {
	count, err := s.db.Store().Count(&models.SearchQuery{}, badgerhold.Where("JobID").Eq(jobID).And("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count queries for job %d: %w", jobID, err)
	}
	return int(count), nil
}

func (s *QueryStorage) InsertRun(ctx context.Context, r *models.SearchQueryRun) error {
	if err := s.db.Store().Insert(r.ID, r); err != nil {
		return fmt.Errorf("failed to insert query run: %w", err)
	}
	return nil
}

func (s *QueryStorage) UpdateRun(ctx context.Context, r *models.SearchQueryRun) error {
	if err := s.db.Store().Update(r.ID, r); err != nil {
		return fmt.Errorf("failed to update query run %s: %w", r.ID, err)
	}
	return nil
}

func (s *QueryStorage) ListRunsByQuery(ctx context.Context, queryID string) ([]*models.SearchQueryRun, error) {
	var runs []models.SearchQueryRun
	query := badgerhold.Where("SearchQueryID").Eq(queryID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs for query %s: %w", queryID, err)
	}
	return runPtrs(runs), nil
}

func (s *QueryStorage) ListRunsByJob(ctx context.Context, jobID uint64) ([]*models.SearchQueryRun, error) {
	var runs []models.SearchQueryRun
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs for job %d: %w", jobID, err)
	}
	return runPtrs(runs), nil
}

// ListUnattributedRunsBetween returns runs with nil SignalDelta created
// strictly inside (from, to). The strict inequalities are the attribution
// window contract: a run created at the same instant as a decision belongs
// to neither window.
func (s *QueryStorage) ListUnattributedRunsBetween(ctx context.Context, jobID uint64, from, to time.Time) ([]*models.SearchQueryRun, error) {
	var runs []models.SearchQueryRun
	query := badgerhold.Where("JobID").Eq(jobID).
		And("CreatedAt").Gt(from).
		And("CreatedAt").Lt(to).
		SortBy("CreatedAt")
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs in window for job %d: %w", jobID, err)
	}

	result := make([]*models.SearchQueryRun, 0, len(runs))
	for i := range runs {
		if runs[i].SignalDelta == nil {
			result = append(result, &runs[i])
		}
	}
	return result, nil
}

func (s *QueryStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.SearchQueryRun{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete query runs for job %d: %w", jobID, err)
	}
	if err := s.db.Store().DeleteMatching(&models.SearchQuery{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete queries for job %d: %w", jobID, err)
	}
	return nil
}

func runPtrs(runs []models.SearchQueryRun) []*models.SearchQueryRun {
	result := make([]*models.SearchQueryRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result
}
