package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// TripleStorage persists extracted triples on Badger. Rows are immutable.
type TripleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTripleStorage creates a new TripleStorage instance
func NewTripleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TripleStorage {
	return &TripleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TripleStorage) CreateBatch(ctx context.Context, triples []*models.Triple) error {
	for _, t := range triples {
		if err := s.db.Store().Insert(t.ID, t); err != nil {
			return fmt.Errorf("failed to create triple %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *TripleStorage) GetByIDs(ctx context.Context, ids []string) ([]*models.Triple, error) {
	result := make([]*models.Triple, 0, len(ids))
	for _, id := range ids {
		var t models.Triple
		if err := s.db.Store().Get(id, &t); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get triple %s: %w", id, err)
		}
		result = append(result, &t)
	}
	return result, nil
}

func (s *TripleStorage) ListByJob(ctx context.Context, jobID uint64) ([]*models.Triple, error) {
	var triples []models.Triple
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&triples, query); err != nil {
		return nil, fmt.Errorf("failed to list triples for job %d: %w", jobID, err)
	}

	result := make([]*models.Triple, len(triples))
	for i := range triples {
		result[i] = &triples[i]
	}
	return result, nil
}

func (s *TripleStorage) CountByJob(ctx context.Context, jobID uint64) (int, error) {
	count, err := s.db.Store().Count(&models.Triple{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count triples for job %d: %w", jobID, err)
	}
	return int(count), nil
}

func (s *TripleStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.Triple{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete triples for job %d: %w", jobID, err)
	}
	return nil
}
