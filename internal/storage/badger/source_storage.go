package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// SourceStorage persists ingestion sources and their text blocks on Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SourceStorage) Create(ctx context.Context, src *models.IngestionSource) error {
	if err := s.db.Store().Insert(src.ID, src); err != nil {
		return fmt.Errorf("failed to create ingestion source: %w", err)
	}
	return nil
}

func (s *SourceStorage) CreateBatch(ctx context.Context, sources []*models.IngestionSource) error {
	for _, src := range sources {
		if err := s.db.Store().Insert(src.ID, src); err != nil {
			return fmt.Errorf("failed to create ingestion source %s: %w", src.ID, err)
		}
	}
	s.logger.Debug().Int("count", len(sources)).Msg("Ingestion sources created")
	return nil
}

func (s *SourceStorage) Get(ctx context.Context, id string) (*models.IngestionSource, error) {
	var src models.IngestionSource
	if err := s.db.Store().Get(id, &src); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	return &src, nil
}

func (s *SourceStorage) GetByIDs(ctx context.Context, ids []string) ([]*models.IngestionSource, error) {
	result := make([]*models.IngestionSource, 0, len(ids))
	for _, id := range ids {
		src, err := s.Get(ctx, id)
		if err == interfaces.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, src)
	}
	return result, nil
}

func (s *SourceStorage) ListByJob(ctx context.Context, jobID uint64) ([]*models.IngestionSource, error) {
	var sources []models.IngestionSource
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources for job %d: %w", jobID, err)
	}
	return sourcePtrs(sources), nil
}

func (s *SourceStorage) ListUnprocessed(ctx context.Context, jobID uint64) ([]*models.IngestionSource, error) {
	var sources []models.IngestionSource
	query := badgerhold.Where("JobID").Eq(jobID).And("Processed").Eq(false).SortBy("CreatedAt")
	if err := s.db.Store().Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed sources for job %d: %w", jobID, err)
	}
	return sourcePtrs(sources), nil
}

// SaveProcessed writes canonical RawText and flips Processed in one update.
// The flip is monotone: a source already processed keeps its text.
func (s *SourceStorage) SaveProcessed(ctx context.Context, src *models.IngestionSource) error {
	query := badgerhold.Where(badgerhold.Key).Eq(src.ID).And("Processed").Eq(false)
	err := s.db.Store().UpdateMatching(&models.IngestionSource{}, query, func(record interface{}) error {
		stored, ok := record.(*models.IngestionSource)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		stored.RawText = src.RawText
		stored.Processed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save processed source %s: %w", src.ID, err)
	}
	return nil
}

func (s *SourceStorage) CreateBlocks(ctx context.Context, blocks []*models.TextBlock) error {
	for _, b := range blocks {
		if err := s.db.Store().Insert(b.ID, b); err != nil {
			return fmt.Errorf("failed to create text block %s: %w", b.ID, err)
		}
	}
	return nil
}

func (s *SourceStorage) GetBlocksByIDs(ctx context.Context, ids []string) ([]*models.TextBlock, error) {
	result := make([]*models.TextBlock, 0, len(ids))
	for _, id := range ids {
		var b models.TextBlock
		if err := s.db.Store().Get(id, &b); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to get block %s: %w", id, err)
		}
		result = append(result, &b)
	}
	return result, nil
}

func (s *SourceStorage) ListBlocksByJob(ctx context.Context, jobID uint64) ([]*models.TextBlock, error) {
	var blocks []models.TextBlock
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("BlockOrder")
	if err := s.db.Store().Find(&blocks, query); err != nil {
		return nil, fmt.Errorf("failed to list blocks for job %d: %w", jobID, err)
	}
	return blockPtrs(blocks), nil
}

func (s *SourceStorage) ListBlocksBySource(ctx context.Context, sourceID string) ([]*models.TextBlock, error) {
	var blocks []models.TextBlock
	query := badgerhold.Where("IngestionSourceID").Eq(sourceID).SortBy("BlockOrder")
	if err := s.db.Store().Find(&blocks, query); err != nil {
		return nil, fmt.Errorf("failed to list blocks for source %s: %w", sourceID, err)
	}
	return blockPtrs(blocks), nil
}

func (s *SourceStorage) ListUnextractedBlocks(ctx context.Context, jobID uint64) ([]*models.TextBlock, error) {
	var blocks []models.TextBlock
	query := badgerhold.Where("JobID").Eq(jobID).And("TriplesExtracted").Eq(false).SortBy("BlockOrder")
	if err := s.db.Store().Find(&blocks, query); err != nil {
		return nil, fmt.Errorf("failed to list unextracted blocks for job %d: %w", jobID, err)
	}
	return blockPtrs(blocks), nil
}

// MarkBlockExtracted flips the monotone TriplesExtracted flag.
func (s *SourceStorage) MarkBlockExtracted(ctx context.Context, blockID string) error {
	query := badgerhold.Where(badgerhold.Key).Eq(blockID)
	err := s.db.Store().UpdateMatching(&models.TextBlock{}, query, func(record interface{}) error {
		b, ok := record.(*models.TextBlock)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		b.TriplesExtracted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark block %s extracted: %w", blockID, err)
	}
	return nil
}

func (s *SourceStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.TextBlock{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete blocks for job %d: %w", jobID, err)
	}
	if err := s.db.Store().DeleteMatching(&models.IngestionSource{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete sources for job %d: %w", jobID, err)
	}
	return nil
}

func sourcePtrs(sources []models.IngestionSource) []*models.IngestionSource {
	result := make([]*models.IngestionSource, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result
}

func blockPtrs(blocks []models.TextBlock) []*models.TextBlock {
	result := make([]*models.TextBlock, len(blocks))
	for i := range blocks {
		result[i] = &blocks[i]
	}
	return result
}
