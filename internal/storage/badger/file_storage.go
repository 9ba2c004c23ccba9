package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// FileStorage tracks physical artifacts per job on Badger
type FileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFileStorage creates a new FileStorage instance
func NewFileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FileStorage {
	return &FileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FileStorage) Create(ctx context.Context, f *models.JobFile) error {
	if err := s.db.Store().Insert(f.ID, f); err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	s.logger.Debug().Int64("job_id", int64(f.JobID)).Str("file", f.OriginalFilename).Msg("File registered")
	return nil
}

func (s *FileStorage) Get(ctx context.Context, id string) (*models.JobFile, error) {
	var f models.JobFile
	if err := s.db.Store().Get(id, &f); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return &f, nil
}

func (s *FileStorage) ListByJob(ctx context.Context, jobID uint64) ([]*models.JobFile, error) {
	var files []models.JobFile
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list files for job %d: %w", jobID, err)
	}

	result := make([]*models.JobFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}

func (s *FileStorage) ListUnextracted(ctx context.Context, jobID uint64) ([]*models.JobFile, error) {
	var files []models.JobFile
	query := badgerhold.Where("JobID").Eq(jobID).And("Extracted").Eq(false).SortBy("CreatedAt")
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list unextracted files for job %d: %w", jobID, err)
	}

	result := make([]*models.JobFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}

// MarkExtracted flips the monotone Extracted flag. Re-marking an already
// extracted file is a no-op, which keeps queue redelivery safe.
func (s *FileStorage) MarkExtracted(ctx context.Context, id string) error {
	query := badgerhold.Where(badgerhold.Key).Eq(id)
	err := s.db.Store().UpdateMatching(&models.JobFile{}, query, func(record interface{}) error {
		f, ok := record.(*models.JobFile)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		f.Extracted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark file %s extracted: %w", id, err)
	}
	return nil
}

func (s *FileStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.JobFile{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete files for job %d: %w", jobID, err)
	}
	return nil
}
