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

// PaperStorage persists the global paper catalog and the per-job evidence
// ledger on Badger.
type PaperStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPaperStorage creates a new PaperStorage instance
func NewPaperStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PaperStorage {
	return &PaperStorage{
		db:     db,
		logger: logger,
	}
}

// Insert enforces fingerprint uniqueness and, for papers carrying a DOI,
// DOI uniqueness. Callers are expected to dedupe first; this is the last
// line of defense.
func (s *PaperStorage) Insert(ctx context.Context, p *models.Paper) error {
	if p.Fingerprint == "" {
		return fmt.Errorf("paper %q has no fingerprint", p.Title)
	}

	if existing, err := s.FindByFingerprint(ctx, p.Fingerprint); err == nil && existing != nil {
		return fmt.Errorf("paper with fingerprint %s already exists", p.Fingerprint)
	}
	if p.DOI != "" {
		if existing, err := s.FindByDOI(ctx, p.DOI); err == nil && existing != nil {
			return fmt.Errorf("paper with DOI %s already exists", p.DOI)
		}
	}

	if err := s.db.Store().Insert(p.ID, p); err != nil {
		return fmt.Errorf("failed to insert paper: %w", err)
	}

	s.logger.Debug().Str("paper_id", p.ID).Str("source", p.Source).Msg("Paper stored")
	return nil
}

func (s *PaperStorage) Get(ctx context.Context, id string) (*models.Paper, error) {
	var p models.Paper
	if err := s.db.Store().Get(id, &p); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get paper %s: %w", id, err)
	}
	return &p, nil
}

func (s *PaperStorage) GetByIDs(ctx context.Context, ids []string) ([]*models.Paper, error) {
	result := make([]*models.Paper, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err == interfaces.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *PaperStorage) FindByDOI(ctx context.Context, doi string) (*models.Paper, error) {
	if doi == "" {
		return nil, interfaces.ErrNotFound
	}
	var papers []models.Paper
	if err := s.db.Store().Find(&papers, badgerhold.Where("DOI").Eq(doi).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find paper by DOI: %w", err)
	}
	if len(papers) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &papers[0], nil
}

func (s *PaperStorage) FindByFingerprint(ctx context.Context, fp string) (*models.Paper, error) {
	var papers []models.Paper
	if err := s.db.Store().Find(&papers, badgerhold.Where("Fingerprint").Eq(fp).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find paper by fingerprint: %w", err)
	}
	if len(papers) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &papers[0], nil
}

// FindByExternalIDs scans for a paper sharing any external ID pair. The
// catalog is small relative to the corpus, so a scan is acceptable here.
func (s *PaperStorage) FindByExternalIDs(ctx context.Context, ids map[string]string) (*models.Paper, error) {
	if len(ids) == 0 {
		return nil, interfaces.ErrNotFound
	}

	var match *models.Paper
	err := s.db.Store().ForEach(nil, func(p *models.Paper) error {
		for k, v := range ids {
			if v != "" && p.ExternalIDs[k] == v {
				match = p
				return fmt.Errorf("found")
			}
		}
		return nil
	})
	if err != nil && match == nil {
		return nil, fmt.Errorf("failed to scan papers by external IDs: %w", err)
	}
	if match == nil {
		return nil, interfaces.ErrNotFound
	}
	return match, nil
}

// CreateEvidence inserts a ledger row unless one already exists for
// (job, paper). The existing row is returned in that case, keeping the
// (JobID, PaperID) pair unique under redelivery.
func (s *PaperStorage) CreateEvidence(ctx context.Context, e *models.JobPaperEvidence) (*models.JobPaperEvidence, error) {
	existing, err := s.GetEvidence(ctx, e.JobID, e.PaperID)
	if err == nil {
		return existing, nil
	}
	if err != interfaces.ErrNotFound {
		return nil, err
	}

	if err := s.db.Store().Insert(e.ID, e); err != nil {
		return nil, fmt.Errorf("failed to create evidence row: %w", err)
	}
	return e, nil
}

func (s *PaperStorage) GetEvidence(ctx context.Context, jobID uint64, paperID string) (*models.JobPaperEvidence, error) {
	var rows []models.JobPaperEvidence
	query := badgerhold.Where("JobID").Eq(jobID).And("PaperID").Eq(paperID).Limit(1)
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to get evidence for job %d paper %s: %w", jobID, paperID, err)
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &rows[0], nil
}

func (s *PaperStorage) ListEvidenceByJob(ctx context.Context, jobID uint64) ([]*models.JobPaperEvidence, error) {
	var rows []models.JobPaperEvidence
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list evidence for job %d: %w", jobID, err)
	}
	return evidencePtrs(rows), nil
}

func (s *PaperStorage) ListUnevaluated(ctx context.Context, jobID uint64) ([]*models.JobPaperEvidence, error) {
	var rows []models.JobPaperEvidence
	query := badgerhold.Where("JobID").Eq(jobID).And("Evaluated").Eq(false)
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list unevaluated evidence for job %d: %w", jobID, err)
	}
	return evidencePtrs(rows), nil
}

func (s *PaperStorage) UpdateEvidence(ctx context.Context, e *models.JobPaperEvidence) error {
	e.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Update(e.ID, e); err != nil {
		return fmt.Errorf("failed to update evidence %s: %w", e.ID, err)
	}
	return nil
}

// MarkEvaluated flips the monotone Evaluated flag after full-text extraction.
func (s *PaperStorage) MarkEvaluated(ctx context.Context, id string) error {
	query := badgerhold.Where(badgerhold.Key).Eq(id)
	err := s.db.Store().UpdateMatching(&models.JobPaperEvidence{}, query, func(record interface{}) error {
		e, ok := record.(*models.JobPaperEvidence)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		e.Evaluated = true
		e.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark evidence %s evaluated: %w", id, err)
	}
	return nil
}

func (s *PaperStorage) CountEvidenceByJob(ctx context.Context, jobID uint64) (int, error) {
	count, err := s.db.Store().Count(&models.JobPaperEvidence{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count evidence for job %d: %w", jobID, err)
	}
	return int(count), nil
}

func (s *PaperStorage) DeleteEvidenceByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.JobPaperEvidence{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete evidence for job %d: %w", jobID, err)
	}
	return nil
}

func evidencePtrs(rows []models.JobPaperEvidence) []*models.JobPaperEvidence {
	result := make([]*models.JobPaperEvidence, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result
}
