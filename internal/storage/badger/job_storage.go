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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts the job with a sequence-assigned ID
func (s *JobStorage) CreateJob(ctx context.Context, job *models.ResearchJob) (uint64, error) {
	if err := job.Validate(); err != nil {
		return 0, fmt.Errorf("invalid job: %w", err)
	}

	if err := s.db.Store().Insert(badgerhold.NextSequence(), job); err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().Int64("job_id", int64(job.ID)).Str("mode", string(job.Mode)).Msg("Job created")
	return job.ID, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id uint64) (*models.ResearchJob, error) {
	var job models.ResearchJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return &job, nil
}

// UpdateStatusCAS atomically moves status from expected to next. The
// update runs inside a badger transaction; a concurrent writer that
// changed the status first makes the match fail, returning false.
func (s *JobStorage) UpdateStatusCAS(ctx context.Context, id uint64, expected, next models.JobStatus) (bool, error) {
	updated := false
	query := badgerhold.Where(badgerhold.Key).Eq(id).And("Status").Eq(expected)

	err := s.db.Store().UpdateMatching(&models.ResearchJob{}, query, func(record interface{}) error {
		job, ok := record.(*models.ResearchJob)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		job.Status = next
		job.UpdatedAt = time.Now().UTC()
		updated = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update job %d status: %w", id, err)
	}

	if updated {
		s.logger.Debug().
			Int64("job_id", int64(id)).
			Str("from", string(expected)).
			Str("to", string(next)).
			Msg("Job status advanced")
	}
	return updated, nil
}

// MarkFailed forces FAILED regardless of the current status
func (s *JobStorage) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	var job models.ResearchJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get job %d: %w", id, err)
	}

	job.Status = models.JobStatusFailed
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, &job); err != nil {
		return fmt.Errorf("failed to mark job %d failed: %w", id, err)
	}

	s.logger.Warn().Int64("job_id", int64(id)).Str("error", errMsg).Msg("Job marked failed")
	return nil
}

func (s *JobStorage) SetResult(ctx context.Context, id uint64, result map[string]interface{}) error {
	var job models.ResearchJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get job %d: %w", id, err)
	}

	job.Result = result
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, &job); err != nil {
		return fmt.Errorf("failed to set job %d result: %w", id, err)
	}
	return nil
}

func (s *JobStorage) UpdateConfig(ctx context.Context, id uint64, config models.JobConfig) error {
	var job models.ResearchJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get job %d: %w", id, err)
	}

	job.Config = config
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, &job); err != nil {
		return fmt.Errorf("failed to update job %d config: %w", id, err)
	}
	return nil
}

func (s *JobStorage) Touch(ctx context.Context, id uint64) error {
	query := badgerhold.Where(badgerhold.Key).Eq(id)
	err := s.db.Store().UpdateMatching(&models.ResearchJob{}, query, func(record interface{}) error {
		job, ok := record.(*models.ResearchJob)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		job.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to touch job %d: %w", id, err)
	}
	return nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts interfaces.JobListOptions) ([]*models.ResearchJob, error) {
	query := &badgerhold.Query{}
	if opts.UserID != "" {
		query = badgerhold.Where("UserID").Eq(opts.UserID)
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
	} else if opts.Status != "" {
		query = badgerhold.Where("Status").Eq(opts.Status)
	}

	query = query.SortBy("CreatedAt").Reverse()
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Skip(opts.Offset)
	}

	var jobs []models.ResearchJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.ResearchJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ListStale returns running jobs whose UpdatedAt predates cutoff.
// Terminal and waiting statuses are excluded; those jobs are parked on
// purpose and age legitimately.
func (s *JobStorage) ListStale(ctx context.Context, cutoff time.Time) ([]*models.ResearchJob, error) {
	active := make([]interface{}, 0, len(models.AllJobStatuses))
	for _, st := range models.AllJobStatuses {
		if !st.IsTerminal() && !st.IsWaiting() {
			active = append(active, st)
		}
	}

	var jobs []models.ResearchJob
	query := badgerhold.Where("Status").In(active...).And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	result := make([]*models.ResearchJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, id uint64) error {
	if err := s.db.Store().Delete(id, &models.ResearchJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}
