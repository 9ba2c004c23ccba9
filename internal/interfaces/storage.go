// -----------------------------------------------------------------------
// Storage contracts - one interface per aggregate, composed by the manager
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// JobListOptions filters job listings.
type JobListOptions struct {
	UserID string
	Status models.JobStatus
	Limit  int
	Offset int
}

// JobStorage persists research jobs. Status moves only through
// UpdateStatusCAS (or MarkFailed on dispatcher recovery); every other update
// leaves Status untouched.
type JobStorage interface {
	// CreateJob inserts the job and returns its sequence-assigned ID.
	CreateJob(ctx context.Context, job *models.ResearchJob) (uint64, error)

	// GetJob returns ErrNotFound when the job does not exist.
	GetJob(ctx context.Context, id uint64) (*models.ResearchJob, error)

	// UpdateStatusCAS atomically moves status from expected to next.
	// Returns false without error when another worker advanced first.
	UpdateStatusCAS(ctx context.Context, id uint64, expected, next models.JobStatus) (bool, error)

	// MarkFailed forces the job to FAILED with an error message, whatever
	// its current status. Used by the dispatcher's recovery path.
	MarkFailed(ctx context.Context, id uint64, errMsg string) error

	// SetResult stores the terminal payload without touching status.
	SetResult(ctx context.Context, id uint64, result map[string]interface{}) error

	// UpdateConfig replaces the per-job config. Callers only append
	// constraints; captured tuning is never rewritten.
	UpdateConfig(ctx context.Context, id uint64, config models.JobConfig) error

	// Touch bumps UpdatedAt so the stale-job sweep sees progress.
	Touch(ctx context.Context, id uint64) error

	ListJobs(ctx context.Context, opts JobListOptions) ([]*models.ResearchJob, error)

	// ListStale returns non-terminal, non-waiting jobs untouched since cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.ResearchJob, error)

	// DeleteJob removes the job row. Child cascade is coordinated upstream.
	DeleteJob(ctx context.Context, id uint64) error
}

// MessageStorage is the append-only conversation log.
type MessageStorage interface {
	Append(ctx context.Context, msg *models.ConversationMessage) error
	ListByJob(ctx context.Context, jobID uint64, limit int) ([]*models.ConversationMessage, error)
	DeleteByJob(ctx context.Context, jobID uint64) error
}

// FileStorage tracks physical artifacts per job.
type FileStorage interface {
	Create(ctx context.Context, f *models.JobFile) error
	Get(ctx context.Context, id string) (*models.JobFile, error)
	ListByJob(ctx context.Context, jobID uint64) ([]*models.JobFile, error)
	ListUnextracted(ctx context.Context, jobID uint64) ([]*models.JobFile, error)
	MarkExtracted(ctx context.Context, id string) error
	DeleteByJob(ctx context.Context, jobID uint64) error
}

// SourceStorage persists ingestion sources and their text blocks.
type SourceStorage interface {
	Create(ctx context.Context, s *models.IngestionSource) error
	CreateBatch(ctx context.Context, sources []*models.IngestionSource) error
	Get(ctx context.Context, id string) (*models.IngestionSource, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.IngestionSource, error)
	ListByJob(ctx context.Context, jobID uint64) ([]*models.IngestionSource, error)
	ListUnprocessed(ctx context.Context, jobID uint64) ([]*models.IngestionSource, error)

	// SaveProcessed writes the canonical raw text and flips Processed in
	// one update. The flip is monotone; repeat deliveries are no-ops.
	SaveProcessed(ctx context.Context, src *models.IngestionSource) error

	CreateBlocks(ctx context.Context, blocks []*models.TextBlock) error
	GetBlocksByIDs(ctx context.Context, ids []string) ([]*models.TextBlock, error)
	ListBlocksByJob(ctx context.Context, jobID uint64) ([]*models.TextBlock, error)
	ListBlocksBySource(ctx context.Context, sourceID string) ([]*models.TextBlock, error)
	ListUnextractedBlocks(ctx context.Context, jobID uint64) ([]*models.TextBlock, error)
	MarkBlockExtracted(ctx context.Context, blockID string) error

	DeleteByJob(ctx context.Context, jobID uint64) error
}

// TripleStorage persists extracted triples. Rows are immutable.
type TripleStorage interface {
	CreateBatch(ctx context.Context, triples []*models.Triple) error
	GetByIDs(ctx context.Context, ids []string) ([]*models.Triple, error)
	ListByJob(ctx context.Context, jobID uint64) ([]*models.Triple, error)
	CountByJob(ctx context.Context, jobID uint64) (int, error)
	DeleteByJob(ctx context.Context, jobID uint64) error
}

// GraphStorage persists versioned semantic graph snapshots with the
// single-active invariant.
type GraphStorage interface {
	// SaveNewVersion deactivates the current active graph (if any) and
	// inserts data as the next version, active.
	SaveNewVersion(ctx context.Context, jobID uint64, data models.GraphData) (*models.SemanticGraph, error)

	// GetActive returns ErrNotFound when no active graph exists.
	GetActive(ctx context.Context, jobID uint64) (*models.SemanticGraph, error)

	ListVersions(ctx context.Context, jobID uint64) ([]*models.SemanticGraph, error)
	DeleteByJob(ctx context.Context, jobID uint64) error
}

// HypothesisStorage persists the active hypothesis set. Generation replaces
// the whole set; only one active set exists per job.
type HypothesisStorage interface {
	// ReplaceActive deletes the current active set and inserts hyps.
	ReplaceActive(ctx context.Context, jobID uint64, hyps []*models.Hypothesis) error

	ListActive(ctx context.Context, jobID uint64) ([]*models.Hypothesis, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Hypothesis, error)
	DeleteByJob(ctx context.Context, jobID uint64) error
}

// PaperStorage persists global papers and the per-job evidence ledger.
type PaperStorage interface {
	// Insert enforces fingerprint and non-empty DOI uniqueness.
	Insert(ctx context.Context, p *models.Paper) error
	Get(ctx context.Context, id string) (*models.Paper, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Paper, error)
	FindByDOI(ctx context.Context, doi string) (*models.Paper, error)
	FindByFingerprint(ctx context.Context, fp string) (*models.Paper, error)
	FindByExternalIDs(ctx context.Context, ids map[string]string) (*models.Paper, error)

	// CreateEvidence inserts a ledger row unless one already exists for
	// (job, paper); the existing row is returned in that case.
	CreateEvidence(ctx context.Context, e *models.JobPaperEvidence) (*models.JobPaperEvidence, error)
	GetEvidence(ctx context.Context, jobID uint64, paperID string) (*models.JobPaperEvidence, error)
	ListEvidenceByJob(ctx context.Context, jobID uint64) ([]*models.JobPaperEvidence, error)
	ListUnevaluated(ctx context.Context, jobID uint64) ([]*models.JobPaperEvidence, error)
	UpdateEvidence(ctx context.Context, e *models.JobPaperEvidence) error
	MarkEvaluated(ctx context.Context, id string) error
	CountEvidenceByJob(ctx context.Context, jobID uint64) (int, error)
	DeleteEvidenceByJob(ctx context.Context, jobID uint64) error
}

// QueryStorage persists search queries and their append-only run log.
type QueryStorage interface {
	Insert(ctx context.Context, q *models.SearchQuery) error
	Update(ctx context.Context, q *models.SearchQuery) error
	Get(ctx context.Context, id string) (*models.SearchQuery, error)
	GetBySignature(ctx context.Context, jobID uint64, signature string) (*models.SearchQuery, error)
	ListByJob(ctx context.Context, jobID uint64) ([]*models.SearchQuery, error)
	CountByStatus(ctx context.Context, jobID uint64, status string) (int, error)

	InsertRun(ctx context.Context, r *models.SearchQueryRun) error
	UpdateRun(ctx context.Context, r *models.SearchQueryRun) error
	ListRunsByQuery(ctx context.Context, queryID string) ([]*models.SearchQueryRun, error)
	ListRunsByJob(ctx context.Context, jobID uint64) ([]*models.SearchQueryRun, error)

	// ListUnattributedRunsBetween returns runs with nil SignalDelta created
	// strictly inside (from, to). The signal evaluator's window query.
	ListUnattributedRunsBetween(ctx context.Context, jobID uint64, from, to time.Time) ([]*models.SearchQueryRun, error)

	DeleteByJob(ctx context.Context, jobID uint64) error
}

// DecisionStorage persists decision results and verification outcomes.
type DecisionStorage interface {
	Insert(ctx context.Context, d *models.DecisionResult) error
	ListByJob(ctx context.Context, jobID uint64) ([]*models.DecisionResult, error)
	Latest(ctx context.Context, jobID uint64) (*models.DecisionResult, error)

	// PreviousBefore returns the latest decision strictly before ts, or
	// ErrNotFound when the given decision is the first.
	PreviousBefore(ctx context.Context, jobID uint64, ts time.Time) (*models.DecisionResult, error)

	SaveVerification(ctx context.Context, v *models.VerificationResult) error
	GetVerification(ctx context.Context, jobID uint64) (*models.VerificationResult, error)

	DeleteByJob(ctx context.Context, jobID uint64) error
}

// StorageManager composes all aggregate storages over one database.
type StorageManager interface {
	Jobs() JobStorage
	Messages() MessageStorage
	Files() FileStorage
	Sources() SourceStorage
	Triples() TripleStorage
	Graphs() GraphStorage
	Hypotheses() HypothesisStorage
	Papers() PaperStorage
	Queries() QueryStorage
	Decisions() DecisionStorage
	KV() KeyValueStorage

	// DB exposes the underlying handle for the queue manager.
	DB() interface{}

	// DeleteJobCascade removes a job and every child entity it owns.
	DeleteJobCascade(ctx context.Context, jobID uint64) error

	Close() error
}
