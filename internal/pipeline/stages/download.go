// -----------------------------------------------------------------------
// Download stage - materialize full texts for the highest-impact papers
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/extract"
)

// ProviderLookup resolves paper providers for downloads. Satisfied by
// papers.Registry.
type ProviderLookup interface {
	ByName(name string) interfaces.PaperProvider
	ForDomain(domain string) interfaces.PaperProvider
}

// DownloadStage consumes DOWNLOAD_QUEUED jobs. The unevaluated evidence
// rows are ranked by impact score and the top batch gets its PDF fetched
// from the paper's own provider, stored, and extracted in place so the
// ingest stage sees the full text as a fresh source. Papers without a
// retrievable PDF are marked evaluated so they never re-enter the ranking.
type DownloadStage struct {
	storage    interfaces.StorageManager
	providers  ProviderLookup
	extractors *extract.Registry
	presenter  interfaces.PresentationPublisher
	papersDir  string
	batchSize  int
	logger     arbor.ILogger
}

// NewDownloadStage creates the download stage handler.
func NewDownloadStage(storage interfaces.StorageManager, providers ProviderLookup, extractors *extract.Registry, presenter interfaces.PresentationPublisher, papersDir string, batchSize int, logger arbor.ILogger) *DownloadStage {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &DownloadStage{
		storage:    storage,
		providers:  providers,
		extractors: extractors,
		presenter:  presenter,
		papersDir:  papersDir,
		batchSize:  batchSize,
		logger:     logger,
	}
}

func (s *DownloadStage) Status() models.JobStatus {
	return models.JobStatusDownloadQueued
}

func (s *DownloadStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	candidates, err := s.storage.Papers().ListUnevaluated(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unevaluated papers: %w", err)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].ImpactScore != candidates[b].ImpactScore {
			return candidates[a].ImpactScore > candidates[b].ImpactScore
		}
		return candidates[a].PaperID < candidates[b].PaperID
	})
	if len(candidates) > s.batchSize {
		candidates = candidates[:s.batchSize]
	}

	downloaded, skipped := 0, 0
	for _, evidence := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := s.downloadOne(ctx, job, evidence)
		if err != nil {
			return nil, err
		}
		if ok {
			downloaded++
		} else {
			skipped++
		}
		if err := s.storage.Papers().MarkEvaluated(ctx, evidence.ID); err != nil {
			return nil, fmt.Errorf("failed to mark paper evaluated: %w", err)
		}
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseDownload,
		Status: string(models.JobStatusReadyToIngest),
		Result: "downloaded",
		Metric: map[string]interface{}{
			"papers_downloaded": downloaded,
			"papers_skipped":    skipped,
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusReadyToIngest,
		Requeue:    true,
		Message:    fmt.Sprintf("%d full texts downloaded, %d without PDF", downloaded, skipped),
	}, nil
}

// downloadOne fetches, stores and extracts a single paper's PDF. Returns
// false without error when the provider has no full text.
func (s *DownloadStage) downloadOne(ctx context.Context, job *models.ResearchJob, evidence *models.JobPaperEvidence) (bool, error) {
	paper, err := s.storage.Papers().Get(ctx, evidence.PaperID)
	if err != nil {
		return false, fmt.Errorf("failed to load paper %s: %w", evidence.PaperID, err)
	}

	provider := s.providers.ByName(paper.Source)
	if provider == nil {
		provider = s.providers.ForDomain("")
	}
	if provider == nil {
		return false, fmt.Errorf("no provider available for paper source %q", paper.Source)
	}

	pdf, err := provider.DownloadPDF(ctx, paper)
	if err == interfaces.ErrNoFullText {
		s.logger.Debug().
			Int64("job_id", int64(job.ID)).
			Str("paper_id", paper.ID).
			Msg("No full text available, abstract remains the evidence")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("download failed for paper %s: %w", paper.ID, err)
	}

	if err := os.MkdirAll(s.papersDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create papers dir: %w", err)
	}
	storedPath := filepath.Join(s.papersDir, paper.ID+".pdf")
	if err := os.WriteFile(storedPath, pdf, 0o644); err != nil {
		return false, fmt.Errorf("failed to store pdf for paper %s: %w", paper.ID, err)
	}

	f := models.NewJobFile(job.ID, models.FileOriginPaperDownload, storedPath, models.FileTypePDF, paper.Title+".pdf")
	f.PaperID = paper.ID
	if err := s.storage.Files().Create(ctx, f); err != nil {
		return false, fmt.Errorf("failed to register downloaded file: %w", err)
	}

	if err := extractFileToSource(ctx, s.storage, s.extractors, job, f); err != nil {
		return false, fmt.Errorf("failed to extract downloaded pdf: %w", err)
	}
	return true, nil
}
