// -----------------------------------------------------------------------
// Extract stage - fan out per file, produce ingestion sources
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/extract"
)

// ExtractStage consumes CREATED jobs. Each unextracted file is read by the
// extractor for its type, concatenated into one ingestion source and marked
// extracted. Files fan out to a bounded goroutine group and fan back in to
// a single READY_TO_INGEST transition.
type ExtractStage struct {
	storage     interfaces.StorageManager
	extractors  *extract.Registry
	presenter   interfaces.PresentationPublisher
	concurrency int
	logger      arbor.ILogger
}

// NewExtractStage creates the extract stage handler.
func NewExtractStage(storage interfaces.StorageManager, extractors *extract.Registry, presenter interfaces.PresentationPublisher, concurrency int, logger arbor.ILogger) *ExtractStage {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ExtractStage{
		storage:     storage,
		extractors:  extractors,
		presenter:   presenter,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (s *ExtractStage) Status() models.JobStatus {
	return models.JobStatusCreated
}

func (s *ExtractStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	files, err := s.storage.Files().ListUnextracted(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unextracted files: %w", err)
	}

	if len(files) == 0 {
		// No files to extract. If text input already produced sources the
		// job can move on; otherwise input has not arrived yet.
		sources, err := s.storage.Sources().ListByJob(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list sources: %w", err)
		}
		if len(sources) == 0 {
			return &interfaces.StageResult{Message: "waiting for input"}, nil
		}
		return &interfaces.StageResult{NextStatus: models.JobStatusReadyToIngest, Requeue: true}, nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		extracted int
		failures  []string
	)
	sem := make(chan struct{}, s.concurrency)

	for _, f := range files {
		wg.Add(1)
		go func(f *models.JobFile) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := extractFileToSource(ctx, s.storage, s.extractors, job, f); err != nil {
				s.logger.Warn().Err(err).
					Int64("job_id", int64(job.ID)).
					Str("file", f.OriginalFilename).
					Msg("File extraction failed")
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", f.OriginalFilename, err))
				mu.Unlock()
				return
			}
			mu.Lock()
			extracted++
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	if extracted == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("all %d files failed extraction: %s", len(files), strings.Join(failures, "; "))
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseIngestion,
		Status: string(models.JobStatusReadyToIngest),
		Result: "extracted",
		Metric: map[string]interface{}{
			"files_extracted": extracted,
			"files_failed":    len(failures),
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusReadyToIngest,
		Requeue:    true,
		Message:    fmt.Sprintf("%d of %d files extracted", extracted, len(files)),
	}, nil
}

// extractFileToSource runs the file's extractor, writes one ingestion
// source holding its concatenated region text, and marks the file
// extracted. Shared with the download stage, which extracts fetched PDFs
// in place.
func extractFileToSource(ctx context.Context, storage interfaces.StorageManager, extractors *extract.Registry, job *models.ResearchJob, f *models.JobFile) error {
	extractor, err := extractors.ForType(f.Type)
	if err != nil {
		return err
	}

	regions, err := extractor.ExtractRegions(ctx, f.StoredPath)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	var parts []string
	for _, r := range regions {
		if text := strings.TrimSpace(r.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		// An empty artifact still counts as extracted, or it would be
		// retried forever.
		return storage.Files().MarkExtracted(ctx, f.ID)
	}

	sourceType := models.SourceTypeUserText
	if f.Type == models.FileTypePDF {
		sourceType = models.SourceTypePDFText
	}
	sourceRef := "file:" + f.ID
	if f.PaperID != "" {
		sourceRef = models.PaperSourceRef(f.PaperID)
	}

	src := models.NewIngestionSource(job.ID, sourceType, sourceRef, strings.Join(parts, "\n\n"))
	if err := storage.Sources().Create(ctx, src); err != nil {
		return fmt.Errorf("failed to create ingestion source: %w", err)
	}
	return storage.Files().MarkExtracted(ctx, f.ID)
}
