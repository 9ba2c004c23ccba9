// -----------------------------------------------------------------------
// Ingest stage - refine raw text and slice it into extraction blocks
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Slicing bounds. Blocks never end mid-sentence; a single oversized
// sentence becomes its own block.
const (
	maxSentencesPerBlock = 8
	maxBlockChars        = 1200
	maxRefineSpanChars   = 8000
	maxRefineRetries     = 3
)

const refinePrompt = `Clean the following text extracted from a document. Remove page headers, footers, line numbers, citation markers and broken hyphenation. Join fragmented lines into complete sentences. Do not summarize, translate or add anything; output only the cleaned text.

Text:
%s`

// IngestStage consumes READY_TO_INGEST jobs. Every unprocessed ingestion
// source is refined (LLM cleaning for extracted PDF and user text), its
// canonical text written back, then sliced into sentence-grouped blocks.
// Processing commits per source, so a redelivery resumes where it stopped.
type IngestStage struct {
	storage   interfaces.StorageManager
	llm       interfaces.LLMService
	presenter interfaces.PresentationPublisher
	logger    arbor.ILogger
}

// NewIngestStage creates the ingest stage handler.
func NewIngestStage(storage interfaces.StorageManager, llm interfaces.LLMService, presenter interfaces.PresentationPublisher, logger arbor.ILogger) *IngestStage {
	return &IngestStage{
		storage:   storage,
		llm:       llm,
		presenter: presenter,
		logger:    logger,
	}
}

func (s *IngestStage) Status() models.JobStatus {
	return models.JobStatusReadyToIngest
}

func (s *IngestStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	sources, err := s.storage.Sources().ListUnprocessed(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed sources: %w", err)
	}

	blockCount := 0
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := src.RawText
		if src.NeedsRefinement() && s.llm != nil {
			text = s.refine(ctx, text)
		}
		src.RawText = text

		blocks := sliceIntoBlocks(job.ID, src.ID, text)
		if len(blocks) > 0 {
			if err := s.storage.Sources().CreateBlocks(ctx, blocks); err != nil {
				return nil, fmt.Errorf("failed to create blocks for source %s: %w", src.ID, err)
			}
		}
		if err := s.storage.Sources().SaveProcessed(ctx, src); err != nil {
			return nil, fmt.Errorf("failed to mark source %s processed: %w", src.ID, err)
		}
		blockCount += len(blocks)
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseIngestion,
		Status: string(models.JobStatusIngested),
		Result: "ingested",
		Metric: map[string]interface{}{
			"sources_processed": len(sources),
			"blocks_created":    blockCount,
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusIngested,
		Requeue:    true,
		Message:    fmt.Sprintf("%d sources sliced into %d blocks", len(sources), blockCount),
	}, nil
}

// refine cleans extracted text span by span. Refinement is best-effort: a
// span whose cleaning fails is kept raw rather than failing the source.
func (s *IngestStage) refine(ctx context.Context, text string) string {
	spans := splitSpans(text, maxRefineSpanChars)
	cleaned := make([]string, 0, len(spans))
	for _, span := range spans {
		cleaned = append(cleaned, s.refineSpan(ctx, span))
	}
	return strings.Join(cleaned, "\n\n")
}

func (s *IngestStage) refineSpan(ctx context.Context, span string) string {
	for attempt := 0; attempt < maxRefineRetries; attempt++ {
		out, err := s.llm.Generate(ctx, fmt.Sprintf(refinePrompt, span), interfaces.GenerateOptions{})
		if err != nil {
			s.logger.Warn().Err(err).Msg("Refinement call failed, keeping raw text")
			return span
		}
		out = strings.TrimSpace(out)
		if out == "" {
			continue
		}
		// A heavily truncated response loses content; retry rather than
		// silently dropping text.
		if len(out) < len(span)/4 && len(span) > 400 {
			continue
		}
		return out
	}
	return span
}

// splitSpans breaks text at paragraph boundaries into spans of at most
// limit characters.
func splitSpans(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var spans []string
	var current strings.Builder
	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p)+2 > limit {
			spans = append(spans, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		spans = append(spans, current.String())
	}
	return spans
}

// sliceIntoBlocks splits canonical text into sentence-grouped blocks.
func sliceIntoBlocks(jobID uint64, sourceID, text string) []*models.TextBlock {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var blocks []*models.TextBlock
	var current []string
	currentLen := 0
	order := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		blockText := strings.TrimSpace(strings.Join(current, " "))
		if blockText != "" {
			blocks = append(blocks, models.NewTextBlock(jobID, sourceID, blockText, order, "sentence_group"))
			order++
		}
		current = current[:0]
		currentLen = 0
	}

	for _, sentence := range sentences {
		if len(current) > 0 && (len(current) >= maxSentencesPerBlock || currentLen+len(sentence) > maxBlockChars) {
			flush()
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
	}
	flush()
	return blocks
}

// splitSentences segments text on terminal punctuation followed by
// whitespace and an upper-case or digit start. Crude, but blocks only
// need to avoid splitting mid-sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(strings.TrimSpace(text))
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Look ahead past whitespace for a sentence start.
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == len(runes) || unicode.IsUpper(runes[j]) || unicode.IsDigit(runes[j]) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
			i = j - 1
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
