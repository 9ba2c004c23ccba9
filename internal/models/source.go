// -----------------------------------------------------------------------
// Ingestion sources and text blocks - the units of the ingest pipeline
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source types. Refinement (LLM cleaning) applies to pdf_text and user_text;
// abstracts and API text arrive already clean.
const (
	SourceTypeUserText      = "user_text"
	SourceTypePDFText       = "pdf_text"
	SourceTypePaperAbstract = "paper_abstract"
	SourceTypeAPIText       = "api_text"
)

// IngestionSource is one unit of text to ingest. RawText is canonical after
// extraction and refinement; downstream stages never bypass it.
type IngestionSource struct {
	ID         string    `json:"id" badgerhold:"key"`
	JobID      uint64    `json:"job_id" badgerhold:"index"`
	SourceType string    `json:"source_type"`
	SourceRef  string    `json:"source_ref"`
	RawText    string    `json:"raw_text"`
	Processed  bool      `json:"processed" badgerhold:"index"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewIngestionSource creates an unprocessed source.
func NewIngestionSource(jobID uint64, sourceType, sourceRef, rawText string) *IngestionSource {
	return &IngestionSource{
		ID:         uuid.New().String(),
		JobID:      jobID,
		SourceType: sourceType,
		SourceRef:  sourceRef,
		RawText:    rawText,
		CreatedAt:  time.Now().UTC(),
	}
}

// PaperSourceRef formats the source_ref linking a source to a paper. The
// impact scorer joins through this exact format.
func PaperSourceRef(paperID string) string {
	return fmt.Sprintf("paper:%s", paperID)
}

// NeedsRefinement reports whether this source type goes through the LLM
// cleaning pass during ingest.
func (s *IngestionSource) NeedsRefinement() bool {
	return s.SourceType == SourceTypePDFText || s.SourceType == SourceTypeUserText
}

// TextBlock is a slice of one IngestionSource, sized for triple extraction.
// TriplesExtracted is monotone: it flips to true exactly once, whatever the
// extraction outcome, so queue redelivery cannot double-extract.
type TextBlock struct {
	ID                   string    `json:"id" badgerhold:"key"`
	JobID                uint64    `json:"job_id" badgerhold:"index"`
	IngestionSourceID    string    `json:"ingestion_source_id" badgerhold:"index"`
	BlockText            string    `json:"block_text"`
	BlockOrder           int       `json:"block_order"`
	SegmentationStrategy string    `json:"segmentation_strategy"`
	TriplesExtracted     bool      `json:"triples_extracted" badgerhold:"index"`
	CreatedAt            time.Time `json:"created_at"`
}

// NewTextBlock creates a block at a stable position within its source.
func NewTextBlock(jobID uint64, sourceID, text string, order int, strategy string) *TextBlock {
	return &TextBlock{
		ID:                   uuid.New().String(),
		JobID:                jobID,
		IngestionSourceID:    sourceID,
		BlockText:            text,
		BlockOrder:           order,
		SegmentationStrategy: strategy,
		CreatedAt:            time.Now().UTC(),
	}
}

// Region is one extracted span of a file, labelled by document section.
type Region struct {
	Text string `json:"text"`
	Type string `json:"type"`
	Page int    `json:"page"`
}
