package models

import (
	"time"

	"github.com/google/uuid"
)

// Triple is one extracted (subject, predicate, object) with full provenance.
// Immutable once written.
type Triple struct {
	ID                string    `json:"id" badgerhold:"key"`
	JobID             uint64    `json:"job_id" badgerhold:"index"`
	BlockID           string    `json:"block_id" badgerhold:"index"`
	IngestionSourceID string    `json:"ingestion_source_id" badgerhold:"index"`
	Subject           string    `json:"subject"`
	Predicate         string    `json:"predicate"`
	Object            string    `json:"object"`
	ExtractorName     string    `json:"extractor_name"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewTriple records one extraction result.
func NewTriple(jobID uint64, blockID, sourceID, subject, predicate, object, extractor string) *Triple {
	return &Triple{
		ID:                uuid.New().String(),
		JobID:             jobID,
		BlockID:           blockID,
		IngestionSourceID: sourceID,
		Subject:           subject,
		Predicate:         predicate,
		Object:            object,
		ExtractorName:     extractor,
		CreatedAt:         time.Now().UTC(),
	}
}
