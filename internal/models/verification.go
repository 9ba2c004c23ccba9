package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection types recorded on verification outcomes.
const (
	ConnectionTypeDirect   = "direct"
	ConnectionTypeIndirect = "indirect"
	ConnectionTypeNone     = "none"
)

// VerificationResult is the outcome of a verification job: whether a
// connection between the requested entity pair was found, and through what.
type VerificationResult struct {
	ID               string    `json:"id" badgerhold:"key"`
	JobID            uint64    `json:"job_id" badgerhold:"index"`
	Source           string    `json:"source"`
	Target           string    `json:"target"`
	ConnectionFound  *bool     `json:"connection_found"`
	ConnectionType   string    `json:"connection_type,omitempty"`
	Path             []string  `json:"path,omitempty"`
	Explanation      string    `json:"explanation,omitempty"`
	SupportingPapers []string  `json:"supporting_papers,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewVerificationResult records a verification outcome.
func NewVerificationResult(jobID uint64, source, target string) *VerificationResult {
	return &VerificationResult{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Source:    source,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}
}
