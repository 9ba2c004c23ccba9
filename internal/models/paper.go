// -----------------------------------------------------------------------
// Papers and the per-job strategic evidence ledger
// -----------------------------------------------------------------------

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Paper is a canonical scholarly work, global and shared across jobs.
// Deduplication order: DOI, then external IDs, then fingerprint.
type Paper struct {
	ID          string            `json:"id" badgerhold:"key"`
	Title       string            `json:"title"`
	Abstract    string            `json:"abstract"`
	Authors     []string          `json:"authors"`
	Year        int               `json:"year"`
	Venue       string            `json:"venue"`
	DOI         string            `json:"doi,omitempty" badgerhold:"index"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Fingerprint string            `json:"fingerprint" badgerhold:"unique"`
	PDFURL      string            `json:"pdf_url,omitempty"`
	Source      string            `json:"source"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewPaper builds a paper with its content fingerprint computed.
func NewPaper(title, abstract string, authors []string, year int, source string) *Paper {
	p := &Paper{
		ID:        uuid.New().String(),
		Title:     title,
		Abstract:  abstract,
		Authors:   authors,
		Year:      year,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	p.Fingerprint = PaperFingerprint(title, authors, year)
	return p
}

// PaperFingerprint is a content hash over normalized title, first author and
// year. Two papers with equal fingerprints are the same work.
func PaperFingerprint(title string, authors []string, year int) string {
	firstAuthor := ""
	if len(authors) > 0 {
		firstAuthor = authors[0]
	}
	norm := strings.ToLower(strings.Join(strings.Fields(title), " "))
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", norm, strings.ToLower(firstAuthor), year)))
	return hex.EncodeToString(h[:])
}

// JobPaperEvidence links a paper to a job: the strategic ledger. One row per
// (job, paper); Evaluated flips to true once, after full-text extraction.
type JobPaperEvidence struct {
	ID             string    `json:"id" badgerhold:"key"`
	JobID          uint64    `json:"job_id" badgerhold:"index"`
	PaperID        string    `json:"paper_id" badgerhold:"index"`
	RunID          string    `json:"run_id,omitempty"`
	Evaluated      bool      `json:"evaluated" badgerhold:"index"`
	ImpactScore    float64   `json:"impact_score"`
	HypoRefCount   int       `json:"hypo_ref_count"`
	CumulativeConf float64   `json:"cumulative_conf"`
	EntityDensity  float64   `json:"entity_density"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewJobPaperEvidence opens a ledger entry for a fetched paper.
func NewJobPaperEvidence(jobID uint64, paperID, runID string) *JobPaperEvidence {
	now := time.Now().UTC()
	return &JobPaperEvidence{
		ID:        uuid.New().String(),
		JobID:     jobID,
		PaperID:   paperID,
		RunID:     runID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RecomputeImpact refreshes the composite score from its three terms.
func (e *JobPaperEvidence) RecomputeImpact() {
	e.ImpactScore = float64(e.HypoRefCount) + e.CumulativeConf + e.EntityDensity
	e.UpdatedAt = time.Now().UTC()
}
