// -----------------------------------------------------------------------
// Search queries and their append-only run log
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

// SearchQuery statuses.
const (
	QueryStatusNew       = "new"
	QueryStatusReusable  = "reusable"
	QueryStatusExhausted = "exhausted"
	QueryStatusBlocked   = "blocked"
)

// Run reasons recorded when a query is selected for execution.
const (
	RunReasonInitialAttempt = "initial_attempt"
	RunReasonReuse          = "reuse"
)

// HypothesisSignature is the stable identity of a hypothesis endpoint pair:
// the first 64 hex characters of SHA-256 over the lowercased
// "{source}→{target}" string. Stable across runs by construction.
func HypothesisSignature(source, target string) string {
	h := sha256.Sum256([]byte(strings.ToLower(fmt.Sprintf("%s→%s", source, target))))
	return hex.EncodeToString(h[:])[:64]
}

// QueryConfigSnapshot freezes the orchestrator tuning a query was created
// under, so later reads never depend on live service configuration.
type QueryConfigSnapshot struct {
	FetchBatchSize   int `json:"fetch_batch_size"`
	ResultsLimit     int `json:"results_limit"`
	TopKHypotheses   int `json:"top_k_hypotheses"`
	MaxReuseAttempts int `json:"max_reuse_attempts"`
}

// SearchQuery is the durable intent record for one hypothesis endpoint pair
// within a job. (JobID, HypothesisSignature) is unique.
type SearchQuery struct {
	ID                  string              `json:"id" badgerhold:"key"`
	JobID               uint64              `json:"job_id" badgerhold:"index"`
	HypothesisSignature string              `json:"hypothesis_signature" badgerhold:"index"`
	QueryText           string              `json:"query_text"`
	ResolvedDomain      string              `json:"resolved_domain"`
	Status              string              `json:"status" badgerhold:"index"`
	ReputationScore     int                 `json:"reputation_score"`
	ConfigSnapshot      QueryConfigSnapshot `json:"config_snapshot"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// NewSearchQuery creates a fresh query in status new.
func NewSearchQuery(jobID uint64, signature, queryText, domain string, reputation int, snap QueryConfigSnapshot) *SearchQuery {
	now := time.Now().UTC()
	return &SearchQuery{
		ID:                  uuid.New().String(),
		JobID:               jobID,
		HypothesisSignature: signature,
		QueryText:           queryText,
		ResolvedDomain:      domain,
		Status:              QueryStatusNew,
		ReputationScore:     reputation,
		ConfigSnapshot:      snap,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// SearchQueryRun is one execution of a SearchQuery. Append-only.
// SignalDelta stays nil until the signal evaluator attributes the run to the
// decision window it falls in; it is set exactly once.
type SearchQueryRun struct {
	ID               string    `json:"id" badgerhold:"key"`
	SearchQueryID    string    `json:"search_query_id" badgerhold:"index"`
	JobID            uint64    `json:"job_id" badgerhold:"index"`
	ProviderUsed     string    `json:"provider_used"`
	Reason           string    `json:"reason"`
	FetchedPaperIDs  []string  `json:"fetched_paper_ids"`
	AcceptedPaperIDs []string  `json:"accepted_paper_ids"`
	RejectedPaperIDs []string  `json:"rejected_paper_ids"`
	SignalDelta      *int      `json:"signal_delta,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewSearchQueryRun records an execution with the attribution slot open.
func NewSearchQueryRun(queryID string, jobID uint64, provider, reason string) *SearchQueryRun {
	return &SearchQueryRun{
		ID:            uuid.New().String(),
		SearchQueryID: queryID,
		JobID:         jobID,
		ProviderUsed:  provider,
		Reason:        reason,
		CreatedAt:     time.Now().UTC(),
	}
}
