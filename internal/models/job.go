// -----------------------------------------------------------------------
// Research Job - root aggregate for the literature review state machine
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobMode distinguishes open-ended discovery from targeted verification.
type JobMode string

const (
	JobModeDiscovery    JobMode = "discovery"
	JobModeVerification JobMode = "verification"
)

// JobStatus is the wire-visible stage label of a research job. The
// dispatcher routes on it and owns every transition.
type JobStatus string

const (
	JobStatusCreated             JobStatus = "CREATED"
	JobStatusReadyToIngest       JobStatus = "READY_TO_INGEST"
	JobStatusIngested            JobStatus = "INGESTED"
	JobStatusTriplesExtracted    JobStatus = "TRIPLES_EXTRACTED"
	JobStatusStructuralGraph     JobStatus = "STRUCTURAL_GRAPH_BUILT"
	JobStatusGraphSanitized      JobStatus = "GRAPH_SANITIZED"
	JobStatusGraphSemanticMerged JobStatus = "GRAPH_SEMANTIC_MERGED"
	JobStatusPathReasoningDone   JobStatus = "PATH_REASONING_DONE"
	JobStatusDecisionMade        JobStatus = "DECISION_MADE"
	JobStatusFetchQueued         JobStatus = "FETCH_QUEUED"
	JobStatusDownloadQueued      JobStatus = "DOWNLOAD_QUEUED"
	JobStatusNeedMoreInput       JobStatus = "NEED_MORE_INPUT"
	JobStatusWaitingForUser      JobStatus = "WAITING_FOR_USER"
	JobStatusNeedsExpertReview   JobStatus = "NEEDS_EXPERT_REVIEW"
	JobStatusManualReview        JobStatus = "MANUAL_REVIEW"
	JobStatusCompleted           JobStatus = "COMPLETED"
	JobStatusFailed              JobStatus = "FAILED"
)

// AllJobStatuses lists every legal status. Used to validate the stage
// registry at startup.
var AllJobStatuses = []JobStatus{
	JobStatusCreated, JobStatusReadyToIngest, JobStatusIngested,
	JobStatusTriplesExtracted, JobStatusStructuralGraph, JobStatusGraphSanitized,
	JobStatusGraphSemanticMerged, JobStatusPathReasoningDone, JobStatusDecisionMade,
	JobStatusFetchQueued, JobStatusDownloadQueued, JobStatusNeedMoreInput,
	JobStatusWaitingForUser, JobStatusNeedsExpertReview, JobStatusManualReview,
	JobStatusCompleted, JobStatusFailed,
}

// IsTerminal reports whether automatic progression has stopped for good.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsWaiting reports whether the job halted pending user or expert input.
// Waiting jobs resume when new input re-enqueues them.
func (s JobStatus) IsWaiting() bool {
	switch s {
	case JobStatusNeedMoreInput, JobStatusWaitingForUser,
		JobStatusNeedsExpertReview, JobStatusManualReview:
		return true
	}
	return false
}

// ExpertSettings carries expert-supplied steering captured on job config.
type ExpertSettings struct {
	Assumptions         []string `json:"assumptions,omitempty"`
	PreferredPredicates []string `json:"preferred_predicates,omitempty"`
	ExcludedEntities    []string `json:"excluded_entities,omitempty"`
}

// PathReasoningConfig tunes hypothesis enumeration for one job.
type PathReasoningConfig struct {
	Seeds     []string `json:"seeds,omitempty"`
	Stoplist  []string `json:"stoplist,omitempty"`
	AllowLen3 bool     `json:"allow_len3"`
	MaxHops   int      `json:"max_hops" validate:"gte=0,lte=3"`
}

// QueryExpansionConfig tunes fetch-query construction for one job.
type QueryExpansionConfig struct {
	ExtraTerms  []string `json:"extra_terms,omitempty"`
	MaxVariants int      `json:"max_variants" validate:"gte=0"`
}

// JobConfig is the immutable per-job tuning captured at creation time.
// Later chat turns may append constraints (focus areas, stoplist entries)
// but never rewrite what was captured.
type JobConfig struct {
	Domain         string               `json:"domain,omitempty"`
	FocusAreas     []string             `json:"focus_areas,omitempty"`
	Expert         ExpertSettings       `json:"expert_settings"`
	PathReasoning  PathReasoningConfig  `json:"path_reasoning"`
	QueryExpansion QueryExpansionConfig `json:"query_expansion"`
	AlertTag       string               `json:"alert_tag,omitempty"`

	// Verification jobs carry the entity pair to verify.
	VerifySource string `json:"verify_source,omitempty"`
	VerifyTarget string `json:"verify_target,omitempty"`
}

// ResearchJob is the root aggregate. Every child entity references it by
// JobID and is deleted with it. Status moves only through the dispatcher's
// compare-and-set.
type ResearchJob struct {
	ID        uint64                 `json:"id" badgerhold:"key"`
	UserID    string                 `json:"user_id" badgerhold:"index"`
	Mode      JobMode                `json:"mode"`
	Status    JobStatus              `json:"status" badgerhold:"index"`
	Seed      string                 `json:"seed,omitempty"`
	Config    JobConfig              `json:"config"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewResearchJob builds a discovery or verification job in CREATED state.
// The ID is assigned by storage on insert.
func NewResearchJob(userID string, mode JobMode, seed string, config JobConfig) *ResearchJob {
	now := time.Now().UTC()
	return &ResearchJob{
		UserID:    userID,
		Mode:      mode,
		Status:    JobStatusCreated,
		Seed:      seed,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks structural requirements before persistence.
func (j *ResearchJob) Validate() error {
	if j.UserID == "" {
		return fmt.Errorf("job user_id is required")
	}
	switch j.Mode {
	case JobModeDiscovery, JobModeVerification:
	default:
		return fmt.Errorf("invalid job mode: %q", j.Mode)
	}
	if j.Mode == JobModeVerification && (j.Config.VerifySource == "" || j.Config.VerifyTarget == "") {
		return fmt.Errorf("verification job requires verify_source and verify_target")
	}
	return nil
}

// Active reports whether the dispatcher should keep driving this job.
func (j *ResearchJob) Active() bool {
	return !j.Status.IsTerminal() && !j.Status.IsWaiting()
}
