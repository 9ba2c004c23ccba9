// -----------------------------------------------------------------------
// Decision labels, persisted decision results, handler results
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionLabel is the closed control-decision set.
type DecisionLabel string

const (
	DecisionHaltConfident        DecisionLabel = "HALT_CONFIDENT"
	DecisionHaltNoHypothesis     DecisionLabel = "HALT_NO_HYPOTHESIS"
	DecisionInsufficientSignal   DecisionLabel = "INSUFFICIENT_SIGNAL"
	DecisionFetchMoreLiterature  DecisionLabel = "FETCH_MORE_LITERATURE"
	DecisionStrategicDownload    DecisionLabel = "STRATEGIC_DOWNLOAD_TARGETED"
	DecisionVerificationFound    DecisionLabel = "VERIFICATION_FOUND"
	DecisionVerificationNotFound DecisionLabel = "VERIFICATION_NOT_FOUND"
)

// DiscoveryDecisionLabels are the labels a discovery job can receive.
var DiscoveryDecisionLabels = []DecisionLabel{
	DecisionHaltConfident, DecisionHaltNoHypothesis, DecisionInsufficientSignal,
	DecisionFetchMoreLiterature, DecisionStrategicDownload,
}

// VerificationDecisionLabels are the labels a verification job can receive.
var VerificationDecisionLabels = []DecisionLabel{
	DecisionVerificationFound, DecisionVerificationNotFound,
}

// Valid reports membership in the closed set.
func (d DecisionLabel) Valid() bool {
	switch d {
	case DecisionHaltConfident, DecisionHaltNoHypothesis, DecisionInsufficientSignal,
		DecisionFetchMoreLiterature, DecisionStrategicDownload,
		DecisionVerificationFound, DecisionVerificationNotFound:
		return true
	}
	return false
}

// DecisionResult snapshots one decision cycle. Append-only; CreatedAt is
// strictly monotone per job, which the signal evaluator relies on.
type DecisionResult struct {
	ID                   string        `json:"id" badgerhold:"key"`
	JobID                uint64        `json:"job_id" badgerhold:"index"`
	DecisionLabel        DecisionLabel `json:"decision_label"`
	ProviderUsed         string        `json:"provider_used"`
	MeasurementsSnapshot Measurements  `json:"measurements_snapshot"`
	FallbackUsed         bool          `json:"fallback_used"`
	FallbackReason       string        `json:"fallback_reason,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}

// NewDecisionResult records a decision with its measurement snapshot.
func NewDecisionResult(jobID uint64, label DecisionLabel, provider string, snapshot Measurements) *DecisionResult {
	return &DecisionResult{
		ID:                   uuid.New().String(),
		JobID:                jobID,
		DecisionLabel:        label,
		ProviderUsed:         provider,
		MeasurementsSnapshot: snapshot,
		CreatedAt:            time.Now().UTC(),
	}
}

// HandlerResult is what a decision handler returns to the dispatcher: the
// status to CAS into, a user-facing message, and an optional payload.
type HandlerResult struct {
	Status     JobStatus              `json:"status"`
	Message    string                 `json:"message"`
	NextAction string                 `json:"next_action,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Requeue    bool                   `json:"requeue"`
}
