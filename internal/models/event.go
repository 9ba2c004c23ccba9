// -----------------------------------------------------------------------
// Presentation events - the per-user stream contract (SSE / WebSocket)
// -----------------------------------------------------------------------

package models

// PresentationPhase labels which part of the pipeline an event came from.
type PresentationPhase string

const (
	PhaseCreation      PresentationPhase = "CREATION"
	PhaseIngestion     PresentationPhase = "INGESTION"
	PhaseTriples       PresentationPhase = "TRIPLES"
	PhaseGraph         PresentationPhase = "GRAPH"
	PhasePathReasoning PresentationPhase = "PATHREASONING"
	PhaseDecision      PresentationPhase = "DECISION"
	PhaseFetch         PresentationPhase = "FETCH"
	PhaseDownload      PresentationPhase = "DOWNLOAD"
)

// PresentationEvent is the wire payload published to a user's channel.
// Delivery is best-effort and lossy; nothing in the pipeline depends on it.
type PresentationEvent struct {
	JobID       uint64                 `json:"job_id"`
	JobType     string                 `json:"job_type"`
	Phase       PresentationPhase      `json:"phase"`
	Status      string                 `json:"status,omitempty"`
	Result      string                 `json:"result"`
	NextAction  string                 `json:"next_action,omitempty"`
	Metric      map[string]interface{} `json:"metric,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	ErrorReason string                 `json:"error_reason,omitempty"`
	Explanation string                 `json:"explanation,omitempty"`
}
