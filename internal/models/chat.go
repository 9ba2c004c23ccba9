package models

// ClassifierLabel is the closed set of inbound chat classifications.
type ClassifierLabel string

const (
	ClassifyResearchSeed            ClassifierLabel = "RESEARCH_SEED"
	ClassifyEvidenceInput           ClassifierLabel = "EVIDENCE_INPUT"
	ClassifyClarificationConstraint ClassifierLabel = "CLARIFICATION_CONSTRAINT"
	ClassifyExpertGuidance          ClassifierLabel = "EXPERT_GUIDANCE"
	ClassifyGraphQuery              ClassifierLabel = "GRAPH_QUERY"
	ClassifyConversational          ClassifierLabel = "CONVERSATIONAL"
)

// AllClassifierLabels in declaration order, used to build classifier prompts
// and validate responses.
var AllClassifierLabels = []ClassifierLabel{
	ClassifyResearchSeed, ClassifyEvidenceInput, ClassifyClarificationConstraint,
	ClassifyExpertGuidance, ClassifyGraphQuery, ClassifyConversational,
}

// Valid reports membership in the closed set.
func (c ClassifierLabel) Valid() bool {
	for _, l := range AllClassifierLabels {
		if c == l {
			return true
		}
	}
	return false
}

// ChatRequest is the inbound chat API body.
type ChatRequest struct {
	UserID  string `json:"user_id"`
	JobID   uint64 `json:"job_id,omitempty"`
	Message string `json:"message"`
}

// ChatResponse is what the chat endpoint returns synchronously. Pipeline
// progress continues over the event stream.
type ChatResponse struct {
	JobID          uint64          `json:"job_id,omitempty"`
	Classification ClassifierLabel `json:"classification"`
	Reply          string          `json:"reply"`
}
