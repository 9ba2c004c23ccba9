// -----------------------------------------------------------------------
// Pipeline Interfaces - Stage handlers and the decision feedback loop
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// StageResult tells the dispatcher what to do after a stage succeeds.
type StageResult struct {
	// NextStatus is the CAS target. Empty means the stage already moved
	// the job itself and the dispatcher must not touch status.
	NextStatus models.JobStatus

	// Requeue re-enqueues the job so the next stage runs promptly.
	Requeue bool

	// Message is an optional note appended to the conversation log.
	Message string
}

// StageHandler defines the interface that all pipeline stages implement.
// The dispatcher uses it to advance jobs in a status-agnostic manner.
type StageHandler interface {
	// Status returns the job status this stage consumes
	Status() models.JobStatus

	// Execute runs the stage for a job currently in Status().
	// Implementations are idempotent: a repeat delivery after a crash
	// must converge to the same durable state, not duplicate it.
	Execute(ctx context.Context, job *models.ResearchJob) (*StageResult, error)
}

// DecisionProvider maps a measurement snapshot to a decision label.
type DecisionProvider interface {
	// Decide returns the chosen label and a short explanation of the
	// rule or reasoning that produced it.
	Decide(ctx context.Context, m *models.Measurements, mode models.JobMode) (models.DecisionLabel, string, error)

	// Name identifies the provider in decision results ("rule", "llm")
	Name() string
}

// DecisionInput carries the context a decision handler may need.
type DecisionInput struct {
	Job        *models.ResearchJob
	Decision   *models.DecisionResult
	Graph      *models.SemanticGraph
	Hypotheses []*models.Hypothesis
}

// DecisionHandler reacts to one decision label: it performs the label's
// side effects and reports the job's next status.
type DecisionHandler interface {
	// Label returns the decision label this handler serves
	Label() models.DecisionLabel

	// Handle applies the label's consequences. Like stages, handlers
	// are idempotent under repeat delivery.
	Handle(ctx context.Context, in *DecisionInput) (*models.HandlerResult, error)
}

// DecisionHandlerRegistry resolves handlers by label.
type DecisionHandlerRegistry interface {
	Register(h DecisionHandler)
	Get(label models.DecisionLabel) (DecisionHandler, bool)
}
