package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// MessageClassifier assigns exactly one conversational label to an
// incoming user message, given the job it addresses (nil for new input).
type MessageClassifier interface {
	Classify(ctx context.Context, message string, job *models.ResearchJob) (models.ClassifierLabel, error)
}

// ChatService classifies user messages and runs the per-label action:
// seeds create jobs, evidence re-opens ingestion, constraints amend the
// job config, guidance resumes expert-blocked jobs, graph queries answer
// from the active graph.
type ChatService interface {
	// Handle processes one user message end to end
	Handle(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)

	// HealthCheck verifies the underlying classifier is operational
	HealthCheck(ctx context.Context) error
}
