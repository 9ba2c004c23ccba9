package interfaces

import (
	"context"
)

// EmbeddingService generates vector embeddings for node texts during
// semantic merging. Vectors are L2-normalized so cosine similarity is a
// plain dot product.
type EmbeddingService interface {
	// Generate embedding for raw text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Generate embeddings for a batch of texts, one vector per input
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// Get model information
	ModelName() string
	Dimension() int

	// Check if service is available
	IsAvailable(ctx context.Context) bool
}
