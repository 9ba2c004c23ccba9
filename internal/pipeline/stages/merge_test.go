package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

// fakeEmbedder returns canned unit vectors per text; unknown texts embed
// to an axis of their own so they never cluster.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return f.vectors[text], nil
}

func (f *fakeEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Dimension() int                     { return 3 }
func (f *fakeEmbedder) IsAvailable(_ context.Context) bool { return true }

func TestClusterBySimilarity(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.99, 0.14, 0}, // cos ~0.99 with index 0
		{0, 1, 0},
		nil, // unembedded stays alone
	}
	roots := clusterBySimilarity(4, vectors, 0.85)

	assert.Equal(t, roots[0], roots[1])
	assert.NotEqual(t, roots[0], roots[2])
	assert.Equal(t, 3, roots[3])
}

func TestMergeCollapsesSimilarNodes(t *testing.T) {
	stage := &MergeStage{
		embedder: &fakeEmbedder{vectors: map[string][]float32{
			"tnf":                   {1, 0, 0},
			"tumor necrosis factor": {0.995, 0.0999, 0},
			"inflammation":          {0, 1, 0},
		}},
		threshold: 0.85,
		logger:    arbor.NewLogger(),
	}

	graph := &models.GraphData{
		Nodes: []models.GraphNode{
			{Text: "tnf", Type: models.NodeTypeConcept},
			{Text: "tumor necrosis factor", Type: models.NodeTypeConcept},
			{Text: "inflammation", Type: models.NodeTypeConcept},
		},
		Edges: []models.GraphEdge{
			{Subject: "tnf", Predicate: "causes", Object: "inflammation", Support: 2, TripleIDs: []string{"t1"}},
			{Subject: "tumor necrosis factor", Predicate: "causes", Object: "inflammation", Support: 3, TripleIDs: []string{"t2"}},
		},
	}

	got := stage.merge(context.Background(), graph)

	// Canonical is the shortest member text.
	require.Len(t, got.Nodes, 2)
	var tnf *models.GraphNode
	for i := range got.Nodes {
		if got.Nodes[i].Text == "tnf" {
			tnf = &got.Nodes[i]
		}
	}
	require.NotNil(t, tnf)
	assert.Equal(t, []string{"tumor necrosis factor"}, tnf.Aliases)
	assert.Greater(t, tnf.ClusterScore, 0.9)

	require.Len(t, got.Edges, 1)
	assert.Equal(t, 5, got.Edges[0].Support)
	assert.ElementsMatch(t, []string{"t1", "t2"}, got.Edges[0].TripleIDs)
}

func TestMergeDropsCollapsedSelfLoops(t *testing.T) {
	stage := &MergeStage{
		embedder: &fakeEmbedder{vectors: map[string][]float32{
			"il-6":          {1, 0, 0},
			"interleukin 6": {0.99, 0.14, 0},
		}},
		threshold: 0.85,
		logger:    arbor.NewLogger(),
	}

	graph := &models.GraphData{
		Nodes: []models.GraphNode{
			{Text: "il-6", Type: models.NodeTypeConcept},
			{Text: "interleukin 6", Type: models.NodeTypeConcept},
		},
		Edges: []models.GraphEdge{
			{Subject: "il-6", Predicate: "related_to", Object: "interleukin 6", Support: 1},
		},
	}

	got := stage.merge(context.Background(), graph)
	assert.Empty(t, got.Edges)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "il-6", got.Nodes[0].Text)
}

func TestMergeWithoutEmbedderKeepsNodes(t *testing.T) {
	stage := &MergeStage{threshold: 0.85, logger: arbor.NewLogger()}
	graph := &models.GraphData{
		Nodes: []models.GraphNode{
			{Text: "a", Type: models.NodeTypeConcept},
			{Text: "b", Type: models.NodeTypeConcept},
		},
		Edges: []models.GraphEdge{
			{Subject: "a", Predicate: "causes", Object: "b", Support: 1},
		},
	}

	got := stage.merge(context.Background(), graph)
	assert.Len(t, got.Nodes, 2)
	assert.Len(t, got.Edges, 1)
}
