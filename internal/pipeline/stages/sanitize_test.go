package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestSanitizer(t *testing.T) *SanitizeStage {
	t.Helper()
	s, err := NewSanitizeStage(nil, nil, common.NewDefaultPolicy(), 0, arbor.NewLogger())
	require.NoError(t, err)
	return s
}

func TestSanitizeRemovesNoiseNodes(t *testing.T) {
	s := newTestSanitizer(t)
	graph := &models.GraphData{
		Nodes: []models.GraphNode{
			{Text: "aspirin", Type: models.NodeTypeConcept},
			{Text: "et al", Type: models.NodeTypeConcept},
			{Text: "figure 3", Type: models.NodeTypeConcept},
			{Text: "cox-2", Type: models.NodeTypeConcept},
		},
		Edges: []models.GraphEdge{
			{Subject: "aspirin", Predicate: "inhibits", Object: "cox-2", Support: 2},
			{Subject: "et al", Predicate: "related_to", Object: "aspirin", Support: 1},
			{Subject: "aspirin", Predicate: "related_to", Object: "figure 3", Support: 1},
		},
	}

	got := s.Sanitize(graph)

	require.Len(t, got.Edges, 1)
	assert.Equal(t, "inhibits", got.Edges[0].Predicate)
	require.Len(t, got.Nodes, 2)
	assert.ElementsMatch(t, []string{"et al", "figure 3"}, got.RemovedNodes)
}

func TestSanitizeDemotesMetadataToAttributes(t *testing.T) {
	s := newTestSanitizer(t)
	graph := &models.GraphData{
		Nodes: []models.GraphNode{
			{Text: "aspirin", Type: models.NodeTypeConcept},
			{Text: "2019", Type: models.NodeTypeConcept},
			{Text: "cox-2", Type: models.NodeTypeConcept},
		},
		Edges: []models.GraphEdge{
			{Subject: "aspirin", Predicate: "inhibits", Object: "cox-2", Support: 1},
			{Subject: "aspirin", Predicate: "related_to", Object: "2019", Support: 1},
		},
	}

	got := s.Sanitize(graph)

	require.Len(t, got.Edges, 1)
	var aspirin *models.GraphNode
	for i := range got.Nodes {
		if got.Nodes[i].Text == "aspirin" {
			aspirin = &got.Nodes[i]
		}
	}
	require.NotNil(t, aspirin)
	assert.Equal(t, "2019", aspirin.Attributes["year"])
	assert.Contains(t, got.RemovedNodes, "2019")
}

func TestSanitizeDropsOrphanedNodes(t *testing.T) {
	s := newTestSanitizer(t)
	graph := &models.GraphData{
		Nodes: []models.GraphNode{
			{Text: "aspirin", Type: models.NodeTypeConcept},
			{Text: "abstract", Type: models.NodeTypeConcept},
			{Text: "lonely", Type: models.NodeTypeConcept},
		},
		Edges: []models.GraphEdge{
			{Subject: "aspirin", Predicate: "related_to", Object: "abstract", Support: 1},
		},
	}

	got := s.Sanitize(graph)

	assert.Empty(t, got.Edges)
	assert.Empty(t, got.Nodes)
	assert.ElementsMatch(t, []string{"abstract", "aspirin", "lonely"}, got.RemovedNodes)
}
