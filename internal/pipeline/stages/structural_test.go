package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/colligo/internal/models"
)

func tr(subject, predicate, object string) *models.Triple {
	return models.NewTriple(1, "block-1", "src-1", subject, predicate, object, "gemini")
}

func TestReduceHandleAcronym(t *testing.T) {
	handle, alias := reduceHandle("Tumor Necrosis Factor (TNF)")
	assert.Equal(t, "tnf", handle)
	assert.Equal(t, "tumor necrosis factor", alias)
}

func TestReduceHandleCleansText(t *testing.T) {
	handle, alias := reduceHandle("  The   Hippocampus. ")
	assert.Equal(t, "hippocampus", handle)
	assert.Empty(t, alias)
}

func TestReduceHandleHeadNounPhrase(t *testing.T) {
	handle, alias := reduceHandle("Elevated cortisol levels in depressed patients")
	assert.Equal(t, "elevated cortisol level", handle)
	assert.Equal(t, "elevated cortisol levels in depressed patients", alias)
}

func TestReduceHandleShortPhraseKeptWhole(t *testing.T) {
	handle, alias := reduceHandle("Tumor necrosis factor")
	assert.Equal(t, "tumor necrosis factor", handle)
	assert.Empty(t, alias)
}

func TestSingularize(t *testing.T) {
	assert.Equal(t, "level", singularize("levels"))
	assert.Equal(t, "antibody", singularize("antibodies"))
	assert.Equal(t, "hippocampus", singularize("hippocampus"))
	assert.Equal(t, "apoptosis", singularize("apoptosis"))
	assert.Equal(t, "stress", singularize("stress"))
}

func TestMapPredicate(t *testing.T) {
	assert.Equal(t, "inhibits", mapPredicate("strongly inhibited"))
	assert.Equal(t, "activates", mapPredicate("activation of"))
	assert.Equal(t, "associated_with", mapPredicate("is correlated with"))
	assert.Equal(t, "binds_to", mapPredicate("binding"))
	assert.Equal(t, "related_to", mapPredicate("mentioned alongside"))
}

func TestBuildStructuralGraphGroupsEdges(t *testing.T) {
	graph := BuildStructuralGraph([]*models.Triple{
		tr("Aspirin", "inhibits", "COX-2"),
		tr("aspirin", "inhibited", "COX-2"),
		tr("COX-2", "increases", "prostaglandins"),
	})

	require.Len(t, graph.Edges, 2)
	var inhibit *models.GraphEdge
	for i := range graph.Edges {
		if graph.Edges[i].Predicate == "inhibits" {
			inhibit = &graph.Edges[i]
		}
	}
	require.NotNil(t, inhibit)
	assert.Equal(t, "aspirin", inhibit.Subject)
	assert.Equal(t, "cox-2", inhibit.Object)
	assert.Equal(t, 2, inhibit.Support)
	assert.Len(t, inhibit.TripleIDs, 2)
	assert.Equal(t, []string{"block-1"}, inhibit.BlockIDs)
	assert.Equal(t, []string{"src-1"}, inhibit.SourceIDs)
	assert.Len(t, graph.Nodes, 3)
}

func TestBuildStructuralGraphDropsSelfLoops(t *testing.T) {
	graph := BuildStructuralGraph([]*models.Triple{
		tr("The hippocampus", "regulates", "hippocampus"),
	})
	assert.Empty(t, graph.Edges)
	assert.Empty(t, graph.Nodes)
}

func TestBuildStructuralGraphAcronymAlias(t *testing.T) {
	graph := BuildStructuralGraph([]*models.Triple{
		tr("Tumor Necrosis Factor (TNF)", "causes", "inflammation"),
	})

	require.Len(t, graph.Nodes, 2)
	var tnf *models.GraphNode
	for i := range graph.Nodes {
		if graph.Nodes[i].Text == "tnf" {
			tnf = &graph.Nodes[i]
		}
	}
	require.NotNil(t, tnf)
	assert.Equal(t, []string{"tumor necrosis factor"}, tnf.Aliases)
	assert.Equal(t, models.NodeTypeConcept, tnf.Type)
}
