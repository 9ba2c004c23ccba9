package reasoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestService(policy *common.AdminPolicy) *Service {
	if policy == nil {
		policy = common.NewDefaultPolicy()
	}
	return NewService(policy, arbor.NewLogger())
}

func conceptGraph(edges []models.GraphEdge, metadataNodes ...string) *models.SemanticGraph {
	meta := make(map[string]bool, len(metadataNodes))
	for _, n := range metadataNodes {
		meta[n] = true
	}

	seen := make(map[string]bool)
	data := models.GraphData{Edges: edges}
	for _, e := range edges {
		for _, text := range []string{e.Subject, e.Object} {
			if seen[text] {
				continue
			}
			seen[text] = true
			nodeType := models.NodeTypeConcept
			if meta[text] {
				nodeType = models.NodeTypeMetadata
			}
			data.Nodes = append(data.Nodes, models.GraphNode{Text: text, Type: nodeType})
		}
	}
	return models.NewSemanticGraph(1, data, 1)
}

func edge(subject, predicate, object string, support int) models.GraphEdge {
	return models.GraphEdge{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Support:   support,
		TripleIDs: []string{subject + "-" + object},
	}
}

func TestGenerateHypothesesBasicChain(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 1)

	h := hyps[0]
	assert.Equal(t, []string{"a", "b", "c"}, h.Path)
	assert.Equal(t, "a", h.Source)
	assert.Equal(t, "c", h.Target)
	assert.Equal(t, 3, h.Confidence) // min of per-hop strengths
	assert.Equal(t, []string{"inhibits", "activates"}, h.Predicates)
	assert.Equal(t, "a -[inhibits]-> b then b -[activates]-> c", h.Explanation)
	assert.Equal(t, models.HypothesisModeExplore, h.Mode)
	assert.True(t, h.PassedFilter)
	assert.ElementsMatch(t, []string{"a-b", "b-c"}, h.TripleIDs)
}

func TestGenerateHypothesesMultiPredicateHopStrength(t *testing.T) {
	s := newTestService(nil)
	// Two predicates on the same hop: strength is the max support.
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 2),
		edge("a", "suppresses", "b", 5),
		edge("b", "activates", "c", 3),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 1)

	assert.Equal(t, 3, hyps[0].Confidence) // min(max(2,5), 3)
	assert.Len(t, hyps[0].Predicates, 3)
}

func TestGenerateHypothesesNoveltyExcludesDirectEdge(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
		edge("a", "treats", "c", 1),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	assert.Empty(t, hyps)
}

func TestGenerateHypothesesHubSuppressionStrictlyGreater(t *testing.T) {
	policy := common.NewDefaultPolicy()
	policy.IndirectPath.HubDegreeThreshold = 3
	s := newTestService(policy)

	// Node b participates in three edges: degree exactly 3 passes.
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 2),
		edge("d", "induces", "b", 2),
		edge("b", "activates", "c", 2),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 2)
	for _, h := range hyps {
		assert.True(t, h.PassedFilter, "degree == threshold must not reject")
	}

	// One more incident edge pushes b to degree 4 > 3.
	graph = conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 2),
		edge("d", "induces", "b", 2),
		edge("e", "targets", "b", 2),
		edge("b", "activates", "c", 2),
	})

	hyps, err = s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.NotEmpty(t, hyps)
	for _, h := range hyps {
		assert.False(t, h.PassedFilter)
		assert.Contains(t, h.FilterReason, models.FilterRuleHubSuppression)
	}
}

func TestGenerateHypothesesEvidenceThresholdLeavesPromising(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 1),
		edge("b", "activates", "c", 4),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 1)

	h := hyps[0]
	assert.False(t, h.PassedFilter)
	assert.Contains(t, h.FilterReason, models.FilterRuleEvidenceThreshold)
	assert.True(t, h.Promising())
}

func TestGenerateHypothesesAllGenericPredicatesRejected(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "related_to", "b", 3),
		edge("b", "associated_with", "c", 4),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 1)

	assert.False(t, hyps[0].PassedFilter)
	assert.Contains(t, hyps[0].FilterReason, models.FilterRuleGenericPredicates)
	assert.False(t, hyps[0].Promising())
}

func TestGenerateHypothesesQueryModeRestrictsToSeeds(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
		edge("d", "induces", "e", 3),
		edge("e", "causes", "f", 4),
	})

	job := &models.ResearchJob{ID: 1, Config: models.JobConfig{
		PathReasoning: models.PathReasoningConfig{Seeds: []string{"A"}}, // resolved case-insensitively
	}}

	hyps, err := s.GenerateHypotheses(context.Background(), job, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 1)
	assert.Equal(t, "a", hyps[0].Source)
	assert.Equal(t, models.HypothesisModeQuery, hyps[0].Mode)
}

func TestGenerateHypothesesMetadataNodesExcluded(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
	}, "b")

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	assert.Empty(t, hyps)
}

func TestGenerateHypothesesStoplistedIntermediateExcluded(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
	})

	job := &models.ResearchJob{ID: 1, Config: models.JobConfig{
		PathReasoning: models.PathReasoningConfig{Stoplist: []string{"B"}},
	}}

	hyps, err := s.GenerateHypotheses(context.Background(), job, graph, 1)
	require.NoError(t, err)
	assert.Empty(t, hyps)
}

func TestGenerateHypothesesLengthThreePaths(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
		edge("c", "causes", "d", 5),
	})

	job := &models.ResearchJob{ID: 1, Config: models.JobConfig{
		PathReasoning: models.PathReasoningConfig{AllowLen3: true, MaxHops: 3},
	}}

	hyps, err := s.GenerateHypotheses(context.Background(), job, graph, 1)
	require.NoError(t, err)

	paths := make(map[string][]string, len(hyps))
	for _, h := range hyps {
		paths[h.PairKey()] = h.Path
	}
	require.Len(t, paths, 3)
	assert.Equal(t, []string{"a", "b", "c"}, paths["a→c"])
	assert.Equal(t, []string{"b", "c", "d"}, paths["b→d"])
	assert.Equal(t, []string{"a", "b", "c", "d"}, paths["a→d"])
}

func TestGenerateHypothesesSortedDeterministically(t *testing.T) {
	s := newTestService(nil)
	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 2),
		edge("b", "activates", "c", 2),
		edge("d", "induces", "e", 5),
		edge("e", "causes", "f", 5),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	require.Len(t, hyps, 2)
	assert.Equal(t, "d", hyps[0].Source) // confidence 5 before 2
	assert.Equal(t, "a", hyps[1].Source)
}

func TestGenerateHypothesesDisabledReturnsNothing(t *testing.T) {
	policy := common.NewDefaultPolicy()
	policy.IndirectPath.Enabled = false
	s := newTestService(policy)

	graph := conceptGraph([]models.GraphEdge{
		edge("a", "inhibits", "b", 3),
		edge("b", "activates", "c", 4),
	})

	hyps, err := s.GenerateHypotheses(context.Background(), &models.ResearchJob{ID: 1}, graph, 1)
	require.NoError(t, err)
	assert.Empty(t, hyps)
}
