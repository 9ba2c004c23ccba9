package measurements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(common.NewDefaultPolicy(), arbor.NewLogger())
}

func hyp(path []string, conf int, passed bool, reasons map[string]string) *models.Hypothesis {
	h := models.NewHypothesis(1, models.HypothesisModeExplore, path, 1)
	h.Confidence = conf
	h.PassedFilter = passed
	h.FilterReason = reasons
	return h
}

func discoveryJob() *models.ResearchJob {
	return &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}
}

func graphWith(nodes int, edges ...[2]string) *models.SemanticGraph {
	data := models.GraphData{}
	for i := 0; i < nodes; i++ {
		data.Nodes = append(data.Nodes, models.GraphNode{Text: string(rune('a' + i)), Type: models.NodeTypeConcept})
	}
	for _, e := range edges {
		data.Edges = append(data.Edges, models.GraphEdge{Subject: e[0], Predicate: "inhibits", Object: e[1], Support: 1})
	}
	return models.NewSemanticGraph(1, data, 1)
}

func TestComputePopulations(t *testing.T) {
	e := newTestEngine()

	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 5, true, nil),
			hyp([]string{"a", "d", "c"}, 1, false, map[string]string{models.FilterRuleEvidenceThreshold: "confidence 1 below minimum 2"}),
			hyp([]string{"x", "y", "z"}, 9, false, map[string]string{models.FilterRuleHubSuppression: "degree 75"}),
		},
	})

	assert.Equal(t, 3, m.TotalHypothesisCount)
	assert.Equal(t, 1, m.PassedHypothesisCount)
	assert.Equal(t, 1, m.PromisingHypothesisCount)
	assert.InDelta(t, 1.0/3.0, m.FilteredRatio, 1e-9)
	assert.Equal(t, map[string]int{
		models.FilterRuleEvidenceThreshold: 1,
		models.FilterRuleHubSuppression:    1,
	}, m.FilterRejectionReasons)
}

func TestComputeGraphDensityZeroBelowTwoNodes(t *testing.T) {
	e := newTestEngine()

	m := e.Compute(&Input{Job: discoveryJob(), Graph: graphWith(1)})
	assert.Zero(t, m.GraphDensity)
	assert.Equal(t, 1, m.SemanticGraphNodeCount)

	m = e.Compute(&Input{Job: discoveryJob(), Graph: graphWith(2, [2]string{"a", "b"})})
	assert.InDelta(t, 0.5, m.GraphDensity, 1e-9)
	assert.Equal(t, 1, m.SemanticGraphEdgeCount)
}

func TestComputeConfidenceClampedToUnit(t *testing.T) {
	e := newTestEngine()

	// Normalization factor is 10; a raw confidence of 25 saturates at 1.0.
	m := e.Compute(&Input{
		Job:        discoveryJob(),
		Hypotheses: []*models.Hypothesis{hyp([]string{"a", "b", "c"}, 25, true, nil)},
	})

	assert.Equal(t, 1.0, m.MaxNormalizedConfidence)
	assert.Equal(t, 1.0, m.MeanNormalizedConfidence)
}

func TestComputeSinglePassedHypothesisDominates(t *testing.T) {
	e := newTestEngine()

	m := e.Compute(&Input{
		Job:        discoveryJob(),
		Hypotheses: []*models.Hypothesis{hyp([]string{"a", "b", "c"}, 5, true, nil)},
	})

	assert.True(t, m.IsDominantClear)
}

func TestComputeDominantGap(t *testing.T) {
	e := newTestEngine()

	// Gap ratio default is 0.2: (0.8-0.3) > 0.2*0.8 holds.
	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 8, true, nil),
			hyp([]string{"d", "e", "f"}, 3, true, nil),
		},
	})
	assert.True(t, m.IsDominantClear)

	// (0.8-0.7) > 0.2*0.8 fails.
	m = e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 8, true, nil),
			hyp([]string{"d", "e", "f"}, 7, true, nil),
		},
	})
	assert.False(t, m.IsDominantClear)
}

func TestComputeDiversity(t *testing.T) {
	e := newTestEngine()

	// Six path slots, five distinct nodes ("a" and "c" repeat).
	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 5, true, nil),
			hyp([]string{"a", "d", "c"}, 4, true, nil),
		},
	})

	assert.Equal(t, 1, m.UniqueSourceTargetPairs)
	assert.Equal(t, 4, m.UniqueNodesInPaths)
	assert.InDelta(t, 4.0/6.0, m.DiversityScore, 1e-9)
	assert.Equal(t, []string{"a→c"}, m.PassedPairKeys)
}

func TestComputeIndirectPathMetrics(t *testing.T) {
	e := newTestEngine()

	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "x", "c"}, 5, true, nil),
			hyp([]string{"a", "y", "c"}, 3, true, nil),
			hyp([]string{"d", "z", "f"}, 2, true, nil),
		},
	})

	assert.Equal(t, 2, m.MaxPathsPerPair)
	assert.InDelta(t, 1.5, m.MeanPathsPerPair, 1e-9)
	assert.Equal(t, "a→c", m.DominantPairID)
	assert.InDelta(t, 1.0, m.DominantPairPathRatio, 1e-9)
	assert.Equal(t, 2, m.UniqueIntermediateNodesDominant)
	assert.Zero(t, m.RedundancyScore)
	assert.InDelta(t, 2.0, m.MeanPathLength, 1e-9)
	assert.Zero(t, m.PathLengthVariance)
	// Top two pairs' max confidences: 0.5 and 0.2.
	assert.InDelta(t, 0.3, m.DominantConfidenceGap, 1e-9)
	// Shannon entropy of {2/3, 1/3}.
	assert.InDelta(t, 0.9183, m.PairDistributionEntropy, 1e-3)
}

func TestComputeRedundancySharedIntermediates(t *testing.T) {
	e := newTestEngine()

	// Intermediate "b" occurs in both paths: 2 occurrences, 1 unique.
	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 5, true, nil),
			hyp([]string{"d", "b", "f"}, 4, true, nil),
		},
	})

	assert.InDelta(t, 0.5, m.RedundancyScore, 1e-9)
}

func TestComputeTemporalMetrics(t *testing.T) {
	e := newTestEngine()

	prev := e.Compute(&Input{
		Job:        discoveryJob(),
		Hypotheses: []*models.Hypothesis{hyp([]string{"a", "b", "c"}, 5, true, nil)},
	})

	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 5, true, nil),
			hyp([]string{"d", "e", "f"}, 4, true, nil),
		},
		Previous: prev,
	})

	require.NotNil(t, m.EvidenceGrowthRate)
	assert.InDelta(t, 1.0, *m.EvidenceGrowthRate, 1e-9) // (2-1)/1

	require.NotNil(t, m.HypothesisStability)
	assert.InDelta(t, 1.0, *m.HypothesisStability, 1e-9) // a→c carried over

	// Δunique_nodes (6-3) + Δdiversity (0) + Δpassed (1).
	require.NotNil(t, m.GrowthScore)
	assert.InDelta(t, 4.0, *m.GrowthScore, 1e-9)
}

func TestComputeGrowthRateFromZeroIsAbsoluteCount(t *testing.T) {
	e := newTestEngine()

	prev := e.Compute(&Input{Job: discoveryJob()})
	m := e.Compute(&Input{
		Job: discoveryJob(),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 5, true, nil),
			hyp([]string{"d", "e", "f"}, 4, true, nil),
			hyp([]string{"g", "h", "i"}, 3, true, nil),
		},
		Previous: prev,
	})

	require.NotNil(t, m.EvidenceGrowthRate)
	assert.InDelta(t, 3.0, *m.EvidenceGrowthRate, 1e-9)
}

func TestComputeIsDeterministic(t *testing.T) {
	e := newTestEngine()

	in := &Input{
		Job:   discoveryJob(),
		Graph: graphWith(4, [2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "d"}),
		Hypotheses: []*models.Hypothesis{
			hyp([]string{"a", "b", "c"}, 5, true, nil),
			hyp([]string{"a", "x", "c"}, 3, true, nil),
			hyp([]string{"d", "e", "f"}, 1, false, map[string]string{models.FilterRuleEvidenceThreshold: "confidence 1 below minimum 2"}),
		},
	}

	first := e.Compute(in)
	second := e.Compute(in)
	assert.Equal(t, first, second)
}

func TestComputeVerificationShortCircuit(t *testing.T) {
	e := newTestEngine()
	job := &models.ResearchJob{ID: 2, Mode: models.JobModeVerification}

	pending := e.Compute(&Input{Job: job, PendingNewQueries: 2})
	assert.True(t, pending.IsVerification)
	assert.False(t, pending.VerificationComplete)
	assert.Zero(t, pending.TotalHypothesisCount)

	found := true
	v := models.NewVerificationResult(job.ID, "gene X", "disease Y")
	v.ConnectionFound = &found
	v.ConnectionType = models.ConnectionTypeIndirect

	done := e.Compute(&Input{Job: job, PendingNewQueries: 0, Verification: v})
	assert.True(t, done.VerificationComplete)
	assert.True(t, done.VerificationFound)
	assert.Equal(t, models.ConnectionTypeIndirect, done.VerificationType)
}
