package decisions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestRuleProvider() *RuleProvider {
	return NewRuleProvider(common.NewDefaultPolicy(), arbor.NewLogger())
}

func floatPtr(v float64) *float64 { return &v }

func TestDecideDiscoveryInsufficientSignal(t *testing.T) {
	p := newTestRuleProvider()

	label, reason, err := p.Decide(context.Background(), &models.Measurements{}, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionInsufficientSignal, label)
	assert.NotEmpty(t, reason)
}

func TestDecideDiscoveryPromisingOnlyIsNotInsufficient(t *testing.T) {
	p := newTestRuleProvider()

	m := &models.Measurements{
		PromisingHypothesisCount: 2,
		GraphDensity:             0.01,
	}
	label, _, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionFetchMoreLiterature, label)
}

func TestDecideDiscoveryGrowthTriggersStrategicDownload(t *testing.T) {
	p := newTestRuleProvider()

	// Growth outranks even a confident-halt-shaped snapshot.
	m := &models.Measurements{
		PassedHypothesisCount:   3,
		GrowthScore:             floatPtr(1.5),
		MeanPathLength:          2.0,
		MaxPathsPerPair:         5,
		IsDominantClear:         true,
		MaxNormalizedConfidence: 0.9,
	}
	label, _, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionStrategicDownload, label)
}

func TestDecideDiscoveryHaltConfident(t *testing.T) {
	p := newTestRuleProvider()

	m := &models.Measurements{
		PassedHypothesisCount:   3,
		MeanPathLength:          2.0,
		MaxPathsPerPair:         3,
		IsDominantClear:         true,
		MaxNormalizedConfidence: 0.85,
		DominantPairID:          "aspirin→inflammation",
		GraphDensity:            0.2,
	}
	label, reason, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionHaltConfident, label)
	assert.Contains(t, reason, "aspirin→inflammation")
}

func TestDecideDiscoveryHaltConfidentNeedsClearDominant(t *testing.T) {
	p := newTestRuleProvider()

	m := &models.Measurements{
		PassedHypothesisCount:   3,
		MeanPathLength:          2.0,
		MaxPathsPerPair:         3,
		IsDominantClear:         false,
		MaxNormalizedConfidence: 0.85,
		GraphDensity:            0.2,
	}
	label, _, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.NotEqual(t, models.DecisionHaltConfident, label)
}

func TestDecideDiscoveryHaltNoHypothesis(t *testing.T) {
	p := newTestRuleProvider()

	m := &models.Measurements{
		PassedHypothesisCount: 2,
		MeanPathLength:        2.0,
		MaxPathsPerPair:       1,
		EvidenceGrowthRate:    floatPtr(0.05),
		GraphDensity:          0.2,
		DiversityScore:        0.4,
	}
	label, _, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionHaltNoHypothesis, label)
}

func TestDecideDiscoveryNegativeGrowthRateStillStable(t *testing.T) {
	p := newTestRuleProvider()

	m := &models.Measurements{
		PassedHypothesisCount: 2,
		MeanPathLength:        2.0,
		MaxPathsPerPair:       1,
		EvidenceGrowthRate:    floatPtr(-0.05),
		GraphDensity:          0.2,
		DiversityScore:        0.4,
	}
	label, _, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionHaltNoHypothesis, label)
}

func TestDecideDiscoverySparseGraphFetches(t *testing.T) {
	p := newTestRuleProvider()

	m := &models.Measurements{
		PassedHypothesisCount: 1,
		GraphDensity:          0.01,
	}
	label, reason, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionFetchMoreLiterature, label)
	assert.Contains(t, reason, "sparse")
}

func TestDecideDiscoveryDefaultFetches(t *testing.T) {
	p := newTestRuleProvider()

	// Dense graph, no halt condition satisfied.
	m := &models.Measurements{
		PassedHypothesisCount: 1,
		MeanPathLength:        2.0,
		MaxPathsPerPair:       1,
		GraphDensity:          0.2,
		DiversityScore:        0.4,
	}
	label, _, err := p.Decide(context.Background(), m, models.JobModeDiscovery)

	assert.NoError(t, err)
	assert.Equal(t, models.DecisionFetchMoreLiterature, label)
}

func TestDecideVerification(t *testing.T) {
	p := newTestRuleProvider()
	ctx := context.Background()

	pending := &models.Measurements{IsVerification: true}
	label, _, err := p.Decide(ctx, pending, models.JobModeVerification)
	assert.NoError(t, err)
	assert.Equal(t, models.DecisionFetchMoreLiterature, label)

	found := &models.Measurements{
		IsVerification:       true,
		VerificationComplete: true,
		VerificationFound:    true,
		VerificationType:     models.ConnectionTypeIndirect,
	}
	label, reason, err := p.Decide(ctx, found, models.JobModeVerification)
	assert.NoError(t, err)
	assert.Equal(t, models.DecisionVerificationFound, label)
	assert.Contains(t, reason, "indirect")

	notFound := &models.Measurements{
		IsVerification:       true,
		VerificationComplete: true,
	}
	label, _, err = p.Decide(ctx, notFound, models.JobModeVerification)
	assert.NoError(t, err)
	assert.Equal(t, models.DecisionVerificationNotFound, label)
}
