// -----------------------------------------------------------------------
// Rule-based decision provider - ordered rules, first match wins
// -----------------------------------------------------------------------

package decisions

import (
	"context"
	"fmt"
	"math"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// RuleProvider maps a measurement snapshot to a decision through a fixed
// rule order. Deterministic; the primary provider in every mode.
type RuleProvider struct {
	thresholds common.DecisionThresholds
	logger     arbor.ILogger
}

// NewRuleProvider creates the rule-based provider.
func NewRuleProvider(policy *common.AdminPolicy, logger arbor.ILogger) *RuleProvider {
	return &RuleProvider{
		thresholds: policy.DecisionThresholds,
		logger:     logger,
	}
}

// Name identifies the provider in decision results.
func (p *RuleProvider) Name() string {
	return "rule"
}

// Decide applies the rule order. Verification jobs resolve from the
// verification short-circuit; discovery jobs walk the six rules.
func (p *RuleProvider) Decide(ctx context.Context, m *models.Measurements, mode models.JobMode) (models.DecisionLabel, string, error) {
	if mode == models.JobModeVerification {
		return p.decideVerification(m)
	}
	return p.decideDiscovery(m)
}

func (p *RuleProvider) decideVerification(m *models.Measurements) (models.DecisionLabel, string, error) {
	if !m.VerificationComplete {
		return models.DecisionFetchMoreLiterature, "verification queries still pending", nil
	}
	if m.VerificationFound {
		return models.DecisionVerificationFound, fmt.Sprintf("connection found (%s)", m.VerificationType), nil
	}
	return models.DecisionVerificationNotFound, "all queries exhausted without a connection", nil
}

func (p *RuleProvider) decideDiscovery(m *models.Measurements) (models.DecisionLabel, string, error) {
	t := p.thresholds

	// 1. Nothing to work with at all.
	if m.PassedHypothesisCount == 0 && m.PromisingHypothesisCount == 0 {
		return models.DecisionInsufficientSignal, "no passed or promising hypotheses", nil
	}

	// 2. The graph grew since the last decision; deepen before widening.
	if m.GrowthScore != nil && *m.GrowthScore > 0 {
		return models.DecisionStrategicDownload, fmt.Sprintf("growth score %.2f > 0", *m.GrowthScore), nil
	}

	// 3. Confident halt.
	if m.MeanPathLength > 1 &&
		m.MaxPathsPerPair >= t.PathSupportThreshold &&
		m.IsDominantClear &&
		m.MaxNormalizedConfidence >= t.HighConfidenceThreshold {
		return models.DecisionHaltConfident, fmt.Sprintf("dominant pair %s clear at confidence %.2f", m.DominantPairID, m.MaxNormalizedConfidence), nil
	}

	// 4. Stable but weakly supported; more literature will not help.
	if m.MeanPathLength > 1 &&
		m.EvidenceGrowthRate != nil && math.Abs(*m.EvidenceGrowthRate) < 0.1 &&
		m.MaxPathsPerPair < t.PathSupportThreshold &&
		m.GraphDensity > 0 &&
		m.DiversityScore > 0 {
		return models.DecisionHaltNoHypothesis, "evidence stable with weak path support", nil
	}

	// 5. Sparse graph.
	if m.GraphDensity < t.SparseGraphDensityThreshold {
		return models.DecisionFetchMoreLiterature, fmt.Sprintf("graph density %.4f below sparse threshold %.4f", m.GraphDensity, t.SparseGraphDensityThreshold), nil
	}

	// 6. Default.
	return models.DecisionFetchMoreLiterature, "no halt condition met", nil
}
