// -----------------------------------------------------------------------
// Measurements - the deterministic snapshot a decision is made from
// -----------------------------------------------------------------------

package models

// Measurements is the full output of one measurement pass. It is persisted
// verbatim on the DecisionResult so that signal attribution and audits see
// exactly what the decision provider saw.
type Measurements struct {
	// Populations
	TotalHypothesisCount     int `json:"total_hypothesis_count"`
	PassedHypothesisCount    int `json:"passed_hypothesis_count"`
	PromisingHypothesisCount int `json:"promising_hypothesis_count"`

	// Confidence (over passed hypotheses, normalized and clamped to [0,1])
	MaxNormalizedConfidence  float64 `json:"max_normalized_confidence"`
	MeanNormalizedConfidence float64 `json:"mean_normalized_confidence"`
	IsDominantClear          bool    `json:"is_dominant_clear"`

	// Diversity
	UniqueSourceTargetPairs int     `json:"unique_source_target_pairs"`
	UniqueNodesInPaths      int     `json:"unique_nodes_in_paths"`
	DiversityScore          float64 `json:"diversity_score"`

	// Graph
	GraphDensity           float64 `json:"graph_density"`
	SemanticGraphNodeCount int     `json:"semantic_graph_node_count"`
	SemanticGraphEdgeCount int     `json:"semantic_graph_edge_count"`

	// Indirect-path metrics (populated when indirect_path.enabled)
	MaxPathsPerPair                 int            `json:"max_paths_per_pair"`
	MeanPathsPerPair                float64        `json:"mean_paths_per_pair"`
	DominantPairID                  string         `json:"dominant_pair_id,omitempty"`
	DominantPairPathRatio           float64        `json:"dominant_pair_path_ratio"`
	UniqueIntermediateNodesDominant int            `json:"unique_intermediate_nodes_dominant"`
	RedundancyScore                 float64        `json:"redundancy_score"`
	MeanPathLength                  float64        `json:"mean_path_length"`
	PathLengthVariance              float64        `json:"path_length_variance"`
	DominantConfidenceGap           float64        `json:"dominant_confidence_gap"`
	PairDistributionEntropy         float64        `json:"pair_distribution_entropy"`
	FilterRejectionReasons          map[string]int `json:"filter_rejection_reasons,omitempty"`

	// Share of hypotheses surviving the filter; a signal-attribution input.
	FilteredRatio float64 `json:"filtered_ratio"`

	// PassedPairKeys lists the distinct (source,target) pairs among passed
	// hypotheses. The next cycle's stability metric compares against it.
	PassedPairKeys []string `json:"passed_pair_keys,omitempty"`

	// Temporal (present only when a previous snapshot was supplied)
	EvidenceGrowthRate  *float64 `json:"evidence_growth_rate,omitempty"`
	HypothesisStability *float64 `json:"hypothesis_stability,omitempty"`
	GrowthScore         *float64 `json:"growth_score,omitempty"`

	// Verification short-circuit (all discovery metrics elided when set)
	IsVerification       bool   `json:"is_verification,omitempty"`
	VerificationComplete bool   `json:"verification_complete,omitempty"`
	VerificationFound    bool   `json:"verification_found,omitempty"`
	VerificationType     string `json:"verification_type,omitempty"`
}

// Signal metric keys accepted by Metric. The signal evaluator's weight table
// is configured against these names.
const (
	MetricPassedCount    = "passed_count"
	MetricMeanConfidence = "mean_confidence"
	MetricGraphDensity   = "graph_density"
	MetricFilteredRatio  = "filtered_ratio"
)

// MetricMap returns the headline numbers as a presentation-event payload.
func (m *Measurements) MetricMap() map[string]interface{} {
	return map[string]interface{}{
		"total_hypothesis_count":     m.TotalHypothesisCount,
		"passed_hypothesis_count":    m.PassedHypothesisCount,
		"promising_hypothesis_count": m.PromisingHypothesisCount,
		"max_normalized_confidence":  m.MaxNormalizedConfidence,
		"mean_normalized_confidence": m.MeanNormalizedConfidence,
		"diversity_score":            m.DiversityScore,
		"graph_density":              m.GraphDensity,
	}
}

// Metric resolves a configured measurement name to its numeric value.
func (m *Measurements) Metric(key string) (float64, bool) {
	switch key {
	case MetricPassedCount:
		return float64(m.PassedHypothesisCount), true
	case MetricMeanConfidence:
		return m.MeanNormalizedConfidence, true
	case MetricGraphDensity:
		return m.GraphDensity, true
	case MetricFilteredRatio:
		return m.FilteredRatio, true
	}
	return 0, false
}
