// -----------------------------------------------------------------------
// Admin Policy - Operator-managed tuning, loaded once and immutable
// -----------------------------------------------------------------------

package common

import (
	"github.com/go-playground/validator/v10"
)

// Measurement keys accepted in signal weight/max-delta maps.
const (
	SignalMeasurementPassedCount    = "passed_count"
	SignalMeasurementMeanConfidence = "mean_confidence"
	SignalMeasurementGraphDensity   = "graph_density"
	SignalMeasurementFilteredRatio  = "filtered_ratio"
)

// AdminPolicy is the operator tuning document. Loaded once at startup and
// never mutated; jobs snapshot the orchestrator values they depend on at
// query-creation time so later edits cannot skew in-flight attribution.
type AdminPolicy struct {
	DecisionThresholds DecisionThresholds `toml:"decision_thresholds"`
	SignalParams       SignalParams       `toml:"signal_params"`
	QueryOrchestrator  QueryOrchestrator  `toml:"query_orchestrator"`
	GraphMerging       GraphMerging       `toml:"graph_merging"`
	GraphRules         GraphRules         `toml:"graph_rules"`
	IndirectPath       IndirectPath       `toml:"indirect_path"`
	MaxPapersPerJob    int                `toml:"max_papers_per_job" validate:"gt=0"`
}

// DecisionThresholds drive the rule-based decision provider and the
// measurement engine's normalized confidence scale.
type DecisionThresholds struct {
	ConfidenceNormalizationFactor    float64 `toml:"confidence_normalization_factor" validate:"gt=0"`
	HighConfidenceThreshold          float64 `toml:"high_confidence_threshold" validate:"gte=0,lte=1"`
	DominantGapRatio                 float64 `toml:"dominant_gap_ratio" validate:"gte=0,lte=1"`
	LowDiversityUniquePairsThreshold int     `toml:"low_diversity_unique_pairs_threshold" validate:"gte=0"`
	DiversityRatioThreshold          float64 `toml:"diversity_ratio_threshold" validate:"gte=0,lte=1"`
	SparseGraphDensityThreshold      float64 `toml:"sparse_graph_density_threshold" validate:"gte=0,lte=1"`
	PathSupportThreshold             int     `toml:"path_support_threshold" validate:"gt=0"`
	MinimumHypothesesThreshold       int     `toml:"minimum_hypotheses_threshold" validate:"gte=0"`
	PassedToTotalRatioThreshold      float64 `toml:"passed_to_total_ratio_threshold" validate:"gte=0,lte=1"`
	TopKHypothesesToStore            int     `toml:"top_k_hypotheses_to_store" validate:"gt=0"`

	// StabilityCycleThreshold is exposed for operators but the shipped
	// rule set does not consult it; no stability-based halt exists.
	StabilityCycleThreshold int `toml:"stability_cycle_threshold" validate:"gte=0"`
}

// SignalParams tune the post-decision attribution loop: how measurement
// deltas between consecutive decisions convert into query reputation.
type SignalParams struct {
	PositiveThreshold       float64            `toml:"positive_threshold" validate:"gt=0"`
	NegativeThreshold       float64            `toml:"negative_threshold" validate:"lt=0"`
	ReputationPositiveDelta int                `toml:"reputation_positive_delta" validate:"gt=0"`
	ReputationNegativeDelta int                `toml:"reputation_negative_delta" validate:"lt=0"`
	Weights                 map[string]float64 `toml:"weights" validate:"required,dive,gte=0"`
	MaxDeltas               map[string]float64 `toml:"max_deltas" validate:"required,dive,gt=0"`
}

// QueryOrchestrator tunes search-query lifecycle and fetch sizing. These
// are the values snapshotted onto each SearchQuery at creation.
type QueryOrchestrator struct {
	SignatureLength   int `toml:"signature_length" validate:"gt=0,lte=64"`
	InitialReputation int `toml:"initial_reputation"`
	MaxReuseAttempts  int `toml:"max_reuse_attempts" validate:"gte=0"`
	FetchBatchSize    int `toml:"fetch_batch_size" validate:"gt=0"`
	ResultsLimit      int `toml:"results_limit" validate:"gt=0"`
	TopKHypotheses    int `toml:"top_k_hypotheses" validate:"gt=0"`
	MinReputation     int `toml:"min_reputation"`

	// Domains is the allow-list for deterministic domain resolution.
	// A hypothesis matching none of these falls through to the LLM
	// closed-set classifier.
	Domains []string `toml:"domains"`
}

// GraphMerging tunes semantic node clustering.
type GraphMerging struct {
	SimilarityThreshold float64 `toml:"similarity_threshold" validate:"gt=0,lte=1"`
}

// GraphRules configure the sanitizer's node classification and the
// filter's generic-predicate test.
type GraphRules struct {
	NodeRemovalPatterns []string          `toml:"node_removal_patterns"`
	NodeRemovalExact    []string          `toml:"node_removal_exact"`
	GenericPredicates   []string          `toml:"generic_predicates"`
	MetadataPatterns    map[string]string `toml:"metadata_patterns"`
}

// IndirectPath tunes path enumeration and the hypothesis filter.
type IndirectPath struct {
	Enabled               bool    `toml:"enabled"`
	TemporalPlaceholders  bool    `toml:"temporal_placeholders"`
	DominanceGapThreshold float64 `toml:"dominance_gap_threshold" validate:"gte=0,lte=1"`
	MinLength             int     `toml:"min_length" validate:"gte=2"`
	MaxLength             int     `toml:"max_length" validate:"gtefield=MinLength"`
	HubDegreeThreshold    int     `toml:"hub_degree_threshold" validate:"gt=0"`
	MinConfidence         float64 `toml:"min_confidence" validate:"gte=0"`
}

// NewDefaultPolicy creates a policy with production defaults.
func NewDefaultPolicy() *AdminPolicy {
	return &AdminPolicy{
		DecisionThresholds: DecisionThresholds{
			ConfidenceNormalizationFactor:    10.0, // Raw confidences are support counts; 10 supports saturates the scale
			HighConfidenceThreshold:          0.8,
			DominantGapRatio:                 0.2,
			LowDiversityUniquePairsThreshold: 3,
			DiversityRatioThreshold:          0.3,
			SparseGraphDensityThreshold:      0.05,
			PathSupportThreshold:             3,
			MinimumHypothesesThreshold:       1,
			PassedToTotalRatioThreshold:      0.1,
			TopKHypothesesToStore:            10,
			StabilityCycleThreshold:          3,
		},
		SignalParams: SignalParams{
			PositiveThreshold:       0.2,
			NegativeThreshold:       -0.2,
			ReputationPositiveDelta: 1,
			ReputationNegativeDelta: -2, // Losses hit harder so a flaky query blocks before it wastes a third fetch
			Weights: map[string]float64{
				SignalMeasurementPassedCount:    0.4,
				SignalMeasurementMeanConfidence: 0.3,
				SignalMeasurementGraphDensity:   0.2,
				SignalMeasurementFilteredRatio:  0.1,
			},
			MaxDeltas: map[string]float64{
				SignalMeasurementPassedCount:    10.0,
				SignalMeasurementMeanConfidence: 1.0,
				SignalMeasurementGraphDensity:   0.1,
				SignalMeasurementFilteredRatio:  1.0,
			},
		},
		QueryOrchestrator: QueryOrchestrator{
			SignatureLength:   64,
			InitialReputation: 0,
			MaxReuseAttempts:  3,
			FetchBatchSize:    10,
			ResultsLimit:      20,
			TopKHypotheses:    3,
			MinReputation:     -2,
			Domains: []string{
				"biomedicine",
				"neuroscience",
				"materials science",
				"computer science",
				"climate science",
				"economics",
			},
		},
		GraphMerging: GraphMerging{
			SimilarityThreshold: 0.85,
		},
		GraphRules: GraphRules{
			NodeRemovalPatterns: []string{
				`^.$`,
				`^[\d\W]+$`,
				`(?i)^(figure|fig|table|tbl)\s*\.?\s*\d+$`,
				`(?i)^(section|chapter|appendix)\b`,
				`(?i)^(supplementary|supplemental)\b`,
			},
			NodeRemovalExact: []string{
				"et al",
				"et al.",
				"abstract",
				"introduction",
				"methods",
				"results",
				"discussion",
				"conclusion",
				"references",
				"acknowledgments",
				"this study",
				"this paper",
				"the authors",
			},
			GenericPredicates: []string{
				"related_to",
				"associated_with",
				"linked_to",
			},
			MetadataPatterns: map[string]string{
				"year":  `^(19|20)\d{2}[a-z]?$`,
				"doi":   `(?i)^(doi[:/]?\s*)?10\.\d{4,9}/\S+$`,
				"issn":  `(?i)^issn[:\s-]*\d{4}-?\d{3}[\dxX]$`,
				"arxiv": `(?i)^arxiv[:\s]*\d{4}\.\d{4,5}(v\d+)?$`,
				"pmid":  `(?i)^pmid[:\s]*\d+$`,
				"url":   `(?i)^https?://\S+$`,
			},
		},
		IndirectPath: IndirectPath{
			Enabled:               true,
			TemporalPlaceholders:  true,
			DominanceGapThreshold: 0.15,
			MinLength:             2,
			MaxLength:             3,
			HubDegreeThreshold:    50,
			MinConfidence:         2.0,
		},
		MaxPapersPerJob: 200,
	}
}

// Validate validates the policy using go-playground/validator.
// Returns an error if any threshold is out of range.
func (p *AdminPolicy) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}
