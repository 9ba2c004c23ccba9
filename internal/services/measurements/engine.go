// -----------------------------------------------------------------------
// Measurement Engine - deterministic snapshot feeding the decision loop
// -----------------------------------------------------------------------

package measurements

import (
	"math"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// Input is everything one measurement pass reads. The engine is a pure
// function of it; no storage access happens here.
type Input struct {
	Job        *models.ResearchJob
	Graph      *models.SemanticGraph
	Hypotheses []*models.Hypothesis
	Previous   *models.Measurements

	// Verification short-circuit inputs
	PendingNewQueries int
	Verification      *models.VerificationResult
}

// Engine computes measurement snapshots from graph and hypothesis state.
type Engine struct {
	thresholds common.DecisionThresholds
	indirect   common.IndirectPath
	logger     arbor.ILogger
}

// NewEngine creates a measurement engine bound to the admin policy.
func NewEngine(policy *common.AdminPolicy, logger arbor.ILogger) *Engine {
	return &Engine{
		thresholds: policy.DecisionThresholds,
		indirect:   policy.IndirectPath,
		logger:     logger,
	}
}

// Compute produces the measurement snapshot for one decision cycle.
// Verification jobs short-circuit; discovery jobs get the full set.
func (e *Engine) Compute(in *Input) *models.Measurements {
	if in.Job.Mode == models.JobModeVerification {
		return e.computeVerification(in)
	}
	return e.computeDiscovery(in)
}

func (e *Engine) computeVerification(in *Input) *models.Measurements {
	m := &models.Measurements{
		IsVerification:       true,
		VerificationComplete: in.PendingNewQueries == 0,
	}
	if in.Verification != nil && in.Verification.ConnectionFound != nil {
		m.VerificationFound = *in.Verification.ConnectionFound
		m.VerificationType = in.Verification.ConnectionType
	}
	return m
}

func (e *Engine) computeDiscovery(in *Input) *models.Measurements {
	m := &models.Measurements{}

	var passed, promising []*models.Hypothesis
	rejectionReasons := make(map[string]int)
	for _, h := range in.Hypotheses {
		if h.PassedFilter {
			passed = append(passed, h)
		} else {
			if h.Promising() {
				promising = append(promising, h)
			}
			for rule := range h.FilterReason {
				rejectionReasons[rule]++
			}
		}
	}

	m.TotalHypothesisCount = len(in.Hypotheses)
	m.PassedHypothesisCount = len(passed)
	m.PromisingHypothesisCount = len(promising)
	if len(rejectionReasons) > 0 {
		m.FilterRejectionReasons = rejectionReasons
	}
	if m.TotalHypothesisCount > 0 {
		m.FilteredRatio = float64(m.PassedHypothesisCount) / float64(m.TotalHypothesisCount)
	}

	e.confidenceMetrics(m, passed)
	e.diversityMetrics(m, passed)

	if in.Graph != nil {
		m.GraphDensity = in.Graph.Graph.Density()
		m.SemanticGraphNodeCount = len(in.Graph.Graph.Nodes)
		m.SemanticGraphEdgeCount = len(in.Graph.Graph.Edges)
	}

	if e.indirect.Enabled {
		e.indirectPathMetrics(m, passed)
	}

	if in.Previous != nil {
		e.temporalMetrics(m, in.Previous)
	}

	return m
}

// normalize clamps a raw support-count confidence onto [0,1].
func (e *Engine) normalize(confidence int) float64 {
	return math.Min(float64(confidence)/e.thresholds.ConfidenceNormalizationFactor, 1.0)
}

func (e *Engine) confidenceMetrics(m *models.Measurements, passed []*models.Hypothesis) {
	if len(passed) == 0 {
		return
	}

	confidences := make([]float64, len(passed))
	sum := 0.0
	for i, h := range passed {
		confidences[i] = e.normalize(h.Confidence)
		sum += confidences[i]
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(confidences)))

	m.MaxNormalizedConfidence = confidences[0]
	m.MeanNormalizedConfidence = sum / float64(len(passed))

	if len(confidences) >= 2 {
		m.IsDominantClear = (confidences[0] - confidences[1]) > e.thresholds.DominantGapRatio*confidences[0]
	} else {
		// A single passed hypothesis dominates by default.
		m.IsDominantClear = true
	}
}

func (e *Engine) diversityMetrics(m *models.Measurements, passed []*models.Hypothesis) {
	pairs := make(map[string]bool)
	uniqueNodes := make(map[string]bool)
	totalNodes := 0
	for _, h := range passed {
		pairs[h.PairKey()] = true
		for _, node := range h.Path {
			uniqueNodes[node] = true
			totalNodes++
		}
	}

	m.UniqueSourceTargetPairs = len(pairs)
	m.UniqueNodesInPaths = len(uniqueNodes)
	if totalNodes > 0 {
		m.DiversityScore = float64(len(uniqueNodes)) / float64(totalNodes)
	}

	pairKeys := make([]string, 0, len(pairs))
	for k := range pairs {
		pairKeys = append(pairKeys, k)
	}
	sort.Strings(pairKeys)
	m.PassedPairKeys = pairKeys
}

func (e *Engine) indirectPathMetrics(m *models.Measurements, passed []*models.Hypothesis) {
	if len(passed) == 0 {
		return
	}

	groups := make(map[string][]*models.Hypothesis)
	for _, h := range passed {
		groups[h.PairKey()] = append(groups[h.PairKey()], h)
	}

	// Paths per pair
	maxPaths := 0
	totalPaths := 0
	for _, g := range groups {
		if len(g) > maxPaths {
			maxPaths = len(g)
		}
		totalPaths += len(g)
	}
	m.MaxPathsPerPair = maxPaths
	m.MeanPathsPerPair = float64(totalPaths) / float64(len(groups))

	// Dominant pair by mean confidence; deterministic tie-break on key.
	type pairScore struct {
		key     string
		mean    float64
		maxConf float64
	}
	scores := make([]pairScore, 0, len(groups))
	for key, g := range groups {
		sum := 0.0
		maxConf := 0.0
		for _, h := range g {
			c := e.normalize(h.Confidence)
			sum += c
			if c > maxConf {
				maxConf = c
			}
		}
		scores = append(scores, pairScore{key: key, mean: sum / float64(len(g)), maxConf: maxConf})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].mean != scores[j].mean {
			return scores[i].mean > scores[j].mean
		}
		return scores[i].key < scores[j].key
	})

	dominant := scores[0]
	m.DominantPairID = dominant.key

	dominantGroup := groups[dominant.key]
	distinctPaths := make(map[string]bool)
	dominantIntermediates := make(map[string]bool)
	for _, h := range dominantGroup {
		distinctPaths[strings.Join(h.Path, "→")] = true
		for _, mid := range h.Intermediates() {
			dominantIntermediates[mid] = true
		}
	}
	m.DominantPairPathRatio = float64(len(distinctPaths)) / float64(len(dominantGroup))
	m.UniqueIntermediateNodesDominant = len(dominantIntermediates)

	// Redundancy over all passed intermediates
	uniqueIntermediates := make(map[string]bool)
	totalOccurrences := 0
	for _, h := range passed {
		for _, mid := range h.Intermediates() {
			uniqueIntermediates[mid] = true
			totalOccurrences++
		}
	}
	if totalOccurrences > 0 {
		m.RedundancyScore = float64(totalOccurrences-len(uniqueIntermediates)) / float64(totalOccurrences)
	}

	// Path lengths measured in hops
	sumLen := 0.0
	for _, h := range passed {
		sumLen += float64(len(h.Path) - 1)
	}
	m.MeanPathLength = sumLen / float64(len(passed))
	variance := 0.0
	for _, h := range passed {
		d := float64(len(h.Path)-1) - m.MeanPathLength
		variance += d * d
	}
	m.PathLengthVariance = variance / float64(len(passed))

	// Gap between the top two pairs' max confidences
	if len(scores) >= 2 {
		sort.Slice(scores, func(i, j int) bool {
			if scores[i].maxConf != scores[j].maxConf {
				return scores[i].maxConf > scores[j].maxConf
			}
			return scores[i].key < scores[j].key
		})
		m.DominantConfidenceGap = scores[0].maxConf - scores[1].maxConf
	}

	// Shannon entropy over the paths-per-pair distribution
	entropy := 0.0
	for _, g := range groups {
		p := float64(len(g)) / float64(totalPaths)
		entropy -= p * math.Log2(p)
	}
	m.PairDistributionEntropy = entropy
}

func (e *Engine) temporalMetrics(m *models.Measurements, prev *models.Measurements) {
	passedNow := float64(m.PassedHypothesisCount)
	passedPrev := float64(prev.PassedHypothesisCount)

	var growthRate float64
	if passedPrev == 0 {
		growthRate = passedNow
	} else {
		growthRate = (passedNow - passedPrev) / passedPrev
	}
	m.EvidenceGrowthRate = &growthRate

	if len(prev.PassedPairKeys) > 0 {
		prevPairs := make(map[string]bool, len(prev.PassedPairKeys))
		for _, k := range prev.PassedPairKeys {
			prevPairs[k] = true
		}
		overlap := 0
		for _, k := range m.PassedPairKeys {
			if prevPairs[k] {
				overlap++
			}
		}
		stability := float64(overlap) / float64(len(prev.PassedPairKeys))
		m.HypothesisStability = &stability
	}

	growth := (float64(m.UniqueNodesInPaths) - float64(prev.UniqueNodesInPaths)) +
		(m.DiversityScore - prev.DiversityScore) +
		(passedNow - passedPrev)
	m.GrowthScore = &growth
}
