// -----------------------------------------------------------------------
// Path Reasoner - enumerate indirect paths and build hypotheses
// -----------------------------------------------------------------------

package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// Service enumerates indirect paths over the active semantic graph and
// turns the survivors into filtered hypotheses. Pure computation; storage
// happens in the pipeline stage.
type Service struct {
	policy *common.AdminPolicy
	logger arbor.ILogger
}

// NewService creates a path reasoning service.
func NewService(policy *common.AdminPolicy, logger arbor.ILogger) *Service {
	return &Service{
		policy: policy,
		logger: logger,
	}
}

// GenerateHypotheses enumerates candidate paths for the job over the graph
// snapshot, applies the filter, and returns the full hypothesis set with
// verdicts attached. Version stamps the generation run.
func (s *Service) GenerateHypotheses(ctx context.Context, job *models.ResearchJob, graph *models.SemanticGraph, version int) ([]*models.Hypothesis, error) {
	if !s.policy.IndirectPath.Enabled {
		return nil, nil
	}

	g := buildPathGraph(&graph.Graph)

	mode := models.HypothesisModeExplore
	var seeds map[string]bool
	if len(job.Config.PathReasoning.Seeds) > 0 {
		mode = models.HypothesisModeQuery
		seeds = make(map[string]bool, len(job.Config.PathReasoning.Seeds))
		for _, seed := range job.Config.PathReasoning.Seeds {
			seeds[g.resolve(seed)] = true
		}
	}

	stoplist := make(map[string]bool)
	for _, entry := range job.Config.PathReasoning.Stoplist {
		stoplist[strings.ToLower(entry)] = true
	}
	for _, entry := range job.Config.Expert.ExcludedEntities {
		stoplist[strings.ToLower(entry)] = true
	}

	allowLen3 := job.Config.PathReasoning.AllowLen3 &&
		job.Config.PathReasoning.MaxHops >= 3 &&
		s.policy.IndirectPath.MaxLength >= 3

	var paths [][]string
	for a := range g.adjacency {
		for _, b := range g.adjacency[a] {
			if b == a {
				continue
			}
			for _, c := range g.adjacency[b] {
				if c == a || c == b {
					continue
				}
				if path, ok := s.admit(g, []string{a, b, c}, seeds, stoplist); ok {
					paths = append(paths, path)
				}

				if !allowLen3 {
					continue
				}
				for _, d := range g.adjacency[c] {
					if d == a || d == b || d == c {
						continue
					}
					if path, ok := s.admit(g, []string{a, b, c, d}, seeds, stoplist); ok {
						paths = append(paths, path)
					}
				}
			}
		}
	}

	hypotheses := make([]*models.Hypothesis, 0, len(paths))
	for _, path := range paths {
		h, err := s.buildHypothesis(job, g, path, mode, version)
		if err != nil {
			return nil, err
		}
		s.applyFilter(g, h)
		hypotheses = append(hypotheses, h)
	}

	models.SortHypotheses(hypotheses)

	passed := 0
	for _, h := range hypotheses {
		if h.PassedFilter {
			passed++
		}
	}
	s.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("mode", mode).
		Int("candidates", len(hypotheses)).
		Int("passed", passed).
		Msg("Hypothesis generation finished")

	return hypotheses, nil
}

// admit applies the enumeration-time rejections: non-concept members,
// stoplisted intermediates, seed restriction in query mode, and the
// direct-edge novelty rule. Cycles are excluded by construction.
func (s *Service) admit(g *pathGraph, path []string, seeds, stoplist map[string]bool) ([]string, bool) {
	for _, node := range path {
		if !g.isConcept(node) {
			return nil, false
		}
	}
	for _, mid := range path[1 : len(path)-1] {
		if stoplist[strings.ToLower(mid)] {
			return nil, false
		}
	}
	if seeds != nil && !seeds[path[0]] && !seeds[path[len(path)-1]] {
		return nil, false
	}
	if g.hasDirectEdge(path[0], path[len(path)-1]) {
		return nil, false
	}
	return path, true
}

// buildHypothesis computes confidence, predicates, provenance and the
// explanation text for one admitted path.
func (s *Service) buildHypothesis(job *models.ResearchJob, g *pathGraph, path []string, mode string, version int) (*models.Hypothesis, error) {
	h := models.NewHypothesis(job.ID, mode, path, version)
	h.Domain = job.Config.Domain

	confidence := 0
	var explanation []string
	for i := 0; i < len(path)-1; i++ {
		hop := g.hop(path[i], path[i+1])
		if hop == nil {
			return nil, fmt.Errorf("path %v has no edge %s→%s", path, path[i], path[i+1])
		}

		strength := hop.strength()
		if i == 0 || strength < confidence {
			confidence = strength
		}

		h.Predicates = append(h.Predicates, hop.predicates...)
		h.TripleIDs = appendUnique(h.TripleIDs, hop.tripleIDs)
		h.SourceIDs = appendUnique(h.SourceIDs, hop.sourceIDs)
		h.BlockIDs = appendUnique(h.BlockIDs, hop.blockIDs)

		explanation = append(explanation, fmt.Sprintf("%s -[%s]-> %s",
			path[i], strings.Join(hop.predicates, ", "), path[i+1]))
	}

	h.Confidence = confidence
	h.Explanation = strings.Join(explanation, " then ")
	return h, nil
}

// applyFilter runs the ordered rejection rules, short-circuiting on the
// first hit. A surviving hypothesis gets PassedFilter=true and no reason.
func (s *Service) applyFilter(g *pathGraph, h *models.Hypothesis) {
	threshold := s.policy.IndirectPath.HubDegreeThreshold

	for _, mid := range h.Intermediates() {
		if g.degrees[mid] > threshold {
			h.FilterReason = map[string]string{
				models.FilterRuleHubSuppression: fmt.Sprintf("intermediate %q has degree %d (> %d)", mid, g.degrees[mid], threshold),
			}
			return
		}
	}

	if len(h.Predicates) > 0 && s.allGeneric(h.Predicates) {
		h.FilterReason = map[string]string{
			models.FilterRuleGenericPredicates: "all path predicates are generic relations",
		}
		return
	}

	if float64(h.Confidence) < s.policy.IndirectPath.MinConfidence {
		h.FilterReason = map[string]string{
			models.FilterRuleEvidenceThreshold: fmt.Sprintf("confidence %d below minimum %.0f", h.Confidence, s.policy.IndirectPath.MinConfidence),
		}
		return
	}

	if g.hasDirectEdge(h.Source, h.Target) {
		h.FilterReason = map[string]string{
			models.FilterRuleNovelty: "a direct edge already connects source and target",
		}
		return
	}

	h.PassedFilter = true
}

func (s *Service) allGeneric(predicates []string) bool {
	generic := make(map[string]bool, len(s.policy.GraphRules.GenericPredicates))
	for _, p := range s.policy.GraphRules.GenericPredicates {
		generic[p] = true
	}
	for _, p := range predicates {
		if !generic[p] {
			return false
		}
	}
	return true
}

func appendUnique(dst []string, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range src {
		if !seen[v] {
			dst = append(dst, v)
			seen[v] = true
		}
	}
	return dst
}
