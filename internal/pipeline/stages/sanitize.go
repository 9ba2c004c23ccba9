// -----------------------------------------------------------------------
// Sanitize stage - remove noise nodes, demote metadata to attributes
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// SanitizeStage consumes STRUCTURAL_GRAPH_BUILT jobs. It loads the cached
// structural graph, drops nodes matching the removal rules together with
// their incident edges, and demotes bibliographic values (years, DOIs,
// identifiers) onto the subject node's attributes instead of keeping them
// as graph entities. The cleaned graph replaces the cache entry.
type SanitizeStage struct {
	storage   interfaces.StorageManager
	presenter interfaces.PresentationPublisher
	cacheTTL  time.Duration
	logger    arbor.ILogger

	removalPatterns  []*regexp.Regexp
	removalExact     map[string]struct{}
	metadataPatterns map[string]*regexp.Regexp
}

// NewSanitizeStage compiles the policy's graph rules into a stage handler.
// Invalid patterns are rejected up front rather than per job.
func NewSanitizeStage(storage interfaces.StorageManager, presenter interfaces.PresentationPublisher, policy *common.AdminPolicy, cacheTTL time.Duration, logger arbor.ILogger) (*SanitizeStage, error) {
	s := &SanitizeStage{
		storage:          storage,
		presenter:        presenter,
		cacheTTL:         cacheTTL,
		logger:           logger,
		removalExact:     make(map[string]struct{}),
		metadataPatterns: make(map[string]*regexp.Regexp),
	}

	for _, p := range policy.GraphRules.NodeRemovalPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid node removal pattern %q: %w", p, err)
		}
		s.removalPatterns = append(s.removalPatterns, re)
	}
	for _, e := range policy.GraphRules.NodeRemovalExact {
		s.removalExact[e] = struct{}{}
	}
	for kind, p := range policy.GraphRules.MetadataPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata pattern %q for %s: %w", p, kind, err)
		}
		s.metadataPatterns[kind] = re
	}
	return s, nil
}

func (s *SanitizeStage) Status() models.JobStatus {
	return models.JobStatusStructuralGraph
}

func (s *SanitizeStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	payload, found, err := s.storage.KV().CacheGet(ctx, StructuralCacheKey(job.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to read structural graph cache: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("structural graph cache missing for job %d", job.ID)
	}

	var graph models.GraphData
	if err := json.Unmarshal(payload, &graph); err != nil {
		return nil, fmt.Errorf("failed to decode structural graph: %w", err)
	}

	cleaned := s.Sanitize(&graph)

	out, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sanitized graph: %w", err)
	}
	if err := s.storage.KV().CacheSet(ctx, StructuralCacheKey(job.ID), out, s.cacheTTL); err != nil {
		return nil, fmt.Errorf("failed to cache sanitized graph: %w", err)
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseGraph,
		Status: string(models.JobStatusGraphSanitized),
		Result: "graphsanitized",
		Metric: map[string]interface{}{
			"node_count":    len(cleaned.Nodes),
			"edge_count":    len(cleaned.Edges),
			"removed_nodes": len(cleaned.RemovedNodes),
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusGraphSanitized,
		Requeue:    true,
		Message:    fmt.Sprintf("removed %d noise nodes", len(cleaned.RemovedNodes)),
	}, nil
}

// Sanitize applies removal and metadata rules to one graph.
func (s *SanitizeStage) Sanitize(graph *models.GraphData) *models.GraphData {
	removed := make(map[string]struct{})
	metadataKind := make(map[string]string)

	for i := range graph.Nodes {
		text := graph.Nodes[i].Text
		if s.isNoise(text) {
			removed[text] = struct{}{}
			continue
		}
		if kind, ok := s.metadataKind(text); ok {
			metadataKind[text] = kind
			removed[text] = struct{}{}
		}
	}

	out := &models.GraphData{RemovedNodes: graph.RemovedNodes}
	attrs := make(map[string]map[string]string)

	for _, e := range graph.Edges {
		kind, objIsMeta := metadataKind[e.Object]
		if objIsMeta {
			// The relation itself dies, but its value survives as an
			// attribute of the subject.
			if _, subjectRemoved := removed[e.Subject]; !subjectRemoved {
				if attrs[e.Subject] == nil {
					attrs[e.Subject] = make(map[string]string)
				}
				attrs[e.Subject][kind] = e.Object
			}
			continue
		}
		if _, drop := removed[e.Subject]; drop {
			continue
		}
		if _, drop := removed[e.Object]; drop {
			continue
		}
		out.Edges = append(out.Edges, e)
	}

	kept := make(map[string]struct{})
	for i := range out.Edges {
		kept[out.Edges[i].Subject] = struct{}{}
		kept[out.Edges[i].Object] = struct{}{}
	}

	for i := range graph.Nodes {
		n := graph.Nodes[i]
		if _, drop := removed[n.Text]; drop {
			out.RemovedNodes = append(out.RemovedNodes, n.Text)
			continue
		}
		if _, connected := kept[n.Text]; !connected {
			// Orphaned by edge removal.
			out.RemovedNodes = append(out.RemovedNodes, n.Text)
			continue
		}
		if extra := attrs[n.Text]; len(extra) > 0 {
			if n.Attributes == nil {
				n.Attributes = make(map[string]string, len(extra))
			}
			for k, v := range extra {
				n.Attributes[k] = v
			}
		}
		out.Nodes = append(out.Nodes, n)
	}
	return out
}

func (s *SanitizeStage) isNoise(text string) bool {
	if _, ok := s.removalExact[text]; ok {
		return true
	}
	for _, re := range s.removalPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *SanitizeStage) metadataKind(text string) (string, bool) {
	for kind, re := range s.metadataPatterns {
		if re.MatchString(text) {
			return kind, true
		}
	}
	return "", false
}
