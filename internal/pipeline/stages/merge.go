// -----------------------------------------------------------------------
// Semantic merge stage - cluster near-duplicate nodes, persist the graph
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// MergeStage consumes GRAPH_SANITIZED jobs. Concept nodes are embedded and
// clustered by cosine similarity; each cluster collapses to a canonical
// node (shortest text, then highest degree), edges are rewritten onto the
// canonicals with supports summed and provenance merged, and the result is
// persisted as the next active SemanticGraph version. The structural cache
// entry is deleted once consumed. Without a reachable embedder every node
// stays its own cluster, so the pipeline degrades to exact-text identity
// rather than stalling.
type MergeStage struct {
	storage   interfaces.StorageManager
	embedder  interfaces.EmbeddingService
	presenter interfaces.PresentationPublisher
	threshold float64
	logger    arbor.ILogger
}

// NewMergeStage creates the semantic merge stage handler.
func NewMergeStage(storage interfaces.StorageManager, embedder interfaces.EmbeddingService, presenter interfaces.PresentationPublisher, policy *common.AdminPolicy, logger arbor.ILogger) *MergeStage {
	return &MergeStage{
		storage:   storage,
		embedder:  embedder,
		presenter: presenter,
		threshold: policy.GraphMerging.SimilarityThreshold,
		logger:    logger,
	}
}

func (s *MergeStage) Status() models.JobStatus {
	return models.JobStatusGraphSanitized
}

func (s *MergeStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	payload, found, err := s.storage.KV().CacheGet(ctx, StructuralCacheKey(job.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to read sanitized graph cache: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("sanitized graph cache missing for job %d", job.ID)
	}

	var graph models.GraphData
	if err := json.Unmarshal(payload, &graph); err != nil {
		return nil, fmt.Errorf("failed to decode sanitized graph: %w", err)
	}

	merged := s.merge(ctx, &graph)

	snapshot, err := s.storage.Graphs().SaveNewVersion(ctx, job.ID, *merged)
	if err != nil {
		return nil, fmt.Errorf("failed to save graph version: %w", err)
	}
	if err := s.storage.KV().CacheDelete(ctx, StructuralCacheKey(job.ID)); err != nil {
		s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to drop consumed structural cache entry")
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseGraph,
		Status: string(models.JobStatusGraphSemanticMerged),
		Result: "graphsemanticmerged",
		Metric: map[string]interface{}{
			"node_count": snapshot.NodeCount,
			"edge_count": snapshot.EdgeCount,
			"version":    snapshot.Version,
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusGraphSemanticMerged,
		Requeue:    true,
		Message:    fmt.Sprintf("graph v%d: %d nodes, %d edges", snapshot.Version, snapshot.NodeCount, snapshot.EdgeCount),
	}, nil
}

func (s *MergeStage) merge(ctx context.Context, graph *models.GraphData) *models.GraphData {
	if len(graph.Nodes) == 0 {
		return graph
	}

	vectors := s.embedNodes(ctx, graph)
	clusters := clusterBySimilarity(len(graph.Nodes), vectors, s.threshold)
	degrees := graph.Degrees()

	// canonical[i] = index of the node every cluster member collapses to.
	canonical := make(map[int]int)
	byRoot := make(map[int][]int)
	for i, root := range clusters {
		byRoot[root] = append(byRoot[root], i)
	}
	for _, members := range byRoot {
		best := members[0]
		for _, m := range members[1:] {
			bt, mt := graph.Nodes[best].Text, graph.Nodes[m].Text
			if len(mt) < len(bt) || (len(mt) == len(bt) && degrees[mt] > degrees[bt]) {
				best = m
			}
		}
		for _, m := range members {
			canonical[m] = best
		}
	}

	nodeIdx := make(map[string]int, len(graph.Nodes))
	for i := range graph.Nodes {
		nodeIdx[graph.Nodes[i].Text] = i
	}
	rename := func(text string) string {
		i, ok := nodeIdx[text]
		if !ok {
			return text
		}
		return graph.Nodes[canonical[i]].Text
	}

	out := &models.GraphData{RemovedNodes: graph.RemovedNodes}

	type edgeAgg struct {
		edge    models.GraphEdge
		triples map[string]struct{}
		blocks  map[string]struct{}
		sources map[string]struct{}
	}
	edges := make(map[string]*edgeAgg)
	for _, e := range graph.Edges {
		subject, object := rename(e.Subject), rename(e.Object)
		if subject == object {
			continue
		}
		key := subject + "\x00" + e.Predicate + "\x00" + object
		agg, ok := edges[key]
		if !ok {
			agg = &edgeAgg{
				edge:    models.GraphEdge{Subject: subject, Predicate: e.Predicate, Object: object},
				triples: make(map[string]struct{}),
				blocks:  make(map[string]struct{}),
				sources: make(map[string]struct{}),
			}
			edges[key] = agg
		}
		agg.edge.Support += e.Support
		for _, id := range e.TripleIDs {
			agg.triples[id] = struct{}{}
		}
		for _, id := range e.BlockIDs {
			agg.blocks[id] = struct{}{}
		}
		for _, id := range e.SourceIDs {
			agg.sources[id] = struct{}{}
		}
	}
	edgeKeys := make([]string, 0, len(edges))
	for k := range edges {
		edgeKeys = append(edgeKeys, k)
	}
	sort.Strings(edgeKeys)
	for _, k := range edgeKeys {
		agg := edges[k]
		agg.edge.TripleIDs = sortedKeys(agg.triples)
		agg.edge.BlockIDs = sortedKeys(agg.blocks)
		agg.edge.SourceIDs = sortedKeys(agg.sources)
		out.Edges = append(out.Edges, agg.edge)
	}

	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(a, b int) bool {
		return graph.Nodes[canonical[roots[a]]].Text < graph.Nodes[canonical[roots[b]]].Text
	})
	for _, root := range roots {
		members := byRoot[root]
		canon := graph.Nodes[canonical[root]]
		aliasSet := make(map[string]struct{})
		for _, a := range canon.Aliases {
			aliasSet[a] = struct{}{}
		}
		for _, m := range members {
			n := graph.Nodes[m]
			if n.Text != canon.Text {
				aliasSet[n.Text] = struct{}{}
			}
			for _, a := range n.Aliases {
				aliasSet[a] = struct{}{}
			}
		}
		canon.Aliases = sortedKeys(aliasSet)
		canon.ClusterScore = clusterScore(members, vectors)
		out.Nodes = append(out.Nodes, canon)
	}
	return out
}

// embedNodes returns one vector per node, nil entries where embedding
// failed or no embedder is wired.
func (s *MergeStage) embedNodes(ctx context.Context, graph *models.GraphData) [][]float32 {
	vectors := make([][]float32, len(graph.Nodes))
	if s.embedder == nil || !s.embedder.IsAvailable(ctx) {
		return vectors
	}

	texts := make([]string, len(graph.Nodes))
	for i := range graph.Nodes {
		texts[i] = graph.Nodes[i].Text
	}
	got, err := s.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Node embedding failed, merging on exact text only")
		return vectors
	}
	copy(vectors, got)
	return vectors
}

// clusterBySimilarity union-finds node indices whose cosine similarity
// meets the threshold. Vectors are L2-normalized, so the dot product is
// the similarity. Returns the cluster root per index.
func clusterBySimilarity(n int, vectors [][]float32, threshold float64) []int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < n; i++ {
		if vectors[i] == nil {
			continue
		}
		for j := i + 1; j < n; j++ {
			if vectors[j] == nil {
				continue
			}
			if dot(vectors[i], vectors[j]) >= threshold {
				union(i, j)
			}
		}
	}

	roots := make([]int, n)
	for i := range roots {
		roots[i] = find(i)
	}
	return roots
}

// clusterScore is the mean cosine similarity of cluster members to their
// normalized centroid. Singletons and unembedded clusters score zero.
func clusterScore(members []int, vectors [][]float32) float64 {
	if len(members) < 2 {
		return 0
	}
	var dim int
	for _, m := range members {
		if vectors[m] != nil {
			dim = len(vectors[m])
			break
		}
	}
	if dim == 0 {
		return 0
	}

	centroid := make([]float64, dim)
	count := 0
	for _, m := range members {
		if vectors[m] == nil {
			continue
		}
		for d, v := range vectors[m] {
			centroid[d] += float64(v)
		}
		count++
	}
	if count < 2 {
		return 0
	}

	var norm float64
	for _, v := range centroid {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return 0
	}

	var total float64
	for _, m := range members {
		if vectors[m] == nil {
			continue
		}
		var d float64
		for i, v := range vectors[m] {
			d += float64(v) * centroid[i]
		}
		total += d / norm
	}
	return total / float64(count)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
