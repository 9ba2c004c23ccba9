// -----------------------------------------------------------------------
// Semantic graph - typed nodes/edges persisted as versioned snapshots
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// Node types assigned during sanitization. Path reasoning only traverses
// concept nodes.
const (
	NodeTypeConcept  = "concept"
	NodeTypeMetadata = "metadata"
	NodeTypeCitation = "citation"
)

// GraphNode is one entity in the graph.
type GraphNode struct {
	Text         string            `json:"text"`
	Type         string            `json:"type"`
	Aliases      []string          `json:"aliases,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ClusterScore float64           `json:"cluster_score,omitempty"`
}

// GraphEdge is one aggregated relation. Support counts how many grouped
// triples back it; provenance ID sets are carried through every rewrite.
type GraphEdge struct {
	Subject   string   `json:"subject"`
	Predicate string   `json:"predicate"`
	Object    string   `json:"object"`
	Support   int      `json:"support"`
	TripleIDs []string `json:"triple_ids,omitempty"`
	SourceIDs []string `json:"source_ids,omitempty"`
	BlockIDs  []string `json:"block_ids,omitempty"`
}

// GraphData is the serialized graph blob stored on a SemanticGraph row and
// in the structural-graph cache between build stages.
type GraphData struct {
	Nodes        []GraphNode `json:"nodes"`
	Edges        []GraphEdge `json:"edges"`
	RemovedNodes []string    `json:"removed_nodes,omitempty"`
}

// NodeIndex returns text → node for O(1) lookups.
func (g *GraphData) NodeIndex() map[string]*GraphNode {
	idx := make(map[string]*GraphNode, len(g.Nodes))
	for i := range g.Nodes {
		idx[g.Nodes[i].Text] = &g.Nodes[i]
	}
	return idx
}

// HasEdge reports a direct subject→object edge.
func (g *GraphData) HasEdge(subject, object string) bool {
	for i := range g.Edges {
		if g.Edges[i].Subject == subject && g.Edges[i].Object == object {
			return true
		}
	}
	return false
}

// Degrees returns total (in+out) degree per node text.
func (g *GraphData) Degrees() map[string]int {
	deg := make(map[string]int, len(g.Nodes))
	for i := range g.Edges {
		deg[g.Edges[i].Subject]++
		deg[g.Edges[i].Object]++
	}
	return deg
}

// Density is |E| / (|V| * (|V|-1)), zero below two nodes.
func (g *GraphData) Density() float64 {
	n := len(g.Nodes)
	if n < 2 {
		return 0
	}
	return float64(len(g.Edges)) / float64(n*(n-1))
}

// SemanticGraph is a versioned snapshot of the merged concept graph for a
// job. At most one row is active per job; versions rise monotonically and
// old versions are retained for audit.
type SemanticGraph struct {
	ID        string    `json:"id" badgerhold:"key"`
	JobID     uint64    `json:"job_id" badgerhold:"index"`
	Graph     GraphData `json:"graph"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Version   int       `json:"version"`
	IsActive  bool      `json:"is_active" badgerhold:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSemanticGraph wraps merged graph data as the next snapshot version.
// Activation (and prior deactivation) happens in storage.
func NewSemanticGraph(jobID uint64, data GraphData, version int) *SemanticGraph {
	return &SemanticGraph{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Graph:     data,
		NodeCount: len(data.Nodes),
		EdgeCount: len(data.Edges),
		Version:   version,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}
