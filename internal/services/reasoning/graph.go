// -----------------------------------------------------------------------
// Directed reasoning graph with per-edge multi-predicate aggregation
// -----------------------------------------------------------------------

package reasoning

import (
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// hopEdge aggregates every predicate observed between one ordered node
// pair, with provenance carried along.
type hopEdge struct {
	predicates []string
	supports   []int
	tripleIDs  []string
	sourceIDs  []string
	blockIDs   []string
}

// strength is the max support among the hop's predicates.
func (e *hopEdge) strength() int {
	max := 0
	for _, s := range e.supports {
		if s > max {
			max = s
		}
	}
	return max
}

// pathGraph is the traversal view over one semantic graph snapshot.
type pathGraph struct {
	adjacency map[string][]string
	edges     map[[2]string]*hopEdge
	nodeTypes map[string]string
	degrees   map[string]int
	canonical map[string]string // lowercased text/alias → canonical node text
}

func buildPathGraph(data *models.GraphData) *pathGraph {
	g := &pathGraph{
		adjacency: make(map[string][]string),
		edges:     make(map[[2]string]*hopEdge),
		nodeTypes: make(map[string]string, len(data.Nodes)),
		degrees:   data.Degrees(),
		canonical: make(map[string]string),
	}

	for i := range data.Nodes {
		node := &data.Nodes[i]
		g.nodeTypes[node.Text] = node.Type
		g.canonical[strings.ToLower(node.Text)] = node.Text
		for _, alias := range node.Aliases {
			g.canonical[strings.ToLower(alias)] = node.Text
		}
	}

	for i := range data.Edges {
		edge := &data.Edges[i]
		key := [2]string{edge.Subject, edge.Object}
		hop, ok := g.edges[key]
		if !ok {
			hop = &hopEdge{}
			g.edges[key] = hop
			g.adjacency[edge.Subject] = append(g.adjacency[edge.Subject], edge.Object)
		}
		hop.predicates = append(hop.predicates, edge.Predicate)
		hop.supports = append(hop.supports, edge.Support)
		hop.tripleIDs = append(hop.tripleIDs, edge.TripleIDs...)
		hop.sourceIDs = append(hop.sourceIDs, edge.SourceIDs...)
		hop.blockIDs = append(hop.blockIDs, edge.BlockIDs...)
	}

	return g
}

// hop returns the aggregated edge between two nodes, nil when absent.
func (g *pathGraph) hop(from, to string) *hopEdge {
	return g.edges[[2]string{from, to}]
}

// hasDirectEdge reports whether a from→to edge exists. The novelty rule
// checks the directed edge only.
func (g *pathGraph) hasDirectEdge(from, to string) bool {
	_, ok := g.edges[[2]string{from, to}]
	return ok
}

// resolve maps a seed term through aliases to its canonical node text.
// Unknown terms resolve to themselves.
func (g *pathGraph) resolve(term string) string {
	if canonical, ok := g.canonical[strings.ToLower(strings.TrimSpace(term))]; ok {
		return canonical
	}
	return term
}

// isConcept reports a node safe for path membership.
func (g *pathGraph) isConcept(node string) bool {
	t, ok := g.nodeTypes[node]
	if !ok {
		return false
	}
	return t != models.NodeTypeMetadata && t != models.NodeTypeCitation
}
