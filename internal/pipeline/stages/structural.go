// -----------------------------------------------------------------------
// Structural graph stage - project triples into a normalized multigraph
// -----------------------------------------------------------------------

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// StructuralCacheKey is the KV cache slot holding the intermediate graph
// between the build, sanitize and merge stages.
func StructuralCacheKey(jobID uint64) string {
	return fmt.Sprintf("structural_graph:%d", jobID)
}

var acronymRe = regexp.MustCompile(`\(([A-Z][A-Za-z0-9-]{1,5})\)`)

var parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)`)

// predicateMap reduces free-form LLM predicates to a closed relation label
// by substring. Order matters: first match wins.
var predicateMap = []struct {
	substr string
	label  string
}{
	{"inhibit", "inhibits"},
	{"activat", "activates"},
	{"caus", "causes"},
	{"increas", "increases"},
	{"decreas", "decreases"},
	{"reduc", "reduces"},
	{"treat", "treats"},
	{"prevent", "prevents"},
	{"induc", "induces"},
	{"regulat", "regulates"},
	{"bind", "binds_to"},
	{"target", "targets"},
	{"interact", "interacts_with"},
	{"modulat", "modulates"},
	{"suppress", "suppresses"},
	{"express", "expresses"},
	{"encod", "encodes"},
	{"associat", "associated_with"},
	{"correlat", "associated_with"},
	{"link", "linked_to"},
	{"relat", "related_to"},
}

// StructuralStage consumes TRIPLES_EXTRACTED jobs. Triples are projected
// into a graph: entity handles are reduced (parenthetical acronym, else
// head noun phrase, else cleaned text), predicates mapped to a closed
// label set, duplicate edges grouped with summed support and merged
// provenance. The result is cached
// in the KV store for the sanitize stage; nothing is persisted as a graph
// version yet.
type StructuralStage struct {
	storage   interfaces.StorageManager
	presenter interfaces.PresentationPublisher
	cacheTTL  time.Duration
	logger    arbor.ILogger
}

// NewStructuralStage creates the structural graph stage handler.
func NewStructuralStage(storage interfaces.StorageManager, presenter interfaces.PresentationPublisher, cacheTTL time.Duration, logger arbor.ILogger) *StructuralStage {
	return &StructuralStage{
		storage:   storage,
		presenter: presenter,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func (s *StructuralStage) Status() models.JobStatus {
	return models.JobStatusTriplesExtracted
}

func (s *StructuralStage) Execute(ctx context.Context, job *models.ResearchJob) (*interfaces.StageResult, error) {
	triples, err := s.storage.Triples().ListByJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triples: %w", err)
	}

	graph := BuildStructuralGraph(triples)

	payload, err := json.Marshal(graph)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structural graph: %w", err)
	}
	if err := s.storage.KV().CacheSet(ctx, StructuralCacheKey(job.ID), payload, s.cacheTTL); err != nil {
		return nil, fmt.Errorf("failed to cache structural graph: %w", err)
	}

	s.presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  job.ID,
		Phase:  models.PhaseGraph,
		Status: string(models.JobStatusStructuralGraph),
		Result: "structuralgraphbuilt",
		Metric: map[string]interface{}{
			"triples":    len(triples),
			"node_count": len(graph.Nodes),
			"edge_count": len(graph.Edges),
		},
	})

	return &interfaces.StageResult{
		NextStatus: models.JobStatusStructuralGraph,
		Requeue:    true,
		Message:    fmt.Sprintf("%d nodes, %d edges from %d triples", len(graph.Nodes), len(graph.Edges), len(triples)),
	}, nil
}

// BuildStructuralGraph is the pure projection from triples to graph data.
func BuildStructuralGraph(triples []*models.Triple) *models.GraphData {
	type edgeAgg struct {
		edge    models.GraphEdge
		triples map[string]struct{}
		blocks  map[string]struct{}
		sources map[string]struct{}
	}

	edges := make(map[string]*edgeAgg)
	aliases := make(map[string]map[string]struct{})

	for _, t := range triples {
		subject, subjectAlias := reduceHandle(t.Subject)
		object, objectAlias := reduceHandle(t.Object)
		if subject == "" || object == "" || subject == object {
			continue
		}
		predicate := mapPredicate(t.Predicate)

		recordAlias(aliases, subject, subjectAlias)
		recordAlias(aliases, object, objectAlias)

		key := subject + "\x00" + predicate + "\x00" + object
		agg, ok := edges[key]
		if !ok {
			agg = &edgeAgg{
				edge:    models.GraphEdge{Subject: subject, Predicate: predicate, Object: object},
				triples: make(map[string]struct{}),
				blocks:  make(map[string]struct{}),
				sources: make(map[string]struct{}),
			}
			edges[key] = agg
		}
		agg.edge.Support++
		agg.triples[t.ID] = struct{}{}
		agg.blocks[t.BlockID] = struct{}{}
		agg.sources[t.IngestionSourceID] = struct{}{}
	}

	graph := &models.GraphData{}
	nodeSeen := make(map[string]struct{})

	keys := make([]string, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		agg := edges[k]
		agg.edge.TripleIDs = sortedKeys(agg.triples)
		agg.edge.BlockIDs = sortedKeys(agg.blocks)
		agg.edge.SourceIDs = sortedKeys(agg.sources)
		graph.Edges = append(graph.Edges, agg.edge)
		nodeSeen[agg.edge.Subject] = struct{}{}
		nodeSeen[agg.edge.Object] = struct{}{}
	}

	for _, text := range sortedKeys(nodeSeen) {
		graph.Nodes = append(graph.Nodes, models.GraphNode{
			Text:    text,
			Type:    models.NodeTypeConcept,
			Aliases: sortedKeys(aliases[text]),
		})
	}
	return graph
}

// reduceHandle turns free entity text into a graph handle. A parenthetical
// acronym wins; long phrases fall back to their leading noun phrase; short
// phrases use the cleaned, lowercased text as-is. The second return is the
// cleaned long form kept as an alias when it differs from the handle.
func reduceHandle(text string) (handle, alias string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	var acronym string
	if m := acronymRe.FindStringSubmatch(text); m != nil {
		acronym = strings.ToLower(m[1])
	}

	cleaned := parentheticalRe.ReplaceAllString(text, "")
	cleaned = strings.ToLower(strings.Join(strings.Fields(cleaned), " "))
	cleaned = strings.Trim(cleaned, " .,;:\"'")
	for _, article := range []string{"the ", "a ", "an "} {
		cleaned = strings.TrimPrefix(cleaned, article)
	}

	if acronym != "" {
		if cleaned != "" && cleaned != acronym {
			return acronym, cleaned
		}
		return acronym, ""
	}
	if head := headNounPhrase(cleaned); head != cleaned {
		return head, cleaned
	}
	return cleaned, ""
}

// phraseBreaks end the leading noun phrase of a long entity.
var phraseBreaks = map[string]struct{}{
	"of": {}, "in": {}, "for": {}, "with": {}, "on": {}, "to": {},
	"by": {}, "from": {}, "via": {}, "during": {}, "within": {},
	"and": {}, "or": {}, "that": {}, "which": {},
}

// headNounPhrase trims an entity of more than four words down to its
// leading noun phrase and singularizes the head noun, so "elevated
// cortisol levels in depressed patients" and "elevated cortisol level"
// share a node. Shorter entities are returned unchanged.
func headNounPhrase(cleaned string) string {
	words := strings.Fields(cleaned)
	if len(words) <= 4 {
		return cleaned
	}
	cut := len(words)
	for i, w := range words {
		if _, ok := phraseBreaks[w]; ok && i > 0 {
			cut = i
			break
		}
	}
	phrase := words[:cut]
	phrase[len(phrase)-1] = singularize(phrase[len(phrase)-1])
	return strings.Join(phrase, " ")
}

// singularize strips a plural suffix from the head noun. Latin and
// Greek endings common in scientific prose (us, is, ss) are left alone.
func singularize(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"),
		strings.HasSuffix(w, "ses"), strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "zes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "s") && len(w) > 3:
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func recordAlias(aliases map[string]map[string]struct{}, handle, alias string) {
	if alias == "" {
		return
	}
	set, ok := aliases[handle]
	if !ok {
		set = make(map[string]struct{})
		aliases[handle] = set
	}
	set[alias] = struct{}{}
}

// mapPredicate reduces a free-form predicate to a closed relation label.
func mapPredicate(predicate string) string {
	p := strings.ToLower(strings.TrimSpace(predicate))
	p = strings.ReplaceAll(p, "_", " ")
	for _, m := range predicateMap {
		if strings.Contains(p, m.substr) {
			return m.label
		}
	}
	return "related_to"
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
