// -----------------------------------------------------------------------
// Decision Handlers - the consequences of each decision label
// -----------------------------------------------------------------------

package decisions

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// HandlerDeps bundles the collaborators every decision handler shares.
type HandlerDeps struct {
	Storage   interfaces.StorageManager
	Queue     interfaces.QueueManager
	Presenter interfaces.PresentationPublisher
	Policy    *common.AdminPolicy
	Logger    arbor.ILogger
}

// RegisterAll registers one handler per decision label. The registry's
// completeness check runs after this at startup.
func RegisterAll(reg *Registry, deps *HandlerDeps) {
	reg.Register(&haltConfidentHandler{deps})
	reg.Register(&haltNoHypothesisHandler{deps})
	reg.Register(&insufficientSignalHandler{deps})
	reg.Register(&fetchMoreHandler{deps})
	reg.Register(&strategicDownloadHandler{deps})
	reg.Register(&verificationHandler{deps: deps, found: true})
	reg.Register(&verificationHandler{deps: deps, found: false})
}

// pairGroup is the per-(source,target) view handlers reason over.
type pairGroup struct {
	Key     string
	Members []*models.Hypothesis
	MaxConf int
}

// groupByPair groups hypotheses and sorts groups by max confidence desc
// with a deterministic key tie-break.
func groupByPair(hyps []*models.Hypothesis) []pairGroup {
	byKey := make(map[string][]*models.Hypothesis)
	for _, h := range hyps {
		byKey[h.PairKey()] = append(byKey[h.PairKey()], h)
	}

	groups := make([]pairGroup, 0, len(byKey))
	for key, members := range byKey {
		maxConf := 0
		for _, h := range members {
			if h.Confidence > maxConf {
				maxConf = h.Confidence
			}
		}
		groups = append(groups, pairGroup{Key: key, Members: members, MaxConf: maxConf})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].MaxConf != groups[j].MaxConf {
			return groups[i].MaxConf > groups[j].MaxConf
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

func hypothesisSummary(h *models.Hypothesis) map[string]interface{} {
	return map[string]interface{}{
		"id":          h.ID,
		"source":      h.Source,
		"target":      h.Target,
		"path":        h.Path,
		"predicates":  h.Predicates,
		"confidence":  h.Confidence,
		"explanation": h.Explanation,
	}
}

// ---- HALT_CONFIDENT --------------------------------------------------

type haltConfidentHandler struct {
	deps *HandlerDeps
}

func (h *haltConfidentHandler) Label() models.DecisionLabel {
	return models.DecisionHaltConfident
}

func (h *haltConfidentHandler) Handle(ctx context.Context, in *interfaces.DecisionInput) (*models.HandlerResult, error) {
	m := &in.Decision.MeasurementsSnapshot

	var passed []*models.Hypothesis
	for _, hyp := range in.Hypotheses {
		if hyp.PassedFilter {
			passed = append(passed, hyp)
		}
	}
	groups := groupByPair(passed)

	var dominant *pairGroup
	var alternatives []map[string]interface{}
	topK := h.deps.Policy.DecisionThresholds.TopKHypothesesToStore
	for i := range groups {
		if groups[i].Key == m.DominantPairID {
			dominant = &groups[i]
			continue
		}
		if len(alternatives) < topK {
			models.SortHypotheses(groups[i].Members)
			alternatives = append(alternatives, hypothesisSummary(groups[i].Members[0]))
		}
	}

	result := map[string]interface{}{
		"decision":     string(models.DecisionHaltConfident),
		"alternatives": alternatives,
		"measurements": m,
	}

	if dominant != nil {
		models.SortHypotheses(dominant.Members)
		dominantSummaries := make([]map[string]interface{}, 0, len(dominant.Members))
		tripleIDs := make(map[string]bool)
		for _, hyp := range dominant.Members {
			dominantSummaries = append(dominantSummaries, hypothesisSummary(hyp))
			for _, id := range hyp.TripleIDs {
				tripleIDs[id] = true
			}
		}
		result["dominant_pair"] = m.DominantPairID
		result["dominant_hypotheses"] = dominantSummaries

		snippets, err := h.evidenceSnippets(ctx, tripleIDs)
		if err != nil {
			return nil, err
		}
		result["evidence"] = snippets
	}

	result["graph"] = hypothesisSubview(in.Graph, passed)

	papers, err := h.gatherPapers(ctx, in.Job.ID)
	if err != nil {
		return nil, err
	}
	result["papers"] = papers

	if err := h.deps.Storage.Jobs().SetResult(ctx, in.Job.ID, result); err != nil {
		return nil, fmt.Errorf("failed to store halt result: %w", err)
	}

	h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:       in.Job.ID,
		Phase:       models.PhaseDecision,
		Status:      string(models.JobStatusCompleted),
		Result:      "haltconfident",
		Explanation: fmt.Sprintf("confident halt on %s", m.DominantPairID),
	})

	return &models.HandlerResult{
		Status:  models.JobStatusCompleted,
		Message: "halted with a confident hypothesis",
	}, nil
}

func (h *haltConfidentHandler) evidenceSnippets(ctx context.Context, tripleIDs map[string]bool) ([]map[string]interface{}, error) {
	ids := make([]string, 0, len(tripleIDs))
	for id := range tripleIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	triples, err := h.deps.Storage.Triples().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve evidence triples: %w", err)
	}

	snippets := make([]map[string]interface{}, 0, len(triples))
	for _, t := range triples {
		snippets = append(snippets, map[string]interface{}{
			"statement": fmt.Sprintf("%s %s %s", t.Subject, t.Predicate, t.Object),
			"triple_id": t.ID,
			"source_id": t.IngestionSourceID,
			"block_id":  t.BlockID,
		})
	}
	return snippets, nil
}

func (h *haltConfidentHandler) gatherPapers(ctx context.Context, jobID uint64) ([]map[string]interface{}, error) {
	ledger, err := h.deps.Storage.Papers().ListEvidenceByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paper evidence: %w", err)
	}

	ids := make([]string, 0, len(ledger))
	impact := make(map[string]float64, len(ledger))
	for _, e := range ledger {
		ids = append(ids, e.PaperID)
		impact[e.PaperID] = e.ImpactScore
	}

	papers, err := h.deps.Storage.Papers().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve papers: %w", err)
	}

	out := make([]map[string]interface{}, 0, len(papers))
	for _, p := range papers {
		out = append(out, map[string]interface{}{
			"id":           p.ID,
			"title":        p.Title,
			"year":         p.Year,
			"venue":        p.Venue,
			"doi":          p.DOI,
			"impact_score": impact[p.ID],
		})
	}
	return out, nil
}

// hypothesisSubview projects the graph down to the nodes touched by the
// given hypotheses' paths.
func hypothesisSubview(graph *models.SemanticGraph, hyps []*models.Hypothesis) map[string]interface{} {
	if graph == nil {
		return nil
	}

	keep := make(map[string]bool)
	for _, h := range hyps {
		for _, node := range h.Path {
			keep[node] = true
		}
	}

	var nodes []models.GraphNode
	for _, n := range graph.Graph.Nodes {
		if keep[n.Text] {
			nodes = append(nodes, n)
		}
	}
	var edges []models.GraphEdge
	for _, e := range graph.Graph.Edges {
		if keep[e.Subject] && keep[e.Object] {
			edges = append(edges, e)
		}
	}
	return map[string]interface{}{
		"nodes": nodes,
		"edges": edges,
	}
}

// ---- HALT_NO_HYPOTHESIS ----------------------------------------------

type haltNoHypothesisHandler struct {
	deps *HandlerDeps
}

func (h *haltNoHypothesisHandler) Label() models.DecisionLabel {
	return models.DecisionHaltNoHypothesis
}

func (h *haltNoHypothesisHandler) Handle(ctx context.Context, in *interfaces.DecisionInput) (*models.HandlerResult, error) {
	m := &in.Decision.MeasurementsSnapshot

	reason := "evidence stabilized without strong path support"
	result := map[string]interface{}{
		"decision":     string(models.DecisionHaltNoHypothesis),
		"reason":       reason,
		"measurements": m,
	}
	if err := h.deps.Storage.Jobs().SetResult(ctx, in.Job.ID, result); err != nil {
		return nil, fmt.Errorf("failed to store halt result: %w", err)
	}

	h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:       in.Job.ID,
		Phase:       models.PhaseDecision,
		Status:      string(models.JobStatusCompleted),
		Result:      "haltnohypothesis",
		Explanation: reason,
	})

	return &models.HandlerResult{
		Status:  models.JobStatusCompleted,
		Message: reason,
	}, nil
}

// ---- INSUFFICIENT_SIGNAL ---------------------------------------------

type insufficientSignalHandler struct {
	deps *HandlerDeps
}

func (h *insufficientSignalHandler) Label() models.DecisionLabel {
	return models.DecisionInsufficientSignal
}

func (h *insufficientSignalHandler) Handle(ctx context.Context, in *interfaces.DecisionInput) (*models.HandlerResult, error) {
	var promising []*models.Hypothesis
	for _, hyp := range in.Hypotheses {
		if hyp.Promising() {
			promising = append(promising, hyp)
		}
	}
	models.SortHypotheses(promising)

	topK := h.deps.Policy.DecisionThresholds.TopKHypothesesToStore
	if len(promising) > topK {
		promising = promising[:topK]
	}
	suggestions := make([]map[string]interface{}, 0, len(promising))
	for _, hyp := range promising {
		suggestions = append(suggestions, hypothesisSummary(hyp))
	}

	h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:      in.Job.ID,
		Phase:      models.PhaseDecision,
		Status:     string(models.JobStatusNeedMoreInput),
		Result:     "insufficientsignal",
		NextAction: "provide more documents or refine the research seed",
		Payload:    map[string]interface{}{"suggestions": suggestions},
	})

	return &models.HandlerResult{
		Status:     models.JobStatusNeedMoreInput,
		Message:    "not enough signal to continue; waiting for more input",
		NextAction: "provide more documents or refine the research seed",
	}, nil
}

// ---- FETCH_MORE_LITERATURE -------------------------------------------

type fetchMoreHandler struct {
	deps *HandlerDeps
}

func (h *fetchMoreHandler) Label() models.DecisionLabel {
	return models.DecisionFetchMoreLiterature
}

func (h *fetchMoreHandler) Handle(ctx context.Context, in *interfaces.DecisionInput) (*models.HandlerResult, error) {
	count, err := h.deps.Storage.Papers().CountEvidenceByJob(ctx, in.Job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count paper evidence: %w", err)
	}

	if count >= h.deps.Policy.MaxPapersPerJob {
		reason := "max_papers_reached"
		result := map[string]interface{}{
			"decision":     string(models.DecisionFetchMoreLiterature),
			"reason":       reason,
			"paper_count":  count,
			"measurements": &in.Decision.MeasurementsSnapshot,
		}
		if err := h.deps.Storage.Jobs().SetResult(ctx, in.Job.ID, result); err != nil {
			return nil, fmt.Errorf("failed to store result: %w", err)
		}

		h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
			JobID:       in.Job.ID,
			Phase:       models.PhaseDecision,
			Status:      string(models.JobStatusCompleted),
			Result:      reason,
			Explanation: fmt.Sprintf("paper budget exhausted at %d", count),
		})

		return &models.HandlerResult{
			Status:  models.JobStatusCompleted,
			Message: reason,
		}, nil
	}

	h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  in.Job.ID,
		Phase:  models.PhaseDecision,
		Status: string(models.JobStatusFetchQueued),
		Result: "fetchmore",
	})

	return &models.HandlerResult{
		Status:  models.JobStatusFetchQueued,
		Message: "fetching more literature",
		Requeue: true,
	}, nil
}

// ---- STRATEGIC_DOWNLOAD_TARGETED -------------------------------------

type strategicDownloadHandler struct {
	deps *HandlerDeps
}

func (h *strategicDownloadHandler) Label() models.DecisionLabel {
	return models.DecisionStrategicDownload
}

func (h *strategicDownloadHandler) Handle(ctx context.Context, in *interfaces.DecisionInput) (*models.HandlerResult, error) {
	unevaluated, err := h.deps.Storage.Papers().ListUnevaluated(ctx, in.Job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unevaluated papers: %w", err)
	}

	// Nothing left to deepen into; widen instead.
	next := models.JobStatusDownloadQueued
	result := "strategicdownload"
	if len(unevaluated) == 0 {
		next = models.JobStatusFetchQueued
		result = "strategicdownload_fallback_fetch"
	}

	h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:  in.Job.ID,
		Phase:  models.PhaseDecision,
		Status: string(next),
		Result: result,
		Metric: map[string]interface{}{"unevaluated_papers": len(unevaluated)},
	})

	return &models.HandlerResult{
		Status:  next,
		Message: fmt.Sprintf("%d unevaluated papers available", len(unevaluated)),
		Requeue: true,
	}, nil
}

// ---- VERIFICATION_FOUND / VERIFICATION_NOT_FOUND ---------------------

type verificationHandler struct {
	deps  *HandlerDeps
	found bool
}

func (h *verificationHandler) Label() models.DecisionLabel {
	if h.found {
		return models.DecisionVerificationFound
	}
	return models.DecisionVerificationNotFound
}

func (h *verificationHandler) Handle(ctx context.Context, in *interfaces.DecisionInput) (*models.HandlerResult, error) {
	source := in.Job.Config.VerifySource
	target := in.Job.Config.VerifyTarget

	v, err := h.deps.Storage.Decisions().GetVerification(ctx, in.Job.ID)
	if err == interfaces.ErrNotFound {
		v = models.NewVerificationResult(in.Job.ID, source, target)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load verification result: %w", err)
	}

	found := h.found
	v.ConnectionFound = &found
	if found {
		h.resolveConnection(in, v)
	} else {
		v.ConnectionType = models.ConnectionTypeNone
	}

	papers, err := h.deps.Storage.Papers().ListEvidenceByJob(ctx, in.Job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list paper evidence: %w", err)
	}
	v.SupportingPapers = v.SupportingPapers[:0]
	for _, e := range papers {
		v.SupportingPapers = append(v.SupportingPapers, e.PaperID)
	}

	if err := h.deps.Storage.Decisions().SaveVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to save verification result: %w", err)
	}

	queries, err := h.deps.Storage.Queries().ListByJob(ctx, in.Job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	queryTexts := make([]string, 0, len(queries))
	for _, q := range queries {
		queryTexts = append(queryTexts, q.QueryText)
	}

	result := map[string]interface{}{
		"decision":          string(h.Label()),
		"connection_found":  found,
		"connection_type":   v.ConnectionType,
		"path":              v.Path,
		"explanation":       v.Explanation,
		"supporting_papers": v.SupportingPapers,
		"queries_used":      queryTexts,
	}
	if err := h.deps.Storage.Jobs().SetResult(ctx, in.Job.ID, result); err != nil {
		return nil, fmt.Errorf("failed to store verification result: %w", err)
	}

	eventResult := "verificationnotfound"
	if found {
		eventResult = "verificationfound"
	}
	h.deps.Presenter.PublishPhase(ctx, &models.PresentationEvent{
		JobID:       in.Job.ID,
		Phase:       models.PhaseDecision,
		Status:      string(models.JobStatusCompleted),
		Result:      eventResult,
		Explanation: v.Explanation,
	})

	return &models.HandlerResult{
		Status:  models.JobStatusCompleted,
		Message: fmt.Sprintf("verification finished: connection_found=%t", found),
	}, nil
}

// resolveConnection fills path and type from the best surviving
// hypothesis, falling back to a direct graph edge.
func (h *verificationHandler) resolveConnection(in *interfaces.DecisionInput, v *models.VerificationResult) {
	var best *models.Hypothesis
	for _, hyp := range in.Hypotheses {
		if !hyp.PassedFilter && !hyp.Promising() {
			continue
		}
		if hyp.Source != v.Source || hyp.Target != v.Target {
			continue
		}
		if best == nil || hyp.Confidence > best.Confidence {
			best = hyp
		}
	}

	if best != nil {
		v.ConnectionType = models.ConnectionTypeIndirect
		v.Path = best.Path
		v.Explanation = best.Explanation
		return
	}

	if in.Graph != nil && in.Graph.Graph.HasEdge(v.Source, v.Target) {
		v.ConnectionType = models.ConnectionTypeDirect
		v.Path = []string{v.Source, v.Target}
		v.Explanation = fmt.Sprintf("%s is directly connected to %s", v.Source, v.Target)
		return
	}

	v.ConnectionType = models.ConnectionTypeIndirect
}
